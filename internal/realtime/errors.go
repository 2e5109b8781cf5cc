package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the handshake credential did not resolve to a live session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDenied means the identity is valid but may not observe the requested order.
	ErrDenied = errors.New("denied")

	// ErrProtocol marks a malformed inbound frame. The connection is closed.
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidOrderID is returned for an empty order identifier.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrConnClosed is returned when operating on a connection that is closing or closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrListenerClosed is returned by Accept once the listener has been shut down.
	ErrListenerClosed = errors.New("listener closed")

	// ErrFrameTooLarge is returned by a Transport when an inbound frame exceeds the read limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// InfrastructureError reports that the session store or order store could not
// answer. It is distinct from ErrUnauthorized and ErrDenied so callers can tell
// a retryable outage from a legitimate refusal.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: infrastructure unavailable: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// IsRetryable always reports true; the store may recover.
func (e *InfrastructureError) IsRetryable() bool {
	return true
}

// IsInfrastructure reports whether err is, or wraps, an *InfrastructureError.
func IsInfrastructure(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}
