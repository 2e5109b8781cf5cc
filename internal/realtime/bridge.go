package realtime

import (
	"context"
	"time"

	"github.com/dropcart/backend/internal/models"
)

// SessionLookup resolves a session token to an identity. A nil identity with
// a nil error means the token does not name a live session.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*models.Identity, error)
}

// OrderOwnership reports whether identity is the customer or the assigned
// delivery partner of an order.
type OrderOwnership interface {
	OwnsOrder(ctx context.Context, identity models.Identity, orderID string) (bool, error)
}

// Bridge is the only path from the realtime layer to the session and order
// stores. It is stateless apart from its collaborators and is queried once
// per handshake and once per Join.
type Bridge struct {
	sessions SessionLookup
	orders   OrderOwnership
	timeout  time.Duration
}

// NewBridge creates a Bridge. Every store call is bounded by timeout.
func NewBridge(sessions SessionLookup, orders OrderOwnership, timeout time.Duration) *Bridge {
	return &Bridge{
		sessions: sessions,
		orders:   orders,
		timeout:  timeout,
	}
}

// Authenticate resolves a handshake credential. It returns ErrUnauthorized for
// an empty or unknown credential and an *InfrastructureError when the
// session store fails or does not answer in time.
func (b *Bridge) Authenticate(ctx context.Context, credential string) (models.Identity, error) {
	if credential == "" {
		return models.Identity{}, ErrUnauthorized
	}
	identity, err := callWithTimeout(ctx, b.timeout, "lookup_session", func(ctx context.Context) (*models.Identity, error) {
		return b.sessions.LookupSession(ctx, credential)
	})
	if err != nil {
		return models.Identity{}, err
	}
	if identity == nil || identity.UserID == "" {
		return models.Identity{}, ErrUnauthorized
	}
	return *identity, nil
}

// Authorize allows admins everywhere and otherwise defers to the order store's
// ownership check. It returns nil, ErrDenied, or an *InfrastructureError.
func (b *Bridge) Authorize(ctx context.Context, identity models.Identity, orderID string) error {
	if orderID == "" {
		return ErrInvalidOrderID
	}
	if identity.IsAdmin() {
		return nil
	}
	owns, err := callWithTimeout(ctx, b.timeout, "owns_order", func(ctx context.Context) (bool, error) {
		return b.orders.OwnsOrder(ctx, identity, orderID)
	})
	if err != nil {
		return err
	}
	if !owns {
		return ErrDenied
	}
	return nil
}

// callWithTimeout runs fn with a deadline and gives up waiting when the
// deadline passes even if fn ignores its context.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return zero, &InfrastructureError{Op: op, Err: r.err}
		}
		return r.value, nil
	case <-ctx.Done():
		return zero, &InfrastructureError{Op: op, Err: ctx.Err()}
	}
}
