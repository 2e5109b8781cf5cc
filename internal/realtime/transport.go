package realtime

// Close codes sent to the client when the server ends a connection. The values
// match RFC 6455 so the websocket transport can pass them through unchanged.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	ClosePolicyViolation = 1008
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011
	CloseTryAgainLater   = 1013
)

// Transport is one duplex link to a client, below the broadcast layer.
//
// ReadFrame is called only from the connection's receive loop and WriteFrame
// and Ping only from its send loop. Close may be called from any goroutine,
// more than once, and must unblock a pending ReadFrame.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Ping() error
	SetPongHandler(fn func())
	Close(code int, reason string) error
}

// Handshake is a transport that has connected but not yet authenticated.
type Handshake struct {
	Transport  Transport
	Credential string
	RemoteAddr string
}
