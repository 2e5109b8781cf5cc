package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropcart/backend/internal/models"
)

var (
	customerC = models.Identity{UserID: "cust-c", Role: models.RoleCustomer, SessionID: "s-c"}
	customerD = models.Identity{UserID: "cust-d", Role: models.RoleCustomer, SessionID: "s-d"}
	partnerP  = models.Identity{UserID: "partner-p", Role: models.RoleDeliveryPartner, SessionID: "s-p"}
	adminA    = models.Identity{UserID: "admin-a", Role: models.RoleAdmin, SessionID: "s-a"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeTransport is an in-memory Transport. Frames pushed with deliver are
// returned by ReadFrame; frames written by the server land on writes.
type fakeTransport struct {
	inbound chan []byte
	writes  chan []byte
	pings   atomic.Int32

	mu          sync.Mutex
	pong        func()
	closed      chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string
	readErr     error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		writes:  make(chan []byte, 1024),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.readErr != nil {
			return nil, f.readErr
		}
		return nil, io.EOF
	}
}

func (f *fakeTransport) WriteFrame(data []byte) error {
	select {
	case <-f.closed:
		return errors.New("write on closed transport")
	default:
	}
	f.writes <- data
	return nil
}

func (f *fakeTransport) Ping() error {
	f.pings.Add(1)
	return nil
}

func (f *fakeTransport) SetPongHandler(fn func()) {
	f.mu.Lock()
	f.pong = fn
	f.mu.Unlock()
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.closeReason = reason
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

// kill simulates the peer vanishing: ReadFrame fails without a close code
// having been sent by the server.
func (f *fakeTransport) kill() {
	f.mu.Lock()
	f.readErr = io.ErrUnexpectedEOF
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
}

func (f *fakeTransport) deliver(t *testing.T, msg any) {
	t.Helper()
	data, ok := msg.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(msg)
		require.NoError(t, err)
	}
	f.inbound <- data
}

func (f *fakeTransport) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

func (f *fakeTransport) waitClosed(t *testing.T) int {
	t.Helper()
	select {
	case <-f.closed:
		return f.code()
	case <-time.After(2 * time.Second):
		t.Fatal("transport was not closed")
		return 0
	}
}

// frameView decodes any outbound frame.
type frameView struct {
	Type      string          `json:"type"`
	OrderID   string          `json:"orderId"`
	Success   bool            `json:"success"`
	Reason    string          `json:"reason"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emittedAt"`
}

func (f *fakeTransport) next(t *testing.T) frameView {
	t.Helper()
	select {
	case data := <-f.writes:
		var v frameView
		require.NoError(t, json.Unmarshal(data, &v))
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("expected an outbound frame")
		return frameView{}
	}
}

func (f *fakeTransport) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-f.writes:
		t.Fatalf("unexpected outbound frame: %s", data)
	case <-time.After(d):
	}
}

// fakeSessions maps tokens to identities.
type fakeSessions struct {
	identities map[string]models.Identity
	err        error
	block      chan struct{}
}

func (s *fakeSessions) LookupSession(ctx context.Context, token string) (*models.Identity, error) {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	id, ok := s.identities[token]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

// fakeOrders maps order ids to the user ids allowed to follow them.
type fakeOrders struct {
	mu     sync.Mutex
	owners map[string][]string
	err    error
	block  chan struct{}
	calls  int
}

func (o *fakeOrders) OwnsOrder(ctx context.Context, identity models.Identity, orderID string) (bool, error) {
	if o.block != nil {
		<-o.block
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return false, o.err
	}
	for _, uid := range o.owners[orderID] {
		if uid == identity.UserID {
			return true, nil
		}
	}
	return false, nil
}

func (o *fakeOrders) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, models.Identity, string) error { return nil }

type fakeAcceptor struct {
	pending chan Handshake
}

func newFakeAcceptor() *fakeAcceptor {
	return &fakeAcceptor{pending: make(chan Handshake)}
}

func (a *fakeAcceptor) Accept(ctx context.Context) (Handshake, error) {
	select {
	case hs := <-a.pending:
		return hs, nil
	case <-ctx.Done():
		return Handshake{}, ctx.Err()
	}
}

func testConfig() Config {
	return Config{
		HeartbeatInterval: time.Hour,
		LivenessTimeout:   2 * time.Hour,
		QueueSize:         16,
		InboundPerSecond:  1000,
	}
}

// newTestConn builds a Conn wired to registry the way the Supervisor does,
// without a send loop, so queued frames stay in the outbox.
func newTestConn(t *testing.T, registry *Registry, id string, identity models.Identity, cfg Config) (*Conn, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := newConn(id, identity, ft, cfg, discardLogger())
	c.onClose = registry.RemoveEverywhere
	return c, ft
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
