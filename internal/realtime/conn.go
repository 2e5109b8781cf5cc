package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/dropcart/backend/internal/models"
)

// ConnState is the liveness state of a Conn.
type ConnState int32

const (
	StateAlive ConnState = iota
	StatePendingClose
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StatePendingClose:
		return "pending-close"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is one authenticated client connection. It is owned by the Supervisor
// that accepted it; the Registry only records which rooms it belongs to.
type Conn struct {
	id        string
	identity  models.Identity
	transport Transport
	outbox    *outbox
	limiter   *rate.Limiter
	logger    *slog.Logger

	// mu guards rooms and state. The Registry takes it while holding a
	// shard lock, never the other way around.
	mu    sync.Mutex
	rooms map[string]struct{}
	state ConnState

	lastSeen  atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Conn)
}

func newConn(id string, identity models.Identity, transport Transport, cfg Config, logger *slog.Logger) *Conn {
	c := &Conn{
		id:        id,
		identity:  identity,
		transport: transport,
		outbox:    newOutbox(cfg.QueueSize),
		limiter:   rate.NewLimiter(rate.Limit(cfg.InboundPerSecond), cfg.inboundBurst()),
		logger: logger.With(
			slog.String("conn_id", id),
			slog.String("user_id", identity.UserID),
			slog.String("role", string(identity.Role)),
		),
		rooms: make(map[string]struct{}),
		done:  make(chan struct{}),
	}
	c.touch()
	transport.SetPongHandler(c.touch)
	return c
}

// ID returns the connection id assigned at accept time.
func (c *Conn) ID() string { return c.id }

// Identity returns the principal the connection authenticated as.
func (c *Conn) Identity() models.Identity { return c.identity }

// Done is closed when teardown starts.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Rooms returns a snapshot of the order ids the connection has joined.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Keys(c.rooms)
}

// State returns the current liveness state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dropped returns how many events were evicted from this connection's queue.
func (c *Conn) Dropped() uint64 {
	return c.outbox.droppedCount()
}

// Queued returns the number of frames waiting to be flushed.
func (c *Conn) Queued() int {
	return c.outbox.len()
}

func (c *Conn) isMember(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[orderID]
	return ok
}

func (c *Conn) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Conn) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSeen.Load()))
}

// enqueue hands an encoded event to the send loop without blocking.
func (c *Conn) enqueue(data []byte) (evicted, ok bool) {
	return c.outbox.pushEvent(data)
}

func (c *Conn) sendControl(data []byte) bool {
	return c.outbox.pushControl(data)
}

// Close tears the connection down exactly once, however many paths race to
// call it: the transport is closed and onClose removes it from every room.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StatePendingClose
		c.mu.Unlock()

		close(c.done)
		c.outbox.close()
		if err := c.transport.Close(code, reason); err != nil {
			c.logger.Debug("transport close failed", slog.Any("error", err))
		}
		if c.onClose != nil {
			c.onClose(c)
		}

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		c.logger.Info("connection closed", slog.Int("code", code), slog.String("reason", reason))
	})
}
