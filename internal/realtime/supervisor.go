package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/dropcart/backend/internal/logging"
)

// Config tunes connection liveness and queueing.
type Config struct {
	HeartbeatInterval time.Duration // how often the server pings each client
	LivenessTimeout   time.Duration // max silence before a client is presumed dead
	QueueSize         int           // outbound events buffered per connection
	InboundPerSecond  float64       // sustained control frames allowed per connection
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		LivenessTimeout:   15 * time.Second,
		QueueSize:         64,
		InboundPerSecond:  10,
	}
}

func (c Config) inboundBurst() int {
	return int(math.Max(1, math.Ceil(c.InboundPerSecond)))
}

// Acceptor yields transports that have connected but not authenticated.
type Acceptor interface {
	Accept(ctx context.Context) (Handshake, error)
}

// SupervisorStats are the Supervisor's live and cumulative counters.
type SupervisorStats struct {
	Connections int
	Rooms       int
	Accepted    uint64
	Rejected    uint64
}

// Supervisor accepts transports, authenticates them through the Bridge, and
// runs each resulting Conn until it closes. It owns every Conn it creates.
type Supervisor struct {
	cfg      Config
	acceptor Acceptor
	bridge   *Bridge
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	conns   map[string]*Conn
	closing bool
	wg      sync.WaitGroup

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewSupervisor wires a Supervisor. registry should have been built with
// bridge as its Authorizer.
func NewSupervisor(cfg Config, acceptor Acceptor, bridge *Bridge, registry *Registry, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:      cfg,
		acceptor: acceptor,
		bridge:   bridge,
		registry: registry,
		logger:   logger,
		conns:    make(map[string]*Conn),
	}
}

// Serve accepts connections until ctx is cancelled, the acceptor closes, or
// Shutdown is called. Handshakes run concurrently so one slow session lookup
// does not hold up the others.
func (s *Supervisor) Serve(ctx context.Context) error {
	for {
		hs, err := s.acceptor.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrListenerClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		// Add under mu so it cannot race Shutdown's Wait.
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			_ = hs.Transport.Close(CloseGoingAway, "server shutting down")
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			c, err := s.handshake(ctx, hs)
			if err != nil {
				return
			}
			s.HandleInbound(ctx, c)
		}()
	}
}

// Accept waits for the next transport and authenticates it. On failure the
// transport is closed and no Conn is created. The returned Conn's send loop
// is already running; drive its receive side with HandleInbound.
func (s *Supervisor) Accept(ctx context.Context) (*Conn, error) {
	hs, err := s.acceptor.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return s.handshake(ctx, hs)
}

func (s *Supervisor) handshake(ctx context.Context, hs Handshake) (*Conn, error) {
	identity, err := s.bridge.Authenticate(ctx, hs.Credential)
	if err != nil {
		s.rejected.Add(1)
		if IsInfrastructure(err) {
			s.logger.Error("handshake failed: session store unavailable",
				slog.String("remote_addr", hs.RemoteAddr), slog.Any("error", logging.WrapError(err, "authenticate")))
			sentry.CaptureException(err)
			_ = hs.Transport.Close(CloseTryAgainLater, ReasonUnavailable)
		} else {
			logging.LogSecurityEvent(ctx, logging.SecurityEventRealtimeUnauthorized, "realtime handshake rejected",
				slog.String("remote_addr", hs.RemoteAddr))
			_ = hs.Transport.Close(ClosePolicyViolation, "unauthorized")
		}
		return nil, err
	}

	c := newConn(uuid.NewString(), identity, hs.Transport, s.cfg, s.logger)
	c.onClose = s.release

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = hs.Transport.Close(CloseGoingAway, "server shutting down")
		return nil, ErrListenerClosed
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	s.accepted.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendLoop(c)
	}()

	c.logger.Info("connection accepted", slog.String("remote_addr", hs.RemoteAddr))
	return c, nil
}

// release runs once per Conn, from Conn.Close.
func (s *Supervisor) release(c *Conn) {
	s.registry.RemoveEverywhere(c)
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// HandleInbound consumes control frames from c until the transport fails or
// c is closed, then closes c. It blocks for the lifetime of the connection.
func (s *Supervisor) HandleInbound(ctx context.Context, c *Conn) {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			c.logger.Error("panic in receive loop", slog.Any("panic", r))
			c.Close(CloseInternalError, "internal error")
		}
	}()

	for {
		data, err := c.transport.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, ErrFrameTooLarge):
				logging.LogSecurityEvent(ctx, logging.SecurityEventRealtimeProtocol, "inbound frame too large",
					slog.String("conn_id", c.id))
				c.Close(CloseMessageTooBig, "frame too large")
			default:
				c.logger.Debug("receive loop ended", slog.Any("error", err))
				c.Close(CloseNormal, "")
			}
			return
		}
		c.touch()

		msg, err := decodeInbound(data)
		if err != nil {
			logging.LogSecurityEvent(ctx, logging.SecurityEventRealtimeProtocol, "malformed inbound frame",
				slog.String("conn_id", c.id), slog.String("error", err.Error()))
			c.Close(CloseProtocolError, "malformed frame")
			return
		}

		if !c.limiter.Allow() {
			s.reply(c, ErrorMessage{Type: TypeError, Reason: ReasonRateLimited})
			continue
		}

		switch msg.Type {
		case TypeJoinRoom:
			s.join(ctx, c, msg.OrderID)
		case TypeLeaveRoom:
			if msg.OrderID == "" {
				s.reply(c, Ack{Type: TypeRoomLeft, Reason: ReasonInvalidOrderID})
				continue
			}
			s.registry.Leave(c, msg.OrderID)
			c.logger.Info("left room", slog.String("order_id", msg.OrderID))
			s.reply(c, Ack{Type: TypeRoomLeft, OrderID: msg.OrderID, Success: true})
		default:
			c.logger.Debug("ignoring unknown message type", slog.String("type", msg.Type))
		}
	}
}

func (s *Supervisor) join(ctx context.Context, c *Conn, orderID string) {
	err := s.registry.Join(ctx, c, orderID)
	ack := Ack{Type: TypeRoomJoined, OrderID: orderID, Success: err == nil}

	switch {
	case err == nil:
		c.logger.Info("joined room", slog.String("order_id", orderID))
	case errors.Is(err, ErrConnClosed):
		return
	case errors.Is(err, ErrInvalidOrderID):
		ack.Reason = ReasonInvalidOrderID
	case errors.Is(err, ErrDenied):
		ack.Reason = ReasonDenied
		logging.LogSecurityEvent(ctx, logging.SecurityEventRealtimeJoinDenied, "join denied",
			slog.String("conn_id", c.id), slog.String("user_id", c.identity.UserID), slog.String("order_id", orderID))
	default:
		ack.Reason = ReasonUnavailable
		c.logger.Error("join failed", slog.String("order_id", orderID), slog.Any("error", logging.WrapError(err, "join")))
		sentry.CaptureException(err)
	}
	s.reply(c, ack)
}

func (s *Supervisor) reply(c *Conn, msg any) {
	data, err := marshalFrame(msg)
	if err != nil {
		c.logger.Error("failed to encode reply", slog.Any("error", err))
		return
	}
	c.sendControl(data)
}

// sendLoop flushes c's outbox, pings on every heartbeat, and closes c once
// it has been silent for the liveness timeout.
func (s *Supervisor) sendLoop(c *Conn) {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	liveness := time.NewTimer(s.cfg.LivenessTimeout)
	defer liveness.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.outbox.ready:
			for _, data := range c.outbox.drain() {
				if err := c.transport.WriteFrame(data); err != nil {
					c.logger.Debug("write failed", slog.Any("error", err))
					c.Close(CloseGoingAway, "write failed")
					return
				}
			}
		case <-heartbeat.C:
			if err := c.transport.Ping(); err != nil {
				c.logger.Debug("ping failed", slog.Any("error", err))
				c.Close(CloseGoingAway, "ping failed")
				return
			}
		case now := <-liveness.C:
			idle := c.idleFor(now)
			if idle >= s.cfg.LivenessTimeout {
				c.logger.Info("liveness timeout", slog.Duration("idle", idle))
				c.Close(CloseGoingAway, "liveness timeout")
				return
			}
			// Rearm for the moment c would have been silent long enough.
			liveness.Reset(s.cfg.LivenessTimeout - idle)
		}
	}
}

// Conn returns the live connection with the given id.
func (s *Supervisor) Conn(id string) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

// Stats returns current connection and room counts plus handshake totals.
func (s *Supervisor) Stats() SupervisorStats {
	s.mu.Lock()
	n := len(s.conns)
	s.mu.Unlock()
	return SupervisorStats{
		Connections: n,
		Rooms:       s.registry.RoomCount(),
		Accepted:    s.accepted.Load(),
		Rejected:    s.rejected.Load(),
	}
}

// Shutdown closes every live connection and waits for their loops to exit
// or for ctx to expire. New handshakes are refused from this point on.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close(CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
