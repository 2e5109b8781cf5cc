package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dropcart/backend/internal/logging"
)

// SessionCookieName is the cookie the browser client carries its session token in.
const SessionCookieName = "session"

// ListenerConfig configures the websocket Listener.
type ListenerConfig struct {
	AllowedOrigins []string      // empty allows any origin
	MaxFrameBytes  int64         // inbound frames larger than this close the connection
	WriteTimeout   time.Duration // deadline for each outbound write
	HandoffTimeout time.Duration // how long an upgraded socket waits for the Supervisor
}

// Listener upgrades HTTP requests to websockets and queues them for the
// Supervisor's Accept. It implements both http.Handler and Acceptor.
type Listener struct {
	cfg      ListenerConfig
	upgrader websocket.Upgrader
	pending  chan Handshake
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

// NewListener creates a Listener.
func NewListener(cfg ListenerConfig, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = 5 * time.Second
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return &Listener{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
		pending: make(chan Handshake),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// ServeHTTP upgrades the request and hands the socket to Accept. The
// credential is taken from the "token" query parameter, a Bearer
// Authorization header, or the session cookie, in that order.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := credentialFromRequest(r)

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		l.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	if l.cfg.MaxFrameBytes > 0 {
		ws.SetReadLimit(l.cfg.MaxFrameBytes)
	}

	hs := Handshake{
		Transport:  newWSTransport(ws, l.cfg.WriteTimeout),
		Credential: credential,
		RemoteAddr: logging.ExtractClientIP(r),
	}

	timer := time.NewTimer(l.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case l.pending <- hs:
	case <-l.done:
		_ = hs.Transport.Close(CloseGoingAway, "server shutting down")
	case <-timer.C:
		l.logger.Warn("no supervisor accepted connection in time", slog.String("remote_addr", hs.RemoteAddr))
		_ = hs.Transport.Close(CloseTryAgainLater, ReasonUnavailable)
	}
}

// Accept returns the next upgraded connection.
func (l *Listener) Accept(ctx context.Context) (Handshake, error) {
	select {
	case hs := <-l.pending:
		return hs, nil
	case <-l.done:
		return Handshake{}, ErrListenerClosed
	case <-ctx.Done():
		return Handshake{}, ctx.Err()
	}
}

// Close stops accepting. Sockets already handed off are unaffected.
func (l *Listener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func credentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// wsTransport adapts a gorilla websocket connection to Transport.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if errors.Is(err, websocket.ErrReadLimit) {
		return nil, ErrFrameTooLarge
	}
	return data, err
}

func (t *wsTransport) WriteFrame(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) SetPongHandler(fn func()) {
	t.conn.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

// Close sends a close frame, best effort, and closes the socket.
func (t *wsTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
