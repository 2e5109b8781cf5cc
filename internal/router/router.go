package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dropcart/backend/internal/config"
	"github.com/dropcart/backend/internal/handlers"
	"github.com/dropcart/backend/internal/middleware"
)

// SessionService authenticates requests and opens and closes sessions.
type SessionService interface {
	middleware.SessionResolver
	handlers.SessionManager
}

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Sessions   SessionService
	Orders     handlers.OrderManager
	Realtime   http.Handler // websocket upgrade endpoint
	Supervisor handlers.ConnectionStats
	Dispatcher handlers.DispatchStats
}

func New(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.NewRealIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Handlers
	configHandler := handlers.NewConfigHandler(cfg)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)
	orderHandler := handlers.NewOrderHandler(deps.Orders)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Supervisor, deps.Dispatcher)

	// Login and websocket upgrades are the two unauthenticated entry points
	// that touch the session store.
	loginRateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	upgradeRateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	auth := middleware.AuthMiddleware(deps.Sessions)

	// Realtime endpoint; the Supervisor authenticates the handshake itself.
	r.With(upgradeRateLimiter.Middleware).Get("/ws", deps.Realtime.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Public configuration (realtime heartbeat settings)
		r.Get("/config", configHandler.PublicConfig)

		// Session management
		r.Route("/sessions", func(r chi.Router) {
			r.With(loginRateLimiter.Middleware).Post("/", sessionHandler.Create)

			r.With(auth, middleware.UpdateRequestContextMiddleware).Delete("/current", sessionHandler.Delete)
		})

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Use(auth)
			r.Use(middleware.UpdateRequestContextMiddleware)

			r.Post("/", orderHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", orderHandler.Get)
				r.Patch("/status", orderHandler.UpdateStatus)
				r.Post("/location", orderHandler.UpdateLocation)
			})
		})

		// Admin-only observability
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth)
			r.Use(middleware.UpdateRequestContextMiddleware)
			r.Use(middleware.AdminOnlyMiddleware)
			r.Get("/realtime/stats", realtimeHandler.Stats)
		})
	})

	return r
}
