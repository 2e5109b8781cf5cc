package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/dropcart/backend/internal/config"
	"github.com/dropcart/backend/internal/database"
	"github.com/dropcart/backend/internal/db"
	"github.com/dropcart/backend/internal/logging"
	"github.com/dropcart/backend/internal/realtime"
	"github.com/dropcart/backend/internal/router"
	sentryscrub "github.com/dropcart/backend/internal/sentry"
	"github.com/dropcart/backend/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:                   cfg.SentryDSN,
			Environment:           cfg.SentryEnvironment,
			BeforeSend:            sentryscrub.ScrubEvent,
			BeforeSendTransaction: sentryscrub.ScrubTransaction,
		}); err != nil {
			slog.Error("failed to initialize sentry", slog.String("error", err.Error()))
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database
	sqlDB, err := database.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(sqlDB); err != nil {
		slog.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize queries and services
	queries := db.New(sqlDB)
	authService := services.NewAuthService(cfg.JWTSecret)
	sessionService := services.NewSessionService(queries, authService, cfg.SessionDuration)

	if cfg.AdminLogin != "" {
		if err := sessionService.EnsureAdmin(context.Background(), cfg.AdminLogin, cfg.AdminPassword); err != nil {
			slog.Error("failed to seed admin account", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Realtime layer
	logger := slog.Default().With(slog.String("component", "realtime"))
	bridge := realtime.NewBridge(sessionService, services.NewOrderAccess(queries), cfg.LookupTimeout)
	registry := realtime.NewRegistry(bridge)
	dispatcher := realtime.NewDispatcher(registry, logger)
	orderService := services.NewOrderService(queries, services.NewOrderRefService(queries.OrderExists), dispatcher)

	listener := realtime.NewListener(realtime.ListenerConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		WriteTimeout:   cfg.WriteTimeout,
	}, logger)
	supervisor := realtime.NewSupervisor(realtime.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		LivenessTimeout:   cfg.LivenessTimeout,
		QueueSize:         cfg.QueueSize,
		InboundPerSecond:  cfg.InboundPerSecond,
	}, listener, bridge, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- supervisor.Serve(ctx) }()

	// Create router
	r := router.New(cfg, router.Deps{
		Sessions:   sessionService,
		Orders:     orderService,
		Realtime:   listener,
		Supervisor: supervisor,
		Dispatcher: dispatcher,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("realtime supervisor stopped", slog.String("error", err.Error()))
		}
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop new upgrades first, then close live sockets with 1001, then drain HTTP.
	listener.Close()
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		slog.Warn("realtime connections did not close in time", slog.String("error", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server did not shut down cleanly", slog.String("error", err.Error()))
	}
}
