// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port               string
	DatabasePath       string
	JWTSecret          string
	SessionDuration    time.Duration
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	TrustedProxies     []string
	SentryDSN          string
	SentryEnvironment  string
	AdminLogin         string
	AdminPassword      string

	// Realtime layer
	HeartbeatInterval time.Duration
	LivenessTimeout   time.Duration
	LookupTimeout     time.Duration
	QueueSize         int
	WriteTimeout      time.Duration
	MaxFrameBytes     int64
	InboundPerSecond  float64
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	origins := getStringSliceEnv("CORS_ALLOWED_ORIGINS")
	if origins == nil {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./dropcart.db"),
		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"), // #nosec G101 -- intentional dev default
		SessionDuration:    getDurationEnv("SESSION_DURATION", 24*time.Hour),
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: origins,
		TrustedProxies:     getStringSliceEnv("TRUSTED_PROXIES"),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		SentryEnvironment:  getEnv("SENTRY_ENVIRONMENT", "production"),
		AdminLogin:         getEnv("ADMIN_LOGIN", ""),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),

		HeartbeatInterval: getDurationEnv("REALTIME_HEARTBEAT_INTERVAL", 10*time.Second),
		LivenessTimeout:   getDurationEnv("REALTIME_LIVENESS_TIMEOUT", 15*time.Second),
		LookupTimeout:     getDurationEnv("REALTIME_LOOKUP_TIMEOUT", 5*time.Second),
		QueueSize:         getIntEnv("REALTIME_QUEUE_SIZE", 64),
		WriteTimeout:      getDurationEnv("REALTIME_WRITE_TIMEOUT", 5*time.Second),
		MaxFrameBytes:     int64(getIntEnv("REALTIME_MAX_FRAME_BYTES", 4096)),
		InboundPerSecond:  getFloatEnv("REALTIME_INBOUND_PER_SECOND", 10),
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.SessionDuration <= 0 {
		errs = append(errs, errors.New("SESSION_DURATION must be positive"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("REALTIME_HEARTBEAT_INTERVAL must be positive"))
	}
	if c.LivenessTimeout <= c.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("REALTIME_LIVENESS_TIMEOUT (%s) must be greater than REALTIME_HEARTBEAT_INTERVAL (%s)",
			c.LivenessTimeout, c.HeartbeatInterval))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, errors.New("REALTIME_LOOKUP_TIMEOUT must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("REALTIME_QUEUE_SIZE must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("REALTIME_WRITE_TIMEOUT must be positive"))
	}
	if c.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("REALTIME_MAX_FRAME_BYTES must be positive"))
	}
	if c.InboundPerSecond <= 0 {
		errs = append(errs, errors.New("REALTIME_INBOUND_PER_SECOND must be positive"))
	}
	if (c.AdminLogin == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_LOGIN and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

func getStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
