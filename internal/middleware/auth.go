// Package middleware provides HTTP middleware for authentication, authorization,
// CORS handling, rate limiting, and request context management.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropcart/backend/internal/logging"
	"github.com/dropcart/backend/internal/models"
)

type contextKey string

const (
	// IdentityKey is the context key for storing the authenticated identity.
	IdentityKey contextKey = "identity"
)

// SessionResolver turns a bearer token into the identity of a live session.
// A nil identity with a nil error means the token is not valid.
type SessionResolver interface {
	LookupSession(ctx context.Context, token string) (*models.Identity, error)
}

// AuthMiddleware resolves the bearer token to a live session and adds the
// identity to the request context. Returns 401 for missing/invalid/revoked
// tokens and 503 when the session store cannot be reached.
func AuthMiddleware(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventMissingAuth, "missing authorization header")
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidAuthFmt, "invalid authorization header format")
				http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			identity, err := sessions.LookupSession(r.Context(), parts[1])
			if err != nil {
				logging.LogErrorWithStatus(r.Context(), http.StatusServiceUnavailable, "session lookup failed",
					logging.WrapError(err, "lookup session"))
				http.Error(w, `{"error":"session store unavailable"}`, http.StatusServiceUnavailable)
				return
			}
			if identity == nil {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidJWT, "invalid, expired, or revoked session token")
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, *identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnlyMiddleware restricts access to admin users only.
// Must be used after AuthMiddleware. Returns 403 for non-admin users.
func AdminOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentity(r.Context())
		if !ok || !identity.IsAdmin() {
			logging.LogSecurityEvent(r.Context(), logging.SecurityEventNonAdminAccess, "admin access required")
			http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity retrieves the authenticated identity from the request context.
// ok is false for unauthenticated requests.
func GetIdentity(ctx context.Context) (identity models.Identity, ok bool) {
	identity, ok = ctx.Value(IdentityKey).(models.Identity)
	return identity, ok
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}
