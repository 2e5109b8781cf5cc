package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropcart/backend/internal/logging"
	"github.com/dropcart/backend/internal/middleware"
	"github.com/dropcart/backend/internal/models"
	"github.com/dropcart/backend/internal/services"
)

// SessionManager opens and closes login sessions.
type SessionManager interface {
	Login(ctx context.Context, login, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, identity models.Identity) error
}

// SessionHandler manages the login session lifecycle.
type SessionHandler struct {
	sessions SessionManager
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create logs a user in and returns a session token. The same token
// authenticates the realtime websocket.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.sessions.Login(r.Context(), req.Login, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadCredentials, "login rejected")
		writeError(w, http.StatusUnauthorized, "invalid login or password")
		return
	}
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create session", err)
		return
	}

	writeJSON(w, http.StatusCreated, models.LoginResponse{
		Token:     result.Token,
		UserID:    result.Identity.UserID,
		Role:      result.Identity.Role,
		ExpiresAt: result.ExpiresAt,
	})
}

// Delete revokes the caller's session. Already connected websockets are
// not disconnected.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.sessions.Logout(r.Context(), identity); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to revoke session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
