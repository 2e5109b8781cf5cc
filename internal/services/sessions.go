package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dropcart/backend/internal/crypto"
	"github.com/dropcart/backend/internal/db"
	"github.com/dropcart/backend/internal/models"
)

// ErrInvalidCredentials is returned for an unknown login, a wrong password,
// or a deactivated account. Callers cannot tell which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// SessionStore is the subset of db.Queries the SessionService needs.
type SessionStore interface {
	GetUserByLogin(ctx context.Context, login string) (db.User, error)
	CreateUser(ctx context.Context, arg db.CreateUserParams) error
	CreateSession(ctx context.Context, arg db.CreateSessionParams) error
	GetSessionByID(ctx context.Context, id string) (db.Session, error)
	RevokeSession(ctx context.Context, arg db.RevokeSessionParams) (int64, error)
}

// LoginResult is a freshly created session and its token.
type LoginResult struct {
	Token     string
	Identity  models.Identity
	ExpiresAt time.Time
}

// SessionService creates, resolves, and revokes login sessions.
type SessionService struct {
	store    SessionStore
	auth     *AuthService
	duration time.Duration
	now      func() time.Time
}

// NewSessionService creates a SessionService whose sessions last duration.
func NewSessionService(store SessionStore, auth *AuthService, duration time.Duration) *SessionService {
	return &SessionService{
		store:    store,
		auth:     auth,
		duration: duration,
		now:      time.Now,
	}
}

// Login verifies credentials and opens a new session.
func (s *SessionService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByLogin(ctx, login)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := crypto.VerifyPassword(password, user.PasswordHash, user.PasswordSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok || !user.IsActivated {
		return nil, ErrInvalidCredentials
	}

	role := models.Role(user.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("user %s has unknown role %q", user.ID, user.Role)
	}

	now := s.now().UTC()
	identity := models.Identity{UserID: user.ID, Role: role, SessionID: uuid.NewString()}
	expiresAt := now.Add(s.duration)

	if err := s.store.CreateSession(ctx, db.CreateSessionParams{
		ID:        identity.SessionID,
		UserID:    identity.UserID,
		Role:      string(identity.Role),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.auth.GenerateToken(identity, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	slog.Info("session created", slog.String("user_id", identity.UserID), slog.String("session_id", identity.SessionID))
	return &LoginResult{Token: token, Identity: identity, ExpiresAt: expiresAt}, nil
}

// Logout revokes the session behind identity. Sockets already authenticated
// with it stay open.
func (s *SessionService) Logout(ctx context.Context, identity models.Identity) error {
	_, err := s.store.RevokeSession(ctx, db.RevokeSessionParams{
		RevokedAt: sql.NullTime{Time: s.now().UTC(), Valid: true},
		ID:        identity.SessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	slog.Info("session revoked", slog.String("user_id", identity.UserID), slog.String("session_id", identity.SessionID))
	return nil
}

// LookupSession resolves a token to the identity of a live session. It
// returns nil, nil when the token is malformed, expired, revoked, or names
// no session, and an error only when the store fails.
func (s *SessionService) LookupSession(ctx context.Context, token string) (*models.Identity, error) {
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return nil, nil
	}

	session, err := s.store.GetSessionByID(ctx, claims.SessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.RevokedAt.Valid || !s.now().Before(session.ExpiresAt) || session.UserID != claims.UserID {
		return nil, nil
	}

	return &models.Identity{
		UserID:    session.UserID,
		Role:      models.Role(session.Role),
		SessionID: session.ID,
	}, nil
}

// EnsureAdmin creates an admin account with the given credentials unless a
// user with that login already exists.
func (s *SessionService) EnsureAdmin(ctx context.Context, login, password string) error {
	_, err := s.store.GetUserByLogin(ctx, login)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	if _, err := s.CreateUser(ctx, login, password, models.RoleAdmin, "Administrator"); err != nil {
		return err
	}
	slog.Info("admin account created", slog.String("login", login))
	return nil
}

// CreateUser registers an activated user with a hashed password.
func (s *SessionService) CreateUser(ctx context.Context, login, password string, role models.Role, name string) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	hash, salt, err := crypto.HashPassword(password)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.store.CreateUser(ctx, db.CreateUserParams{
		ID:           id,
		Login:        login,
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         string(role),
		Name:         name,
		IsActivated:  true,
		CreatedAt:    s.now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}
