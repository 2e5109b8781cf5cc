package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropcart/backend/internal/models"
)

func newTestSessionService(t *testing.T) (*SessionService, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewSessionService(store, NewAuthService("test-secret"), 24*time.Hour)
	if _, err := svc.CreateUser(context.Background(), "cust@example.com", "password-123", models.RoleCustomer, "Cust"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return svc, store
}

func TestSessionService_LoginAndLookup(t *testing.T) {
	svc, _ := newTestSessionService(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, "cust@example.com", "password-123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Identity.Role != models.RoleCustomer {
		t.Errorf("Role = %v, want %v", result.Identity.Role, models.RoleCustomer)
	}
	if got := time.Until(result.ExpiresAt); got < 23*time.Hour || got > 25*time.Hour {
		t.Errorf("session expires in %v, want about 24h", got)
	}

	identity, err := svc.LookupSession(ctx, result.Token)
	if err != nil {
		t.Fatalf("LookupSession() error = %v", err)
	}
	if identity == nil {
		t.Fatal("LookupSession() returned no identity for a live session")
	}
	if *identity != result.Identity {
		t.Errorf("LookupSession() = %+v, want %+v", *identity, result.Identity)
	}
}

func TestSessionService_LoginFailures(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()

	inactive := store.users["cust@example.com"]
	inactive.Login = "inactive@example.com"
	inactive.IsActivated = false
	store.users[inactive.Login] = inactive

	tests := []struct {
		name     string
		login    string
		password string
	}{
		{"unknown login", "nobody@example.com", "password-123"},
		{"wrong password", "cust@example.com", "password-456"},
		{"deactivated account", "inactive@example.com", "password-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.login, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want %v", err, ErrInvalidCredentials)
			}
		})
	}
}

func TestSessionService_LookupRejectsDeadSessions(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()

	revoked, _ := svc.Login(ctx, "cust@example.com", "password-123")
	if err := svc.Logout(ctx, revoked.Identity); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	expired, _ := svc.Login(ctx, "cust@example.com", "password-123")
	s := store.sessions[expired.Identity.SessionID]
	s.ExpiresAt = time.Now().Add(-time.Minute)
	store.sessions[s.ID] = s

	// A validly signed token whose session row was never written.
	orphan, _ := svc.auth.GenerateToken(models.Identity{UserID: "u", Role: models.RoleAdmin, SessionID: "missing"}, time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"revoked", revoked.Token},
		{"expired row", expired.Token},
		{"unknown session", orphan},
		{"garbage", "not-a-jwt"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := svc.LookupSession(ctx, tt.token)
			if err != nil {
				t.Fatalf("LookupSession() error = %v", err)
			}
			if identity != nil {
				t.Errorf("LookupSession() = %+v, want nil", *identity)
			}
		})
	}
}

func TestSessionService_LookupStoreFailure(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()

	result, _ := svc.Login(ctx, "cust@example.com", "password-123")
	store.err = errors.New("database is locked")

	identity, err := svc.LookupSession(ctx, result.Token)
	if err == nil {
		t.Fatal("LookupSession() should return the store error")
	}
	if identity != nil {
		t.Errorf("LookupSession() = %+v, want nil", *identity)
	}
}

func TestSessionService_EnsureAdmin(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()

	if err := svc.EnsureAdmin(ctx, "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	first := store.users["admin@example.com"]
	if first.Role != string(models.RoleAdmin) {
		t.Errorf("Role = %v, want admin", first.Role)
	}

	if err := svc.EnsureAdmin(ctx, "admin@example.com", "other-password"); err != nil {
		t.Fatalf("EnsureAdmin() second call error = %v", err)
	}
	if store.users["admin@example.com"].ID != first.ID {
		t.Error("EnsureAdmin() replaced an existing admin")
	}

	result, err := svc.Login(ctx, "admin@example.com", "admin-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !result.Identity.IsAdmin() {
		t.Error("seeded admin does not log in as admin")
	}
}
