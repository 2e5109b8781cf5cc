package db_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropcart/backend/internal/database"
	"github.com/dropcart/backend/internal/db"
)

func newQueries(t *testing.T) *db.Queries {
	t.Helper()
	sqlDB, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.RunMigrations(sqlDB))
	return db.New(sqlDB)
}

func seedUser(t *testing.T, q *db.Queries, id, role string) {
	t.Helper()
	require.NoError(t, q.CreateUser(context.Background(), db.CreateUserParams{
		ID:           id,
		Login:        id + "@example.com",
		PasswordHash: "hash",
		PasswordSalt: "salt",
		Role:         role,
		IsActivated:  true,
		CreatedAt:    time.Now().UTC(),
	}))
}

func TestUsers(t *testing.T) {
	q := newQueries(t)
	ctx := context.Background()
	seedUser(t, q, "u1", "customer")

	user, err := q.GetUserByLogin(ctx, "u1@example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, "customer", user.Role)
	require.True(t, user.IsActivated)

	_, err = q.GetUserByLogin(ctx, "nobody@example.com")
	require.True(t, errors.Is(err, sql.ErrNoRows))

	err = q.CreateUser(ctx, db.CreateUserParams{ID: "u2", Login: "u1@example.com", Role: "customer", CreatedAt: time.Now()})
	require.Error(t, err, "login must be unique")
}

func TestSessions(t *testing.T) {
	q := newQueries(t)
	ctx := context.Background()
	seedUser(t, q, "u1", "customer")

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, q.CreateSession(ctx, db.CreateSessionParams{
		ID: "s1", UserID: "u1", Role: "customer", CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}))

	session, err := q.GetSessionByID(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "u1", session.UserID)
	require.True(t, session.ExpiresAt.Equal(now.Add(24*time.Hour)))
	require.False(t, session.RevokedAt.Valid)

	n, err := q.RevokeSession(ctx, db.RevokeSessionParams{RevokedAt: sql.NullTime{Time: now, Valid: true}, ID: "s1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = q.RevokeSession(ctx, db.RevokeSessionParams{RevokedAt: sql.NullTime{Time: now, Valid: true}, ID: "s1"})
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "already revoked")

	session, err = q.GetSessionByID(ctx, "s1")
	require.NoError(t, err)
	require.True(t, session.RevokedAt.Valid)
}

func TestOrderStatusGuard(t *testing.T) {
	q := newQueries(t)
	ctx := context.Background()
	seedUser(t, q, "c1", "customer")
	seedUser(t, q, "p1", "delivery_partner")

	now := time.Now().UTC()
	require.NoError(t, q.CreateOrder(ctx, db.CreateOrderParams{ID: "o1", CustomerID: "c1", Status: "available", CreatedAt: now}))

	n, err := q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{
		Status:            "confirmed",
		DeliveryPartnerID: sql.NullString{String: "p1", Valid: true},
		UpdatedAt:         now,
		ID:                "o1",
		ExpectedStatus:    "available",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// A second writer still expecting "available" loses.
	n, err = q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{
		Status: "cancelled", UpdatedAt: now, ID: "o1", ExpectedStatus: "available",
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	// A null partner leaves the assignment untouched.
	n, err = q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{
		Status: "arriving", UpdatedAt: now, ID: "o1", ExpectedStatus: "confirmed",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	order, err := q.GetOrderByID(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, "arriving", order.Status)
	require.Equal(t, "p1", order.DeliveryPartnerID.String)
}

func TestOrderLocation(t *testing.T) {
	q := newQueries(t)
	ctx := context.Background()
	seedUser(t, q, "c1", "customer")
	require.NoError(t, q.CreateOrder(ctx, db.CreateOrderParams{ID: "o1", CustomerID: "c1", Status: "confirmed", CreatedAt: time.Now()}))

	n, err := q.UpdateOrderLocation(ctx, db.UpdateOrderLocationParams{
		Latitude:  sql.NullFloat64{Float64: 52.52, Valid: true},
		Longitude: sql.NullFloat64{Float64: 13.405, Valid: true},
		UpdatedAt: time.Now(),
		ID:        "o1",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	order, err := q.GetOrderByID(ctx, "o1")
	require.NoError(t, err)
	require.InDelta(t, 52.52, order.Latitude.Float64, 1e-9)
	require.InDelta(t, 13.405, order.Longitude.Float64, 1e-9)

	n, err = q.UpdateOrderLocation(ctx, db.UpdateOrderLocationParams{UpdatedAt: time.Now(), ID: "missing"})
	require.NoError(t, err)
	require.Zero(t, n)

	// Orders outside transit keep their last position.
	require.NoError(t, q.CreateOrder(ctx, db.CreateOrderParams{ID: "o2", CustomerID: "c1", Status: "delivered", CreatedAt: time.Now()}))
	n, err = q.UpdateOrderLocation(ctx, db.UpdateOrderLocationParams{
		Latitude:  sql.NullFloat64{Float64: 1, Valid: true},
		Longitude: sql.NullFloat64{Float64: 2, Valid: true},
		UpdatedAt: time.Now(),
		ID:        "o2",
	})
	require.NoError(t, err)
	require.Zero(t, n)
	delivered, err := q.GetOrderByID(ctx, "o2")
	require.NoError(t, err)
	require.False(t, delivered.Latitude.Valid)

	_, err = q.GetOrderByID(ctx, "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}
