package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dropcart/backend/internal/db"
	"github.com/dropcart/backend/internal/models"
	"github.com/dropcart/backend/internal/realtime"
)

// memStore is an in-memory SessionStore and OrderStore.
type memStore struct {
	mu       sync.Mutex
	users    map[string]db.User // by login
	sessions map[string]db.Session
	orders   map[string]db.Order
	err      error

	// afterGetOrder runs once after the next GetOrderByID, outside the lock.
	afterGetOrder func()
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]db.User),
		sessions: make(map[string]db.Session),
		orders:   make(map[string]db.Order),
	}
}

func (m *memStore) GetUserByLogin(ctx context.Context, login string) (db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return db.User{}, m.err
	}
	u, ok := m.users[login]
	if !ok {
		return db.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memStore) CreateUser(ctx context.Context, arg db.CreateUserParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[arg.Login]; ok {
		return errors.New("UNIQUE constraint failed: users.login")
	}
	m.users[arg.Login] = db.User(arg)
	return nil
}

func (m *memStore) CreateSession(ctx context.Context, arg db.CreateSessionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[arg.ID] = db.Session{
		ID:        arg.ID,
		UserID:    arg.UserID,
		Role:      arg.Role,
		CreatedAt: arg.CreatedAt,
		ExpiresAt: arg.ExpiresAt,
	}
	return nil
}

func (m *memStore) GetSessionByID(ctx context.Context, id string) (db.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return db.Session{}, m.err
	}
	s, ok := m.sessions[id]
	if !ok {
		return db.Session{}, sql.ErrNoRows
	}
	return s, nil
}

func (m *memStore) RevokeSession(ctx context.Context, arg db.RevokeSessionParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[arg.ID]
	if !ok || s.RevokedAt.Valid {
		return 0, nil
	}
	s.RevokedAt = arg.RevokedAt
	m.sessions[arg.ID] = s
	return 1, nil
}

func (m *memStore) CreateOrder(ctx context.Context, arg db.CreateOrderParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[arg.ID] = db.Order{
		ID:         arg.ID,
		CustomerID: arg.CustomerID,
		Status:     arg.Status,
		CreatedAt:  arg.CreatedAt,
		UpdatedAt:  arg.CreatedAt,
	}
	return nil
}

func (m *memStore) OrderExists(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; ok {
		return 1, nil
	}
	return 0, nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id string) (db.Order, error) {
	m.mu.Lock()
	hook := m.afterGetOrder
	m.afterGetOrder = nil
	err := m.err
	o, ok := m.orders[id]
	m.mu.Unlock()

	if hook != nil {
		defer hook()
	}
	if err != nil {
		return db.Order{}, err
	}
	if !ok {
		return db.Order{}, sql.ErrNoRows
	}
	return o, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg db.UpdateOrderStatusParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || o.Status != arg.ExpectedStatus {
		return 0, nil
	}
	o.Status = arg.Status
	if arg.DeliveryPartnerID.Valid {
		o.DeliveryPartnerID = arg.DeliveryPartnerID
	}
	o.UpdatedAt = arg.UpdatedAt
	m.orders[arg.ID] = o
	return 1, nil
}

func (m *memStore) UpdateOrderLocation(ctx context.Context, arg db.UpdateOrderLocationParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || (o.Status != models.OrderStatusConfirmed && o.Status != models.OrderStatusArriving) {
		return 0, nil
	}
	o.Latitude = arg.Latitude
	o.Longitude = arg.Longitude
	o.UpdatedAt = arg.UpdatedAt
	m.orders[arg.ID] = o
	return 1, nil
}

type published struct {
	orderID string
	kind    string
	payload any
}

// recordingPublisher captures every Publish call.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(orderID, kind string, payload any) (realtime.DeliveryReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return realtime.DeliveryReport{OrderID: orderID}, p.err
	}
	p.events = append(p.events, published{orderID: orderID, kind: kind, payload: payload})
	return realtime.DeliveryReport{OrderID: orderID, Recipients: 1}, nil
}
