package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dropcart/backend/internal/db"
	"github.com/dropcart/backend/internal/logging"
	"github.com/dropcart/backend/internal/models"
	"github.com/dropcart/backend/internal/realtime"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("not allowed to modify this order")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// OrderReader loads a single order.
type OrderReader interface {
	GetOrderByID(ctx context.Context, id string) (db.Order, error)
}

// OrderStore is the subset of db.Queries the OrderService needs.
type OrderStore interface {
	OrderReader
	CreateOrder(ctx context.Context, arg db.CreateOrderParams) error
	UpdateOrderStatus(ctx context.Context, arg db.UpdateOrderStatusParams) (int64, error)
	UpdateOrderLocation(ctx context.Context, arg db.UpdateOrderLocationParams) (int64, error)
}

// Publisher sends an event to everyone following an order.
type Publisher interface {
	Publish(orderID, kind string, payload any) (realtime.DeliveryReport, error)
}

// StatusChangedPayload is the payload of a status-changed event.
type StatusChangedPayload struct {
	Status            string `json:"status"`
	PreviousStatus    string `json:"previousStatus"`
	DeliveryPartnerID string `json:"deliveryPartnerId,omitempty"`
}

// LocationUpdatedPayload is the payload of a location-updated event.
type LocationUpdatedPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OrderUpdate is a committed order change and how far its event got.
type OrderUpdate struct {
	Order  db.Order
	Report realtime.DeliveryReport
}

// OrderService owns order mutations. Each successful mutation is committed
// to the store first and then published to the order's room.
type OrderService struct {
	store     OrderStore
	refs      *OrderRefService
	publisher Publisher
	now       func() time.Time
}

// NewOrderService creates an OrderService.
func NewOrderService(store OrderStore, refs *OrderRefService, publisher Publisher) *OrderService {
	return &OrderService{
		store:     store,
		refs:      refs,
		publisher: publisher,
		now:       time.Now,
	}
}

// OrderAccess answers whether an identity may follow an order.
type OrderAccess struct {
	store OrderReader
}

// NewOrderAccess creates an OrderAccess over store.
func NewOrderAccess(store OrderReader) *OrderAccess {
	return &OrderAccess{store: store}
}

// OwnsOrder reports whether identity may follow orderID: its customer, its
// assigned delivery partner, or any admin. A missing order is owned by no one.
func (a *OrderAccess) OwnsOrder(ctx context.Context, identity models.Identity, orderID string) (bool, error) {
	order, err := a.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load order: %w", err)
	}
	return isParticipant(identity, order), nil
}

func isParticipant(identity models.Identity, order db.Order) bool {
	switch identity.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return order.CustomerID == identity.UserID
	case models.RoleDeliveryPartner:
		return order.DeliveryPartnerID.Valid && order.DeliveryPartnerID.String == identity.UserID
	}
	return false
}

// Create opens a new order in the available state. Customers always order
// for themselves; admins may order on behalf of customerID.
func (s *OrderService) Create(ctx context.Context, identity models.Identity, customerID string) (db.Order, error) {
	switch {
	case identity.Role == models.RoleCustomer:
		customerID = identity.UserID
	case identity.IsAdmin() && customerID != "":
	default:
		return db.Order{}, ErrForbidden
	}

	id, err := s.refs.Generate(ctx)
	if err != nil {
		return db.Order{}, err
	}
	if err := s.store.CreateOrder(ctx, db.CreateOrderParams{
		ID:         id,
		CustomerID: customerID,
		Status:     models.OrderStatusAvailable,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		return db.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	slog.Info("order created", slog.String("order_id", id), slog.String("customer_id", customerID))
	return s.load(ctx, id)
}

// UpdateStatus moves orderID to status if identity may make that transition,
// then publishes a status-changed event.
func (s *OrderService) UpdateStatus(ctx context.Context, identity models.Identity, orderID, status string) (*OrderUpdate, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	partner, err := checkTransition(identity, order, status)
	if err != nil {
		return nil, err
	}

	n, err := s.store.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{
		Status:            status,
		DeliveryPartnerID: partner,
		UpdatedAt:         s.now().UTC(),
		ID:                orderID,
		ExpectedStatus:    order.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if n == 0 {
		// Another writer moved the order after we read it.
		return nil, ErrInvalidTransition
	}

	updated, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	report := s.publish(orderID, realtime.KindStatusChanged, StatusChangedPayload{
		Status:            updated.Status,
		PreviousStatus:    order.Status,
		DeliveryPartnerID: updated.DeliveryPartnerID.String,
	})
	slog.Info("order status changed",
		slog.String("order_id", orderID),
		slog.String("from", order.Status),
		slog.String("to", updated.Status),
		slog.String("user_id", identity.UserID),
		slog.Int("recipients", report.Recipients))
	return &OrderUpdate{Order: updated, Report: report}, nil
}

// checkTransition returns the partner to assign, if any, when identity may
// move order to status.
func checkTransition(identity models.Identity, order db.Order, status string) (sql.NullString, error) {
	none := sql.NullString{}
	isAssigned := order.DeliveryPartnerID.Valid && order.DeliveryPartnerID.String == identity.UserID

	switch {
	case order.Status == models.OrderStatusAvailable && status == models.OrderStatusConfirmed:
		switch {
		case identity.Role == models.RoleDeliveryPartner:
			return sql.NullString{String: identity.UserID, Valid: true}, nil
		case identity.IsAdmin():
			return none, nil
		}
		return none, ErrForbidden

	case order.Status == models.OrderStatusConfirmed && status == models.OrderStatusArriving,
		order.Status == models.OrderStatusArriving && status == models.OrderStatusDelivered:
		if identity.IsAdmin() || (identity.Role == models.RoleDeliveryPartner && isAssigned) {
			return none, nil
		}
		return none, ErrForbidden

	case (order.Status == models.OrderStatusAvailable || order.Status == models.OrderStatusConfirmed) &&
		status == models.OrderStatusCancelled:
		if identity.IsAdmin() || (identity.Role == models.RoleCustomer && order.CustomerID == identity.UserID) {
			return none, nil
		}
		return none, ErrForbidden
	}
	return none, ErrInvalidTransition
}

// UpdateLocation records the courier position for an order in transit and
// publishes a location-updated event.
func (s *OrderService) UpdateLocation(ctx context.Context, identity models.Identity, orderID string, latitude, longitude float64) (*OrderUpdate, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	isAssigned := order.DeliveryPartnerID.Valid && order.DeliveryPartnerID.String == identity.UserID
	if !identity.IsAdmin() && !(identity.Role == models.RoleDeliveryPartner && isAssigned) {
		return nil, ErrForbidden
	}
	if order.Status != models.OrderStatusConfirmed && order.Status != models.OrderStatusArriving {
		return nil, ErrInvalidTransition
	}

	n, err := s.store.UpdateOrderLocation(ctx, db.UpdateOrderLocationParams{
		Latitude:  sql.NullFloat64{Float64: latitude, Valid: true},
		Longitude: sql.NullFloat64{Float64: longitude, Valid: true},
		UpdatedAt: s.now().UTC(),
		ID:        orderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update order location: %w", err)
	}
	// The order left transit between the read and the write.
	if n == 0 {
		return nil, ErrInvalidTransition
	}

	updated, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	report := s.publish(orderID, realtime.KindLocationUpdated, LocationUpdatedPayload{
		Latitude:  latitude,
		Longitude: longitude,
	})
	return &OrderUpdate{Order: updated, Report: report}, nil
}

func (s *OrderService) load(ctx context.Context, orderID string) (db.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return db.Order{}, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

// publish logs failures only; the change is already committed.
func (s *OrderService) publish(orderID, kind string, payload any) realtime.DeliveryReport {
	report, err := s.publisher.Publish(orderID, kind, payload)
	if err != nil {
		slog.Error("failed to publish order event",
			slog.String("order_id", orderID),
			slog.String("kind", kind),
			slog.Any("error", logging.WrapError(err, "publish")))
	}
	return report
}

// Get returns orderID if identity may see it.
func (s *OrderService) Get(ctx context.Context, identity models.Identity, orderID string) (db.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return db.Order{}, err
	}
	if !isParticipant(identity, order) {
		// Hide existence from non-participants.
		return db.Order{}, ErrOrderNotFound
	}
	return order, nil
}
