package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropcart/backend/internal/db"
	"github.com/dropcart/backend/internal/logging"
	"github.com/dropcart/backend/internal/middleware"
	"github.com/dropcart/backend/internal/models"
	"github.com/dropcart/backend/internal/services"
)

// OrderManager is the order workflow behind the HTTP surface.
type OrderManager interface {
	Create(ctx context.Context, identity models.Identity, customerID string) (db.Order, error)
	Get(ctx context.Context, identity models.Identity, orderID string) (db.Order, error)
	UpdateStatus(ctx context.Context, identity models.Identity, orderID, status string) (*services.OrderUpdate, error)
	UpdateLocation(ctx context.Context, identity models.Identity, orderID string, latitude, longitude float64) (*services.OrderUpdate, error)
}

// OrderHandler serves order creation, lookup, and the two mutations that
// publish realtime events.
type OrderHandler struct {
	orders OrderManager
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderManager) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Create opens a new order for the caller.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())

	var req models.CreateOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	order, err := h.orders.Create(r.Context(), identity, req.CustomerID)
	if err != nil {
		h.writeOrderError(w, r, "failed to create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// Get returns one order the caller participates in.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())

	order, err := h.orders.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		h.writeOrderError(w, r, "failed to load order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// UpdateStatus moves an order through its lifecycle and reports how many
// live connections the status-changed event reached.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())

	var req models.UpdateOrderStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	update, err := h.orders.UpdateStatus(r.Context(), identity, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeOrderError(w, r, "failed to update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, models.OrderUpdateResponse{
		Order:      toOrderResponse(update.Order),
		Recipients: update.Report.Recipients,
	})
}

// UpdateLocation records the courier's position and broadcasts it.
func (h *OrderHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())

	var req models.UpdateLocationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	update, err := h.orders.UpdateLocation(r.Context(), identity, chi.URLParam(r, "id"), *req.Latitude, *req.Longitude)
	if err != nil {
		h.writeOrderError(w, r, "failed to update order location", err)
		return
	}
	writeJSON(w, http.StatusOK, models.OrderUpdateResponse{
		Order:      toOrderResponse(update.Order),
		Recipients: update.Report.Recipients,
	})
}

func (h *OrderHandler) writeOrderError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, services.ErrForbidden):
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventOrderForbidden, "order change not allowed",
			"order_id", chi.URLParam(r, "id"))
		writeError(w, http.StatusForbidden, "not allowed to modify this order")
	case errors.Is(err, services.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid status transition")
	default:
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, msg, err)
	}
}

func toOrderResponse(o db.Order) models.OrderResponse {
	resp := models.OrderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		UpdatedAt:  o.UpdatedAt,
	}
	if o.DeliveryPartnerID.Valid {
		resp.DeliveryPartnerID = &o.DeliveryPartnerID.String
	}
	if o.Latitude.Valid && o.Longitude.Valid {
		resp.Latitude = &o.Latitude.Float64
		resp.Longitude = &o.Longitude.Float64
	}
	return resp
}
