package models

import "time"

// Session management
type LoginRequest struct {
	Login    string `json:"login" validate:"required,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Orders
type CreateOrderRequest struct {
	CustomerID string `json:"customerId" validate:"omitempty,max=64"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available confirmed arriving delivered cancelled"`
}

type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

type OrderResponse struct {
	ID                string    `json:"id"`
	CustomerID        string    `json:"customerId"`
	DeliveryPartnerID *string   `json:"deliveryPartnerId,omitempty"`
	Status            string    `json:"status"`
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type OrderUpdateResponse struct {
	Order      OrderResponse `json:"order"`
	Recipients int           `json:"recipients"`
}

// Realtime observability
type RealtimeStatsResponse struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Accepted    uint64 `json:"accepted"`
	Rejected    uint64 `json:"rejected"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// Error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
