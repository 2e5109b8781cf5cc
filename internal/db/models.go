package db

import (
	"database/sql"
	"time"
)

type User struct {
	ID           string
	Login        string
	PasswordHash string
	PasswordSalt string
	Role         string
	Name         string
	IsActivated  bool
	CreatedAt    time.Time
}

type Session struct {
	ID        string
	UserID    string
	Role      string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt sql.NullTime
}

type Order struct {
	ID                string
	CustomerID        string
	DeliveryPartnerID sql.NullString
	Status            string
	Latitude          sql.NullFloat64
	Longitude         sql.NullFloat64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
