package db

import (
	"context"
	"database/sql"
	"time"
)

const createOrder = `
INSERT INTO orders (id, customer_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`

type CreateOrderParams struct {
	ID         string
	CustomerID string
	Status     string
	CreatedAt  time.Time
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) error {
	_, err := q.db.ExecContext(ctx, createOrder,
		arg.ID,
		arg.CustomerID,
		arg.Status,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const getOrderByID = `
SELECT id, customer_id, delivery_partner_id, status, latitude, longitude, created_at, updated_at
FROM orders
WHERE id = ?
`

func (q *Queries) GetOrderByID(ctx context.Context, id string) (Order, error) {
	row := q.db.QueryRowContext(ctx, getOrderByID, id)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.DeliveryPartnerID,
		&i.Status,
		&i.Latitude,
		&i.Longitude,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const orderExists = `SELECT COUNT(*) FROM orders WHERE id = ?`

func (q *Queries) OrderExists(ctx context.Context, id string) (int64, error) {
	row := q.db.QueryRowContext(ctx, orderExists, id)
	var count int64
	err := row.Scan(&count)
	return count, err
}

// The status guard makes a transition fail if another writer moved the
// order first.
const updateOrderStatus = `
UPDATE orders
SET status = ?,
    delivery_partner_id = COALESCE(?, delivery_partner_id),
    updated_at = ?
WHERE id = ? AND status = ?
`

type UpdateOrderStatusParams struct {
	Status            string
	DeliveryPartnerID sql.NullString
	UpdatedAt         time.Time
	ID                string
	ExpectedStatus    string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateOrderStatus,
		arg.Status,
		arg.DeliveryPartnerID,
		arg.UpdatedAt,
		arg.ID,
		arg.ExpectedStatus,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateOrderLocation = `
UPDATE orders
SET latitude = ?, longitude = ?, updated_at = ?
WHERE id = ? AND status IN ('confirmed', 'arriving')
`

type UpdateOrderLocationParams struct {
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
	UpdatedAt time.Time
	ID        string
}

func (q *Queries) UpdateOrderLocation(ctx context.Context, arg UpdateOrderLocationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateOrderLocation,
		arg.Latitude,
		arg.Longitude,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
