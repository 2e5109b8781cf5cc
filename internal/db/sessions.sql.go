package db

import (
	"context"
	"database/sql"
	"time"
)

const createSession = `
INSERT INTO sessions (id, user_id, role, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)
`

type CreateSessionParams struct {
	ID        string
	UserID    string
	Role      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx, createSession,
		arg.ID,
		arg.UserID,
		arg.Role,
		arg.CreatedAt,
		arg.ExpiresAt,
	)
	return err
}

const getSessionByID = `
SELECT id, user_id, role, created_at, expires_at, revoked_at
FROM sessions
WHERE id = ?
`

func (q *Queries) GetSessionByID(ctx context.Context, id string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSessionByID, id)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Role,
		&i.CreatedAt,
		&i.ExpiresAt,
		&i.RevokedAt,
	)
	return i, err
}

const revokeSession = `
UPDATE sessions SET revoked_at = ?
WHERE id = ? AND revoked_at IS NULL
`

type RevokeSessionParams struct {
	RevokedAt sql.NullTime
	ID        string
}

func (q *Queries) RevokeSession(ctx context.Context, arg RevokeSessionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, revokeSession, arg.RevokedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
