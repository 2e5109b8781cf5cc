package db

import (
	"context"
	"time"
)

const createUser = `
INSERT INTO users (id, login, password_hash, password_salt, role, name, is_activated, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateUserParams struct {
	ID           string
	Login        string
	PasswordHash string
	PasswordSalt string
	Role         string
	Name         string
	IsActivated  bool
	CreatedAt    time.Time
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.Login,
		arg.PasswordHash,
		arg.PasswordSalt,
		arg.Role,
		arg.Name,
		arg.IsActivated,
		arg.CreatedAt,
	)
	return err
}

const getUserByLogin = `
SELECT id, login, password_hash, password_salt, role, name, is_activated, created_at
FROM users
WHERE login = ?
`

func (q *Queries) GetUserByLogin(ctx context.Context, login string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByLogin, login)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Login,
		&i.PasswordHash,
		&i.PasswordSalt,
		&i.Role,
		&i.Name,
		&i.IsActivated,
		&i.CreatedAt,
	)
	return i, err
}
