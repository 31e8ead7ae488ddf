package auth

import (
	"context"
	"database/sql"
	"errors"
)

// Account is the slice of the users table the auth flow needs.
type Account struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, a *Account, phone *string) error
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore {
	return &Store{db: db}
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	const q = `
SELECT id, name, email, password_hash, role
FROM users
WHERE email = ?
LIMIT 1
`
	var a Account
	err := s.db.QueryRowContext(ctx, q, email).Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account, phone *string) error {
	const q = `
INSERT INTO users (name, email, password_hash, role, phone, created_at)
VALUES (?, ?, ?, ?, ?, NOW(6))
`
	var ph any
	if phone != nil && *phone != "" {
		ph = *phone
	}
	res, err := s.db.ExecContext(ctx, q, a.Name, a.Email, a.PasswordHash, a.Role, ph)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}
