package users

import (
	"context"
	"database/sql"
	"strings"
)

type UserStore interface {
	List(ctx context.Context, f Filter, p Page) ([]User, int, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Insert(ctx context.Context, u *User) error
	ExecUpdate(ctx context.Context, id int64, sets []string, args []any) error
	ExecDelete(ctx context.Context, id int64) error
	HasActiveCirculation(ctx context.Context, id int64) (bool, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const userSelect = `
	SELECT id, name, email, password_hash, role, phone, created_at
	FROM users`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) List(ctx context.Context, f Filter, p Page) ([]User, int, error) {
	where := []string{}
	args := []any{}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		where = append(where, "(name LIKE ? OR email LIKE ?)")
		args = append(args, like, like)
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := userSelect + cond + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id))
}

func (s *Store) Insert(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, phone, created_at)
		VALUES (?, ?, ?, ?, ?, NOW(6))`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.Phone)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// ExecUpdate applies a pre-built dynamic SET list. Callers own the validation.
func (s *Store) ExecUpdate(ctx context.Context, id int64, sets []string, args []any) error {
	q := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, append(args, id)...)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		// RowsAffected is 0 for a no-op update too, so check existence separately.
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
	}
	return nil
}

func (s *Store) ExecDelete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) HasActiveCirculation(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issued_books
		WHERE user_id = ? AND status IN ('Requested','Issued')`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
