package categories

import (
	"context"
	"database/sql"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) ListCategories(ctx context.Context, includeDisabled bool) ([]Category, error) {
	query := `SELECT category_id, name, is_disabled FROM categories`
	if !includeDisabled {
		query += ` WHERE is_disabled = 0`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.IsDisabled); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCategoryByID(ctx context.Context, id uint) (Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx,
		`SELECT category_id, name, is_disabled FROM categories WHERE category_id = ?`, id,
	).Scan(&c.CategoryID, &c.Name, &c.IsDisabled)
	return c, err
}

func (s *Store) CreateCategory(ctx context.Context, name string) (Category, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, is_disabled) VALUES (?, 0)`, name)
	if err != nil {
		return Category{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Category{}, err
	}
	return Category{CategoryID: uint(id), Name: name}, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id uint, name string, isDisabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, is_disabled = ? WHERE category_id = ?`,
		name, isDisabled, id)
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

// DisableCategory is a soft delete: books keep their category_id.
func (s *Store) DisableCategory(ctx context.Context, id uint) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET is_disabled = 1 WHERE category_id = ?`, id)
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
