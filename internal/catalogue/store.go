package catalogue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"

	"LIBRIS-backend/internal/platform/db"
)

// BookStore is the storage contract of the catalogue manager.
type BookStore interface {
	Insert(ctx context.Context, b *Book) error
	GetByID(ctx context.Context, id int64) (*bookRow, error)
	List(ctx context.Context, q SearchQuery, p Page) ([]bookRow, int64, error)
	ExecUpdate(ctx context.Context, id int64, in UpdateBookRequest) error
	ExecDelete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) Insert(ctx context.Context, b *Book) error {
	const q = `
	INSERT INTO books
	(title, author, isbn, publisher, category_id, qty_total, qty_available, added_by, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`
	res, err := s.db.ExecContext(ctx, q,
		b.Title, b.Author, b.ISBN, b.Publisher, b.CategoryID,
		b.QtyTotal, b.QtyAvailable, b.AddedBy,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) {
			switch me.Number {
			case 1062: // duplicate key
				return ErrConflict("isbn already exists")
			case 1452: // foreign key constraint fails
				return ErrInvalid("invalid category_id")
			}
		}
		return err
	}
	id, _ := res.LastInsertId()
	b.ID = id
	return nil
}

const bookSelect = `
	SELECT b.id, b.title, b.author, b.isbn, b.publisher, b.category_id,
	b.qty_total, b.qty_available, b.added_by, b.created_at,
	c.name
	FROM books b
	LEFT JOIN categories c ON c.category_id = b.category_id`

func scanBookRow(row *sql.Row) (*bookRow, error) {
	var r bookRow
	err := row.Scan(
		&r.ID, &r.Title, &r.Author, &r.ISBN, &r.Publisher, &r.CategoryID,
		&r.QtyTotal, &r.QtyAvailable, &r.AddedBy, &r.CreatedAt,
		&r.CategoryName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("book not found")
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*bookRow, error) {
	return scanBookRow(s.db.QueryRowContext(ctx, bookSelect+` WHERE b.id = ?`, id))
}

func (s *Store) List(ctx context.Context, f SearchQuery, p Page) ([]bookRow, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(bookSelect)
	sb.WriteString(` WHERE 1=1`)

	args := []any{}
	if f.Search != "" {
		sb.WriteString(` AND (b.title LIKE ? OR b.author LIKE ? OR b.isbn LIKE ?)`)
		term := "%" + f.Search + "%"
		args = append(args, term, term, term)
	}
	if f.CategoryID != nil {
		sb.WriteString(` AND b.category_id = ?`)
		args = append(args, *f.CategoryID)
	}

	order := "b.created_at DESC"
	if strings.ToLower(p.Order) == "title" {
		order = "b.title ASC"
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY %s`, order))

	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []bookRow
	for rows.Next() {
		var r bookRow
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Author, &r.ISBN, &r.Publisher, &r.CategoryID,
			&r.QtyTotal, &r.QtyAvailable, &r.AddedBy, &r.CreatedAt,
			&r.CategoryName,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cb := strings.Builder{}
	cb.WriteString(`SELECT COUNT(*) FROM books b WHERE 1=1`)
	argsCnt := []any{}
	if f.Search != "" {
		cb.WriteString(` AND (b.title LIKE ? OR b.author LIKE ? OR b.isbn LIKE ?)`)
		term := "%" + f.Search + "%"
		argsCnt = append(argsCnt, term, term, term)
	}
	if f.CategoryID != nil {
		cb.WriteString(` AND b.category_id = ?`)
		argsCnt = append(argsCnt, *f.CategoryID)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cb.String(), argsCnt...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// ExecUpdate edits book fields. A qty_total change re-derives qty_available
// from the count of currently Issued ledger rows, inside the same tx as the
// edit so a racing approval cannot slip between the count and the write.
func (s *Store) ExecUpdate(ctx context.Context, id int64, in UpdateBookRequest) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var curTotal int
		err := tx.QueryRowContext(ctx, `SELECT qty_total FROM books WHERE id = ? FOR UPDATE`, id).Scan(&curTotal)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound("book not found")
			}
			return err
		}

		sets := []string{}
		args := []any{}
		if in.Title != nil {
			sets = append(sets, "title = ?")
			args = append(args, *in.Title)
		}
		if in.Author != nil {
			sets = append(sets, "author = ?")
			args = append(args, *in.Author)
		}
		if in.ISBN != nil {
			sets = append(sets, "isbn = ?")
			args = append(args, nullIfEmpty(*in.ISBN))
		}
		if in.Publisher != nil {
			sets = append(sets, "publisher = ?")
			args = append(args, nullIfEmpty(*in.Publisher))
		}
		if in.CategoryID != nil {
			sets = append(sets, "category_id = ?")
			args = append(args, *in.CategoryID)
		}
		if in.QtyTotal != nil && *in.QtyTotal != curTotal {
			var issued int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM issued_books WHERE book_id = ? AND status = 'Issued'`, id,
			).Scan(&issued)
			if err != nil {
				return err
			}
			sets = append(sets, "qty_total = ?", "qty_available = ?")
			args = append(args, *in.QtyTotal, RecomputeAvailable(*in.QtyTotal, issued))
		}
		if len(sets) == 0 {
			return nil
		}

		q := fmt.Sprintf(`UPDATE books SET %s WHERE id = ?`, strings.Join(sets, ", "))
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			var me *mysql.MySQLError
			if errors.As(err, &me) {
				switch me.Number {
				case 1062:
					return ErrConflict("isbn already exists")
				case 1452:
					return ErrInvalid("invalid category_id")
				}
			}
			return err
		}
		return nil
	})
}

// ExecDelete removes a book unless any ledger row still holds it.
func (s *Store) ExecDelete(ctx context.Context, id int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var active int
		err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issued_books
		WHERE book_id = ? AND status IN ('Requested', 'Issued')`, id).Scan(&active)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrHasActiveCirculation()
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if aff, _ := res.RowsAffected(); aff == 0 {
			return ErrNotFound("book not found")
		}
		return nil
	})
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(qty_total), 0), COALESCE(SUM(qty_available), 0)
	FROM books`).Scan(&st.TotalTitles, &st.TotalCopies, &st.AvailableCopies)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
