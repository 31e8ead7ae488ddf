package circulation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"LIBRIS-backend/internal/platform/db"
)

// LedgerStore is the storage contract of the circulation engine. Every
// check-and-mutate pair runs inside one transaction: either the whole
// transition commits, or nothing changes.
type LedgerStore interface {
	ExecRequestIssue(ctx context.Context, e *LedgerEntry) error
	ExecApprove(ctx context.Context, issueID, approverID int64, issueDate, dueDate time.Time) error
	ExecReject(ctx context.Context, issueID int64) error
	ExecReturn(ctx context.Context, issueID int64, returnDate time.Time) error
	ExecDirectIssue(ctx context.Context, e *LedgerEntry) error

	GetByID(ctx context.Context, issueID int64) (*LedgerDetail, error)
	ListPending(ctx context.Context) ([]LedgerDetail, error)
	ListIssued(ctx context.Context) ([]LedgerDetail, error)
	ListByUser(ctx context.Context, userID int64, active bool) ([]LedgerDetail, error)
	ListTransactions(ctx context.Context, f Filter, p Page) ([]LedgerDetail, int64, error)
	Stats(ctx context.Context) (Stats, error)
	UserStats(ctx context.Context, userID int64) (UserStats, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

// lockLedgerRow locks one issued_books row for the duration of the tx.
func lockLedgerRow(ctx context.Context, tx db.DBTX, issueID int64) (*LedgerEntry, error) {
	const q = `
	SELECT id, issue_ulid, book_id, user_id, issued_by, status, issue_date, due_date, return_date, created_at, updated_at
	FROM issued_books WHERE id = ? FOR UPDATE`
	var e LedgerEntry
	err := tx.QueryRowContext(ctx, q, issueID).Scan(
		&e.ID, &e.IssueULID, &e.BookID, &e.UserID, &e.IssuedBy, &e.Status,
		&e.IssueDate, &e.DueDate, &e.ReturnDate, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("issue record not found")
		}
		return nil, err
	}
	return &e, nil
}

// lockBookRow locks the catalogue row so concurrent transitions for the same
// book serialize here.
func lockBookRow(ctx context.Context, tx db.DBTX, bookID int64) (qtyAvailable int, err error) {
	const q = `SELECT qty_available FROM books WHERE id = ? FOR UPDATE`
	if err = tx.QueryRowContext(ctx, q, bookID).Scan(&qtyAvailable); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound("book not found")
		}
		return 0, err
	}
	return qtyAvailable, nil
}

// decrementAvailable takes one copy, conditionally: zero affected rows means
// the last copy was gone by the time this transaction got here.
func decrementAvailable(ctx context.Context, tx db.DBTX, bookID int64) error {
	const q = `UPDATE books SET qty_available = qty_available - 1 WHERE id = ? AND qty_available > 0`
	res, err := tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return ErrNotAvailable()
	}
	return nil
}

// incrementAvailable frees one copy. Capped at qty_total; the cap never fires
// while the availability invariant holds.
func incrementAvailable(ctx context.Context, tx db.DBTX, bookID int64) error {
	const q = `UPDATE books SET qty_available = LEAST(qty_available + 1, qty_total) WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return ErrInternal("failed to update books.qty_available")
	}
	return nil
}

// hasActiveRow: at most one Requested/Issued row may exist per (book, user).
func hasActiveRow(ctx context.Context, tx db.DBTX, bookID, userID int64) (bool, error) {
	const q = `
	SELECT 1 FROM issued_books
	WHERE book_id = ? AND user_id = ? AND status IN ('Requested', 'Issued')
	LIMIT 1`
	var one int
	err := tx.QueryRowContext(ctx, q, bookID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ---- Transactional methods ----

// ExecRequestIssue inserts a Requested row. Availability is checked but NOT
// decremented here; it is re-checked, and taken, at approval time.
func (s *Store) ExecRequestIssue(ctx context.Context, e *LedgerEntry) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		qty, err := lockBookRow(ctx, tx, e.BookID)
		if err != nil {
			return err
		}
		if qty <= 0 {
			return ErrNotAvailable()
		}

		dup, err := hasActiveRow(ctx, tx, e.BookID, e.UserID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateRequest()
		}

		const q = `
		INSERT INTO issued_books (issue_ulid, book_id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, 'Requested', CURRENT_TIMESTAMP(6), CURRENT_TIMESTAMP(6))`
		res, err := tx.ExecContext(ctx, q, e.IssueULID, e.BookID, e.UserID)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		e.ID = id
		e.Status = StatusRequested
		return nil
	})
}

// ExecApprove moves a Requested row to Issued and takes one copy, atomically.
// On NOT_AVAILABLE the row stays Requested and nothing is written.
func (s *Store) ExecApprove(ctx context.Context, issueID, approverID int64, issueDate, dueDate time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		row, err := lockLedgerRow(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if row.Status != StatusRequested {
			return ErrInvalidState(row.Status, StatusRequested)
		}

		if err := decrementAvailable(ctx, tx, row.BookID); err != nil {
			return err
		}

		const q = `
		UPDATE issued_books
		SET status = 'Issued', issued_by = ?, issue_date = ?, due_date = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?`
		res, err := tx.ExecContext(ctx, q, approverID, issueDate, dueDate, issueID)
		if err != nil {
			return err
		}
		if aff, _ := res.RowsAffected(); aff != 1 {
			return ErrInternal("failed to update issued_books.status")
		}
		return nil
	})
}

// ExecReject moves a Requested row to Rejected. The book count never changes:
// nothing was decremented at request time.
func (s *Store) ExecReject(ctx context.Context, issueID int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		row, err := lockLedgerRow(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if row.Status != StatusRequested {
			return ErrInvalidState(row.Status, StatusRequested)
		}

		const q = `UPDATE issued_books SET status = 'Rejected', updated_at = CURRENT_TIMESTAMP(6) WHERE id = ?`
		res, err := tx.ExecContext(ctx, q, issueID)
		if err != nil {
			return err
		}
		if aff, _ := res.RowsAffected(); aff != 1 {
			return ErrInternal("failed to update issued_books.status")
		}
		return nil
	})
}

// ExecReturn moves an Issued row to Returned and frees the copy, atomically.
func (s *Store) ExecReturn(ctx context.Context, issueID int64, returnDate time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		row, err := lockLedgerRow(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if row.Status != StatusIssued {
			return ErrInvalidState(row.Status, StatusIssued)
		}

		if err := incrementAvailable(ctx, tx, row.BookID); err != nil {
			return err
		}

		const q = `
		UPDATE issued_books
		SET status = 'Returned', return_date = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?`
		res, err := tx.ExecContext(ctx, q, returnDate, issueID)
		if err != nil {
			return err
		}
		if aff, _ := res.RowsAffected(); aff != 1 {
			return ErrInternal("failed to update issued_books.status")
		}
		return nil
	})
}

// ExecDirectIssue inserts a row already in Issued and takes one copy in the
// same transaction. Skips the Requested state entirely.
func (s *Store) ExecDirectIssue(ctx context.Context, e *LedgerEntry) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := lockBookRow(ctx, tx, e.BookID); err != nil {
			return err
		}

		dup, err := hasActiveRow(ctx, tx, e.BookID, e.UserID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateRequest()
		}

		if err := decrementAvailable(ctx, tx, e.BookID); err != nil {
			return err
		}

		const q = `
		INSERT INTO issued_books
		(issue_ulid, book_id, user_id, issued_by, status, issue_date, due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'Issued', ?, ?, CURRENT_TIMESTAMP(6), CURRENT_TIMESTAMP(6))`
		res, err := tx.ExecContext(ctx, q, e.IssueULID, e.BookID, e.UserID, e.IssuedBy, e.IssueDate, e.DueDate)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		e.ID = id
		e.Status = StatusIssued
		return nil
	})
}

// ---- Queries ----

const detailSelect = `
	SELECT
	ib.id, ib.issue_ulid, ib.book_id, ib.user_id, ib.issued_by, ib.status,
	ib.issue_date, ib.due_date, ib.return_date, ib.created_at, ib.updated_at,
	b.title, b.isbn, b.qty_available,
	u.name, u.email,
	l.name
	FROM issued_books ib
	JOIN books b ON b.id = ib.book_id
	JOIN users u ON u.id = ib.user_id
	LEFT JOIN users l ON l.id = ib.issued_by`

func scanDetailRows(rows *sql.Rows) ([]LedgerDetail, error) {
	defer rows.Close()

	var out []LedgerDetail
	for rows.Next() {
		var d LedgerDetail
		if err := rows.Scan(
			&d.ID, &d.IssueULID, &d.BookID, &d.UserID, &d.IssuedBy, &d.Status,
			&d.IssueDate, &d.DueDate, &d.ReturnDate, &d.CreatedAt, &d.UpdatedAt,
			&d.BookTitle, &d.BookISBN, &d.QtyAvailable,
			&d.UserName, &d.UserEmail,
			&d.LibrarianName,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, issueID int64) (*LedgerDetail, error) {
	q := detailSelect + ` WHERE ib.id = ?`
	rows, err := s.db.QueryContext(ctx, q, issueID)
	if err != nil {
		return nil, err
	}
	items, err := scanDetailRows(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound("issue record not found")
	}
	return &items[0], nil
}

// ListPending: Requested rows for the approver queue, oldest request first.
func (s *Store) ListPending(ctx context.Context) ([]LedgerDetail, error) {
	q := detailSelect + ` WHERE ib.status = 'Requested' ORDER BY ib.created_at ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return scanDetailRows(rows)
}

// ListIssued: rows currently out, nearest due date first.
func (s *Store) ListIssued(ctx context.Context) ([]LedgerDetail, error) {
	q := detailSelect + ` WHERE ib.status = 'Issued' ORDER BY ib.due_date ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return scanDetailRows(rows)
}

// ListByUser: the requester's own rows. active=true selects the open rows
// newest-request first; active=false the terminal history by last activity.
func (s *Store) ListByUser(ctx context.Context, userID int64, active bool) ([]LedgerDetail, error) {
	var q string
	if active {
		q = detailSelect + ` WHERE ib.user_id = ? AND ib.status IN ('Requested', 'Issued') ORDER BY ib.created_at DESC`
	} else {
		q = detailSelect + ` WHERE ib.user_id = ? AND ib.status IN ('Returned', 'Rejected') ORDER BY ib.updated_at DESC`
	}
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanDetailRows(rows)
}

// ListTransactions: the full ledger for reporting, most recent activity first.
// Runs read-only so the page and its total come from one snapshot.
func (s *Store) ListTransactions(ctx context.Context, f Filter, p Page) ([]LedgerDetail, int64, error) {
	var items []LedgerDetail
	var total int64

	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		sb := strings.Builder{}
		sb.WriteString(detailSelect)
		sb.WriteString(` WHERE 1=1`)

		args := []any{}
		if f.Status != nil {
			sb.WriteString(` AND ib.status = ?`)
			args = append(args, string(*f.Status))
		}
		if f.Search != "" {
			sb.WriteString(` AND (b.title LIKE ? OR u.name LIKE ? OR b.isbn LIKE ?)`)
			term := "%" + f.Search + "%"
			args = append(args, term, term, term)
		}
		sb.WriteString(` ORDER BY ib.updated_at DESC`)

		if p.Limit <= 0 {
			p.Limit = 50
		}
		if p.Offset < 0 {
			p.Offset = 0
		}
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, p.Limit, p.Offset)

		rows, err := tx.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		items, err = scanDetailRows(rows)
		if err != nil {
			return err
		}

		cb := strings.Builder{}
		cb.WriteString(`SELECT COUNT(*) FROM issued_books ib JOIN books b ON b.id = ib.book_id JOIN users u ON u.id = ib.user_id WHERE 1=1`)
		argsCnt := []any{}
		if f.Status != nil {
			cb.WriteString(` AND ib.status = ?`)
			argsCnt = append(argsCnt, string(*f.Status))
		}
		if f.Search != "" {
			cb.WriteString(` AND (b.title LIKE ? OR u.name LIKE ? OR b.isbn LIKE ?)`)
			term := "%" + f.Search + "%"
			argsCnt = append(argsCnt, term, term, term)
		}
		return tx.QueryRowContext(ctx, cb.String(), argsCnt...).Scan(&total)
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
	SELECT
	COALESCE(SUM(status = 'Requested'), 0),
	COALESCE(SUM(status = 'Issued'), 0)
	FROM issued_books`).Scan(&st.PendingRequests, &st.IssuedOut)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *Store) UserStats(ctx context.Context, userID int64) (UserStats, error) {
	var st UserStats
	err := s.db.QueryRowContext(ctx, `
	SELECT
	COALESCE(SUM(status = 'Issued'), 0),
	COALESCE(SUM(status = 'Requested'), 0),
	COALESCE(SUM(status = 'Issued' AND due_date < CURDATE()), 0),
	COALESCE(SUM(status = 'Returned'), 0)
	FROM issued_books WHERE user_id = ?`, userID).Scan(
		&st.Issued, &st.Requested, &st.Overdue, &st.Returned,
	)
	if err != nil {
		return UserStats{}, err
	}
	return st, nil
}
