package catalogue

import (
	"database/sql"
	"time"
)

// Book is one catalogue entry: a title with total and available copy counts.
// qty_available is owned by the circulation engine; the only write this
// package makes to it is the recompute on a qty_total edit.
type Book struct {
	ID           int64
	Title        string
	Author       string
	ISBN         sql.NullString
	Publisher    sql.NullString
	CategoryID   sql.NullInt64
	QtyTotal     int
	QtyAvailable int
	AddedBy      sql.NullInt64
	CreatedAt    time.Time
}

type bookRow struct {
	Book
	CategoryName sql.NullString
}

// SearchQuery filters the catalogue listing.
type SearchQuery struct {
	Search     string // title, author, or ISBN LIKE match
	CategoryID *int64
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}

// Stats feeds the admin dashboard.
type Stats struct {
	TotalTitles     int64
	TotalCopies     int64
	AvailableCopies int64
}
