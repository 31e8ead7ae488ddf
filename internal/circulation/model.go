package circulation

import (
	"database/sql"
	"time"
)

// Status is the closed set of states a ledger row moves through:
// Requested -> Issued -> Returned, or Requested -> Rejected.
// Returned and Rejected are terminal.
type Status string

const (
	StatusRequested Status = "Requested"
	StatusIssued    Status = "Issued"
	StatusReturned  Status = "Returned"
	StatusRejected  Status = "Rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusIssued, StatusReturned, StatusRejected:
		return true
	}
	return false
}

// Active means the row still holds (or may come to hold) a copy.
func (s Status) Active() bool {
	return s == StatusRequested || s == StatusIssued
}

// LedgerEntry is one row of issued_books: a single request-to-return cycle.
// Rows are never deleted; terminal rows form the audit trail.
type LedgerEntry struct {
	ID         int64
	IssueULID  string
	BookID     int64
	UserID     int64
	IssuedBy   sql.NullInt64
	Status     Status
	IssueDate  sql.NullTime
	DueDate    sql.NullTime
	ReturnDate sql.NullTime
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsOverdue reports whether an issued copy is past due as of the given time.
// Terminal rows are never overdue, whatever their due date says.
func (e *LedgerEntry) IsOverdue(asOf time.Time) bool {
	return e.Status == StatusIssued && e.DueDate.Valid && e.DueDate.Time.Before(asOf)
}

// LedgerDetail is a ledger row joined with book and user columns for the
// approver and reporting listings.
type LedgerDetail struct {
	LedgerEntry
	BookTitle     string
	BookISBN      sql.NullString
	QtyAvailable  int
	UserName      string
	UserEmail     string
	LibrarianName sql.NullString
}

// Filter narrows the reporting listing.
type Filter struct {
	Status *Status
	Search string // matches book title, requester name, or ISBN
}

type Page struct {
	Limit  int
	Offset int
}

// Stats feeds the librarian dashboard.
type Stats struct {
	PendingRequests int64
	IssuedOut       int64
}

// UserStats feeds the student dashboard.
type UserStats struct {
	Issued    int64
	Requested int64
	Overdue   int64
	Returned  int64
}
