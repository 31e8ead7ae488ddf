package circulation

import "time"

// ===== Requests =====

type CreateRequestRequest struct {
	BookID int64 `json:"book_id" binding:"required"`
}

type ApproveRequest struct {
	// "2006-01-02"; defaults to issue date + 14 days when omitted
	DueDate *string `json:"due_date,omitempty"`
}

type DirectIssueRequest struct {
	BookID  int64   `json:"book_id" binding:"required"`
	UserID  int64   `json:"user_id" binding:"required"`
	DueDate *string `json:"due_date,omitempty"`
}

// ===== Responses =====

type LedgerResponse struct {
	ID          int64      `json:"id"`
	IssueULID   string     `json:"issue_ulid"`
	BookID      int64      `json:"book_id"`
	UserID      int64      `json:"user_id"`
	IssuedBy    *int64     `json:"issued_by,omitempty"`
	Status      Status     `json:"status"`
	IssueDate   *time.Time `json:"issue_date,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ReturnDate  *time.Time `json:"return_date,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type LedgerDetailResponse struct {
	LedgerResponse
	BookTitle     string  `json:"book_title"`
	BookISBN      *string `json:"book_isbn,omitempty"`
	QtyAvailable  int     `json:"qty_available"`
	UserName      string  `json:"user_name"`
	UserEmail     string  `json:"user_email"`
	LibrarianName *string `json:"librarian_name,omitempty"`
	Overdue       bool    `json:"overdue"`
}

type StatsResponse struct {
	PendingRequests int64 `json:"pending_requests"`
	IssuedOut       int64 `json:"issued_out"`
}

type UserStatsResponse struct {
	Issued    int64 `json:"issued"`
	Requested int64 `json:"requested"`
	Overdue   int64 `json:"overdue"`
	Returned  int64 `json:"returned"`
}

func buildLedgerResponse(e *LedgerEntry) LedgerResponse {
	resp := LedgerResponse{
		ID:          e.ID,
		IssueULID:   e.IssueULID,
		BookID:      e.BookID,
		UserID:      e.UserID,
		Status:      e.Status,
		RequestedAt: e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.IssuedBy.Valid {
		val := e.IssuedBy.Int64
		resp.IssuedBy = &val
	}
	if e.IssueDate.Valid {
		val := e.IssueDate.Time
		resp.IssueDate = &val
	}
	if e.DueDate.Valid {
		val := e.DueDate.Time
		resp.DueDate = &val
	}
	if e.ReturnDate.Valid {
		val := e.ReturnDate.Time
		resp.ReturnDate = &val
	}
	return resp
}

func buildDetailResponse(d *LedgerDetail, asOf time.Time) LedgerDetailResponse {
	resp := LedgerDetailResponse{
		LedgerResponse: buildLedgerResponse(&d.LedgerEntry),
		BookTitle:      d.BookTitle,
		QtyAvailable:   d.QtyAvailable,
		UserName:       d.UserName,
		UserEmail:      d.UserEmail,
		Overdue:        d.IsOverdue(asOf),
	}
	if d.BookISBN.Valid {
		val := d.BookISBN.String
		resp.BookISBN = &val
	}
	if d.LibrarianName.Valid {
		val := d.LibrarianName.String
		resp.LibrarianName = &val
	}
	return resp
}
