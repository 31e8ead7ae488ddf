package circulation

import (
	"context"
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
)

// ===== Clock & ID =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

const (
	dateLayout = "2006-01-02"
	// Issue term applied when the approver does not pick a due date.
	defaultLoanDays = 14
)

// ===== Service =====

// Service is the circulation engine: the only writer of books.qty_available
// outside the catalogue recompute. Actor identity is always an explicit
// parameter, never ambient state.
type Service struct {
	store LedgerStore
	clock Clock
	id    IDGen
}

func NewService(conn *sql.DB) *Service {
	return &Service{
		store: NewStore(conn),
		clock: realClock{},
		id:    ulidGen{},
	}
}

// RequestIssue creates a Requested row for (book, requester). Availability is
// only checked here, not reserved; the decrement happens at approval.
func (s *Service) RequestIssue(ctx context.Context, bookID, requesterID int64) (*LedgerResponse, error) {
	if bookID <= 0 {
		return nil, ErrInvalid("book_id is required")
	}
	if requesterID <= 0 {
		return nil, ErrInvalid("requester id is required")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}

	e := &LedgerEntry{
		IssueULID: idStr,
		BookID:    bookID,
		UserID:    requesterID,
		Status:    StatusRequested,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.ExecRequestIssue(ctx, e); err != nil {
		return nil, err
	}

	resp := buildLedgerResponse(e)
	return &resp, nil
}

// Approve transitions Requested -> Issued. Availability is re-checked inside
// the transaction; when the last copy is gone the row stays Requested and the
// approver gets NOT_AVAILABLE. First commit wins a contended last copy.
func (s *Service) Approve(ctx context.Context, issueID, approverID int64, dueDate *string) (*LedgerDetailResponse, error) {
	if issueID <= 0 {
		return nil, ErrInvalid("issue id is required")
	}
	if approverID <= 0 {
		return nil, ErrInvalid("approver id is required")
	}

	issueDate := s.clock.Now().Truncate(24 * time.Hour)
	due, err := s.resolveDueDate(dueDate, issueDate)
	if err != nil {
		return nil, err
	}

	if err := s.store.ExecApprove(ctx, issueID, approverID, issueDate, due); err != nil {
		return nil, err
	}
	return s.getDetail(ctx, issueID)
}

// Reject transitions Requested -> Rejected. No count change: nothing was
// taken at request time.
func (s *Service) Reject(ctx context.Context, issueID int64) (*LedgerDetailResponse, error) {
	if issueID <= 0 {
		return nil, ErrInvalid("issue id is required")
	}
	if err := s.store.ExecReject(ctx, issueID); err != nil {
		return nil, err
	}
	return s.getDetail(ctx, issueID)
}

// Return transitions Issued -> Returned and frees the copy.
func (s *Service) Return(ctx context.Context, issueID int64) (*LedgerDetailResponse, error) {
	if issueID <= 0 {
		return nil, ErrInvalid("issue id is required")
	}
	returnDate := s.clock.Now().Truncate(24 * time.Hour)
	if err := s.store.ExecReturn(ctx, issueID, returnDate); err != nil {
		return nil, err
	}
	return s.getDetail(ctx, issueID)
}

// DirectIssue is RequestIssue immediately followed by Approve, by the same
// actor: the row is born Issued and the copy is taken in the same transaction.
func (s *Service) DirectIssue(ctx context.Context, req DirectIssueRequest, approverID int64) (*LedgerResponse, error) {
	if req.BookID <= 0 || req.UserID <= 0 {
		return nil, ErrInvalid("book_id and user_id are required")
	}
	if approverID <= 0 {
		return nil, ErrInvalid("approver id is required")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}

	issueDate := s.clock.Now().Truncate(24 * time.Hour)
	due, err := s.resolveDueDate(req.DueDate, issueDate)
	if err != nil {
		return nil, err
	}

	e := &LedgerEntry{
		IssueULID: idStr,
		BookID:    req.BookID,
		UserID:    req.UserID,
		IssuedBy:  sql.NullInt64{Int64: approverID, Valid: true},
		Status:    StatusIssued,
		IssueDate: sql.NullTime{Time: issueDate, Valid: true},
		DueDate:   sql.NullTime{Time: due, Valid: true},
	}
	if err := s.store.ExecDirectIssue(ctx, e); err != nil {
		return nil, err
	}

	resp := buildLedgerResponse(e)
	return &resp, nil
}

// ===== Read surfaces =====

func (s *Service) ListPending(ctx context.Context) ([]LedgerDetailResponse, error) {
	items, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildDetails(items), nil
}

func (s *Service) ListIssued(ctx context.Context) ([]LedgerDetailResponse, error) {
	items, err := s.store.ListIssued(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildDetails(items), nil
}

func (s *Service) ListMine(ctx context.Context, userID int64, active bool) ([]LedgerDetailResponse, error) {
	if userID <= 0 {
		return nil, ErrInvalid("user id is required")
	}
	items, err := s.store.ListByUser(ctx, userID, active)
	if err != nil {
		return nil, err
	}
	return s.buildDetails(items), nil
}

func (s *Service) ListTransactions(ctx context.Context, f Filter, p Page) ([]LedgerDetailResponse, int64, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, ErrInvalid("unknown status filter")
	}
	items, total, err := s.store.ListTransactions(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	return s.buildDetails(items), total, nil
}

func (s *Service) Stats(ctx context.Context) (StatsResponse, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	return StatsResponse{PendingRequests: st.PendingRequests, IssuedOut: st.IssuedOut}, nil
}

func (s *Service) UserStats(ctx context.Context, userID int64) (UserStatsResponse, error) {
	if userID <= 0 {
		return UserStatsResponse{}, ErrInvalid("user id is required")
	}
	st, err := s.store.UserStats(ctx, userID)
	if err != nil {
		return UserStatsResponse{}, err
	}
	return UserStatsResponse{
		Issued:    st.Issued,
		Requested: st.Requested,
		Overdue:   st.Overdue,
		Returned:  st.Returned,
	}, nil
}

// ===== helpers =====

func (s *Service) resolveDueDate(dueDate *string, issueDate time.Time) (time.Time, error) {
	if dueDate == nil || *dueDate == "" {
		return issueDate.AddDate(0, 0, defaultLoanDays), nil
	}
	parsed, err := time.Parse(dateLayout, *dueDate)
	if err != nil {
		return time.Time{}, ErrInvalid("invalid due_date format, expected YYYY-MM-DD")
	}
	if parsed.Before(issueDate) {
		return time.Time{}, ErrInvalid("due_date must not be before the issue date")
	}
	return parsed, nil
}

func (s *Service) getDetail(ctx context.Context, issueID int64) (*LedgerDetailResponse, error) {
	d, err := s.store.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}
	resp := buildDetailResponse(d, s.clock.Now())
	return &resp, nil
}

func (s *Service) buildDetails(items []LedgerDetail) []LedgerDetailResponse {
	now := s.clock.Now()
	out := make([]LedgerDetailResponse, 0, len(items))
	for i := range items {
		out = append(out, buildDetailResponse(&items[i], now))
	}
	return out
}
