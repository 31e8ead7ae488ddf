package circulation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== test doubles =====

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("01TESTULID%016d", g.n), nil
}

type fakeBook struct {
	title        string
	qtyTotal     int
	qtyAvailable int
}

// fakeLedgerStore mirrors the transactional semantics of the SQL store:
// each Exec* either applies the whole transition or leaves state untouched.
type fakeLedgerStore struct {
	mu      sync.Mutex
	books   map[int64]*fakeBook
	entries []*LedgerEntry
	nextID  int64
	now     time.Time
}

func newFakeStore(now time.Time) *fakeLedgerStore {
	return &fakeLedgerStore{books: map[int64]*fakeBook{}, now: now}
}

func (s *fakeLedgerStore) addBook(id int64, title string, qty int) {
	s.books[id] = &fakeBook{title: title, qtyTotal: qty, qtyAvailable: qty}
}

func (s *fakeLedgerStore) find(issueID int64) *LedgerEntry {
	for _, e := range s.entries {
		if e.ID == issueID {
			return e
		}
	}
	return nil
}

func (s *fakeLedgerStore) hasActive(bookID, userID int64) bool {
	for _, e := range s.entries {
		if e.BookID == bookID && e.UserID == userID && e.Status.Active() {
			return true
		}
	}
	return false
}

func (s *fakeLedgerStore) ExecRequestIssue(_ context.Context, e *LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[e.BookID]
	if !ok {
		return ErrNotFound("book not found")
	}
	if b.qtyAvailable <= 0 {
		return ErrNotAvailable()
	}
	if s.hasActive(e.BookID, e.UserID) {
		return ErrDuplicateRequest()
	}
	s.nextID++
	e.ID = s.nextID
	e.Status = StatusRequested
	e.UpdatedAt = e.CreatedAt
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeLedgerStore) ExecApprove(_ context.Context, issueID, approverID int64, issueDate, dueDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.find(issueID)
	if row == nil {
		return ErrNotFound("issue record not found")
	}
	if row.Status != StatusRequested {
		return ErrInvalidState(row.Status, StatusRequested)
	}
	b := s.books[row.BookID]
	if b.qtyAvailable <= 0 {
		return ErrNotAvailable()
	}
	b.qtyAvailable--
	row.Status = StatusIssued
	row.IssuedBy.Int64, row.IssuedBy.Valid = approverID, true
	row.IssueDate.Time, row.IssueDate.Valid = issueDate, true
	row.DueDate.Time, row.DueDate.Valid = dueDate, true
	row.UpdatedAt = s.now
	return nil
}

func (s *fakeLedgerStore) ExecReject(_ context.Context, issueID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.find(issueID)
	if row == nil {
		return ErrNotFound("issue record not found")
	}
	if row.Status != StatusRequested {
		return ErrInvalidState(row.Status, StatusRequested)
	}
	row.Status = StatusRejected
	row.UpdatedAt = s.now
	return nil
}

func (s *fakeLedgerStore) ExecReturn(_ context.Context, issueID int64, returnDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.find(issueID)
	if row == nil {
		return ErrNotFound("issue record not found")
	}
	if row.Status != StatusIssued {
		return ErrInvalidState(row.Status, StatusIssued)
	}
	b := s.books[row.BookID]
	if b.qtyAvailable < b.qtyTotal {
		b.qtyAvailable++
	}
	row.Status = StatusReturned
	row.ReturnDate.Time, row.ReturnDate.Valid = returnDate, true
	row.UpdatedAt = s.now
	return nil
}

func (s *fakeLedgerStore) ExecDirectIssue(_ context.Context, e *LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[e.BookID]
	if !ok {
		return ErrNotFound("book not found")
	}
	if s.hasActive(e.BookID, e.UserID) {
		return ErrDuplicateRequest()
	}
	if b.qtyAvailable <= 0 {
		return ErrNotAvailable()
	}
	b.qtyAvailable--
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = s.now
	e.UpdatedAt = s.now
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeLedgerStore) detail(e *LedgerEntry) LedgerDetail {
	b := s.books[e.BookID]
	return LedgerDetail{
		LedgerEntry:  *e,
		BookTitle:    b.title,
		QtyAvailable: b.qtyAvailable,
		UserName:     fmt.Sprintf("user-%d", e.UserID),
		UserEmail:    fmt.Sprintf("user-%d@example.com", e.UserID),
	}
}

func (s *fakeLedgerStore) GetByID(_ context.Context, issueID int64) (*LedgerDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.find(issueID)
	if row == nil {
		return nil, ErrNotFound("issue record not found")
	}
	d := s.detail(row)
	return &d, nil
}

func (s *fakeLedgerStore) ListPending(_ context.Context) ([]LedgerDetail, error) {
	return s.listByStatus(StatusRequested), nil
}

func (s *fakeLedgerStore) ListIssued(_ context.Context) ([]LedgerDetail, error) {
	return s.listByStatus(StatusIssued), nil
}

func (s *fakeLedgerStore) listByStatus(st Status) []LedgerDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LedgerDetail
	for _, e := range s.entries {
		if e.Status == st {
			out = append(out, s.detail(e))
		}
	}
	return out
}

func (s *fakeLedgerStore) ListByUser(_ context.Context, userID int64, active bool) ([]LedgerDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LedgerDetail
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if active && !e.Status.Active() {
			continue
		}
		if !active && e.Status.Active() {
			continue
		}
		out = append(out, s.detail(e))
	}
	return out, nil
}

func (s *fakeLedgerStore) ListTransactions(_ context.Context, f Filter, _ Page) ([]LedgerDetail, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LedgerDetail
	for _, e := range s.entries {
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		out = append(out, s.detail(e))
	}
	return out, int64(len(out)), nil
}

func (s *fakeLedgerStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, e := range s.entries {
		switch e.Status {
		case StatusRequested:
			st.PendingRequests++
		case StatusIssued:
			st.IssuedOut++
		}
	}
	return st, nil
}

func (s *fakeLedgerStore) UserStats(_ context.Context, userID int64) (UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st UserStats
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		switch e.Status {
		case StatusRequested:
			st.Requested++
		case StatusIssued:
			st.Issued++
			if e.IsOverdue(s.now) {
				st.Overdue++
			}
		case StatusReturned:
			st.Returned++
		}
	}
	return st, nil
}

// availabilityHolds checks qty_available == qty_total - count(Issued) per book.
func (s *fakeLedgerStore) availabilityHolds() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	issued := map[int64]int{}
	for _, e := range s.entries {
		if e.Status == StatusIssued {
			issued[e.BookID]++
		}
	}
	for id, b := range s.books {
		if b.qtyAvailable != b.qtyTotal-issued[id] {
			return false
		}
	}
	return true
}

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestService(store *fakeLedgerStore) *Service {
	return &Service{store: store, clock: fixedClock{t: testNow}, id: &seqIDGen{}}
}

func apiCode(t *testing.T, err error) Code {
	t.Helper()
	var api *APIError
	require.ErrorAs(t, err, &api)
	return api.Code
}

// ===== tests =====

func TestRequestApproveReturnRoundTrip(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "The Go Programming Language", 2)
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, req.Status)
	assert.NotEmpty(t, req.IssueULID)
	// Requests never reserve a copy.
	assert.Equal(t, 2, store.books[1].qtyAvailable)

	det, err := svc.Approve(ctx, req.ID, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, det.Status)
	require.NotNil(t, det.IssuedBy)
	assert.Equal(t, int64(7), *det.IssuedBy)
	wantIssue := testNow.Truncate(24 * time.Hour)
	require.NotNil(t, det.IssueDate)
	assert.Equal(t, wantIssue, *det.IssueDate)
	require.NotNil(t, det.DueDate)
	assert.Equal(t, wantIssue.AddDate(0, 0, 14), *det.DueDate)
	assert.Equal(t, 1, store.books[1].qtyAvailable)

	det, err = svc.Return(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, det.Status)
	require.NotNil(t, det.ReturnDate)
	assert.Equal(t, 2, store.books[1].qtyAvailable)
	assert.True(t, store.availabilityHolds())
}

func TestApproveDueDate(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Clean Architecture", 1)
	svc := newTestService(store)
	ctx := context.Background()

	t.Run("explicit due date", func(t *testing.T) {
		req, err := svc.RequestIssue(ctx, 1, 1)
		require.NoError(t, err)
		due := "2025-04-01"
		det, err := svc.Approve(ctx, req.ID, 7, &due)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), *det.DueDate)
		_, err = svc.Return(ctx, req.ID)
		require.NoError(t, err)
	})

	t.Run("bad format", func(t *testing.T) {
		req, err := svc.RequestIssue(ctx, 1, 2)
		require.NoError(t, err)
		due := "01-04-2025"
		_, err = svc.Approve(ctx, req.ID, 7, &due)
		assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
		// The row must still be approvable afterwards.
		_, err = svc.Approve(ctx, req.ID, 7, nil)
		require.NoError(t, err)
		_, err = svc.Return(ctx, req.ID)
		require.NoError(t, err)
	})

	t.Run("due before issue date", func(t *testing.T) {
		req, err := svc.RequestIssue(ctx, 1, 3)
		require.NoError(t, err)
		due := "2025-03-01"
		_, err = svc.Approve(ctx, req.ID, 7, &due)
		assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
	})
}

func TestRequestIssueNotAvailable(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Out of Stock", 1)
	store.books[1].qtyAvailable = 0
	svc := newTestService(store)

	_, err := svc.RequestIssue(context.Background(), 1, 42)
	assert.Equal(t, CodeNotAvailable, apiCode(t, err))
}

func TestRequestIssueUnknownBook(t *testing.T) {
	store := newFakeStore(testNow)
	svc := newTestService(store)

	_, err := svc.RequestIssue(context.Background(), 99, 42)
	assert.Equal(t, CodeNotFound, apiCode(t, err))
}

func TestDuplicateActiveRequest(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Popular Book", 3)
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)

	_, err = svc.RequestIssue(ctx, 1, 42)
	assert.Equal(t, CodeDuplicateRequest, apiCode(t, err))

	// Still active after approval, so still blocked.
	_, err = svc.Approve(ctx, req.ID, 7, nil)
	require.NoError(t, err)
	_, err = svc.RequestIssue(ctx, 1, 42)
	assert.Equal(t, CodeDuplicateRequest, apiCode(t, err))

	// A settled cycle frees the pair for a new request.
	_, err = svc.Return(ctx, req.ID)
	require.NoError(t, err)
	_, err = svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)
}

func TestApproveLastCopyLoser(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Single Copy", 1)
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.RequestIssue(ctx, 1, 10)
	require.NoError(t, err)
	second, err := svc.RequestIssue(ctx, 1, 11)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, first.ID, 7, nil)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, second.ID, 7, nil)
	assert.Equal(t, CodeNotAvailable, apiCode(t, err))

	// The loser stays Requested and nothing was decremented for it.
	det, err := svc.store.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, det.Status)
	assert.Equal(t, 0, store.books[1].qtyAvailable)
	assert.True(t, store.availabilityHolds())
}

func TestConcurrentApprovalsOneWinner(t *testing.T) {
	const requesters = 16
	store := newFakeStore(testNow)
	store.addBook(1, "Contended Copy", 1)
	svc := newTestService(store)
	ctx := context.Background()

	ids := make([]int64, 0, requesters)
	for i := 0; i < requesters; i++ {
		req, err := svc.RequestIssue(ctx, 1, int64(100+i))
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, requesters)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = svc.Approve(ctx, id, 7, nil)
		}(i, id)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		require.Equal(t, CodeNotAvailable, apiCode(t, err))
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, requesters-1, lost)
	assert.Equal(t, 0, store.books[1].qtyAvailable)
	assert.True(t, store.availabilityHolds())
}

func TestTerminalStatesAreFinal(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "State Machine", 2)
	svc := newTestService(store)
	ctx := context.Background()

	returned, err := svc.RequestIssue(ctx, 1, 1)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, returned.ID, 7, nil)
	require.NoError(t, err)
	_, err = svc.Return(ctx, returned.ID)
	require.NoError(t, err)

	rejected, err := svc.RequestIssue(ctx, 1, 2)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, rejected.ID)
	require.NoError(t, err)

	for _, id := range []int64{returned.ID, rejected.ID} {
		_, err = svc.Approve(ctx, id, 7, nil)
		assert.Equal(t, CodeInvalidState, apiCode(t, err))
		_, err = svc.Reject(ctx, id)
		assert.Equal(t, CodeInvalidState, apiCode(t, err))
		_, err = svc.Return(ctx, id)
		assert.Equal(t, CodeInvalidState, apiCode(t, err))
	}
	// Rejection never touched the count; return freed the issued copy.
	assert.Equal(t, 2, store.books[1].qtyAvailable)
	assert.True(t, store.availabilityHolds())
}

func TestReturnRequiresIssued(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Not Yet Issued", 1)
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestIssue(ctx, 1, 1)
	require.NoError(t, err)

	_, err = svc.Return(ctx, req.ID)
	assert.Equal(t, CodeInvalidState, apiCode(t, err))
	assert.Equal(t, 1, store.books[1].qtyAvailable)
}

func TestDirectIssue(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Walk-in Loan", 1)
	svc := newTestService(store)
	ctx := context.Background()

	resp, err := svc.DirectIssue(ctx, DirectIssueRequest{BookID: 1, UserID: 42}, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, resp.Status)
	require.NotNil(t, resp.IssuedBy)
	assert.Equal(t, int64(7), *resp.IssuedBy)
	require.NotNil(t, resp.DueDate)
	assert.Equal(t, testNow.Truncate(24*time.Hour).AddDate(0, 0, 14), *resp.DueDate)
	assert.Equal(t, 0, store.books[1].qtyAvailable)

	// Same user, same book: the active-row guard applies here too.
	_, err = svc.DirectIssue(ctx, DirectIssueRequest{BookID: 1, UserID: 42}, 7)
	assert.Equal(t, CodeDuplicateRequest, apiCode(t, err))

	// Another borrower just finds the shelf empty.
	_, err = svc.DirectIssue(ctx, DirectIssueRequest{BookID: 1, UserID: 43}, 7)
	assert.Equal(t, CodeNotAvailable, apiCode(t, err))
	assert.True(t, store.availabilityHolds())
}

func TestListMineActiveFilter(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Book A", 2)
	store.addBook(2, "Book B", 2)
	svc := newTestService(store)
	ctx := context.Background()

	a, err := svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, a.ID, 7, nil)
	require.NoError(t, err)
	_, err = svc.Return(ctx, a.ID)
	require.NoError(t, err)

	_, err = svc.RequestIssue(ctx, 2, 42)
	require.NoError(t, err)

	active, err := svc.ListMine(ctx, 42, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, StatusRequested, active[0].Status)

	// History carries terminal rows only; the open Requested row stays out.
	history, err := svc.ListMine(ctx, 42, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StatusReturned, history[0].Status)
}

func TestListMineHistoryExcludesActiveRows(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Open Request", 1)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)

	history, err := svc.ListMine(ctx, 42, false)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOverdueFlagOnIssuedListing(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Late Book", 1)

	// Issue with the normal clock, then read with a clock past the due date.
	svc := newTestService(store)
	ctx := context.Background()
	req, err := svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, 7, nil)
	require.NoError(t, err)

	later := &Service{store: store, clock: fixedClock{t: testNow.AddDate(0, 0, 20)}, id: &seqIDGen{}}
	issued, err := later.ListIssued(ctx)
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.True(t, issued[0].Overdue)

	// Before the due date it is not overdue.
	issued, err = svc.ListIssued(ctx)
	require.NoError(t, err)
	assert.False(t, issued[0].Overdue)
}

func TestStatsAndUserStats(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Book A", 3)
	store.addBook(2, "Book B", 3)
	svc := newTestService(store)
	ctx := context.Background()

	a, err := svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, a.ID, 7, nil)
	require.NoError(t, err)

	_, err = svc.RequestIssue(ctx, 2, 42)
	require.NoError(t, err)

	b, err := svc.RequestIssue(ctx, 1, 43)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, b.ID, 7, nil)
	require.NoError(t, err)
	_, err = svc.Return(ctx, b.ID)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingRequests)
	assert.Equal(t, int64(1), stats.IssuedOut)

	mine, err := svc.UserStats(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, UserStatsResponse{Issued: 1, Requested: 1}, mine)

	other, err := svc.UserStats(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, UserStatsResponse{Returned: 1}, other)
}

func TestListTransactionsStatusFilter(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Book A", 2)
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestIssue(ctx, 1, 42)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, 7, nil)
	require.NoError(t, err)

	st := StatusIssued
	items, total, err := svc.ListTransactions(ctx, Filter{Status: &st}, Page{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, StatusIssued, items[0].Status)

	bad := Status("Lost")
	_, _, err = svc.ListTransactions(ctx, Filter{Status: &bad}, Page{Limit: 50})
	assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
}

func TestInvalidArguments(t *testing.T) {
	store := newFakeStore(testNow)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.RequestIssue(ctx, 0, 42)
	assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
	_, err = svc.Approve(ctx, 0, 7, nil)
	assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
	_, err = svc.Approve(ctx, 1, 0, nil)
	assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
	_, err = svc.DirectIssue(ctx, DirectIssueRequest{BookID: 1}, 7)
	assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
	_, err = svc.ListMine(ctx, 0, true)
	assert.Equal(t, CodeInvalidArgument, apiCode(t, err))
}
