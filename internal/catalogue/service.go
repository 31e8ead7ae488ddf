package catalogue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ===== Error model =====

type Code string

const (
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodeHasActiveCirculation Code = "HAS_ACTIVE_CIRCULATION"
	CodeInternal             Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

// ErrHasActiveCirculation: a delete was blocked by Requested/Issued rows.
func ErrHasActiveCirculation() *APIError {
	return &APIError{
		Code:    CodeHasActiveCirculation,
		Message: "book has active issues or pending requests",
	}
}

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict, CodeHasActiveCirculation:
			return 409
		default:
			return 500
		}
	}
	return 500
}

// RecomputeAvailable derives the available count after a total-copies edit:
// max(0, total - issued). Issued copies stay out whatever the new total is.
func RecomputeAvailable(total, issued int) int {
	if avail := total - issued; avail > 0 {
		return avail
	}
	return 0
}

// ===== Service =====

type Service struct {
	store BookStore
}

func NewService(conn *sql.DB) *Service {
	return &Service{store: NewStore(conn)}
}

// CreateBook adds a title. All copies start available.
func (s *Service) CreateBook(ctx context.Context, in CreateBookRequest, actorID int64) (*BookResponse, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		return nil, ErrInvalid("title and author are required")
	}
	if in.QtyTotal < 1 {
		in.QtyTotal = 1
	}

	b := &Book{
		Title:        strings.TrimSpace(in.Title),
		Author:       strings.TrimSpace(in.Author),
		QtyTotal:     in.QtyTotal,
		QtyAvailable: in.QtyTotal,
		AddedBy:      sql.NullInt64{Int64: actorID, Valid: actorID > 0},
	}
	if in.ISBN != nil && *in.ISBN != "" {
		b.ISBN = sql.NullString{String: strings.TrimSpace(*in.ISBN), Valid: true}
	}
	if in.Publisher != nil && *in.Publisher != "" {
		b.Publisher = sql.NullString{String: *in.Publisher, Valid: true}
	}
	if in.CategoryID != nil {
		b.CategoryID = sql.NullInt64{Int64: *in.CategoryID, Valid: true}
	}

	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}
	return s.getBook(ctx, b.ID)
}

func (s *Service) GetBook(ctx context.Context, id int64) (*BookResponse, error) {
	if id <= 0 {
		return nil, ErrInvalid("book id is required")
	}
	return s.getBook(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, f SearchQuery, p Page) ([]BookResponse, int64, error) {
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BookResponse, 0, len(items))
	for i := range items {
		out = append(out, buildBookResponse(&items[i]))
	}
	return out, total, nil
}

// UpdateBook edits a title. A qty_total change re-derives qty_available.
func (s *Service) UpdateBook(ctx context.Context, id int64, in UpdateBookRequest) (*BookResponse, error) {
	if id <= 0 {
		return nil, ErrInvalid("book id is required")
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, ErrInvalid("title must not be empty")
	}
	if in.Author != nil && strings.TrimSpace(*in.Author) == "" {
		return nil, ErrInvalid("author must not be empty")
	}
	if in.QtyTotal != nil && *in.QtyTotal < 1 {
		return nil, ErrInvalid("qty_total must be >= 1")
	}

	if err := s.store.ExecUpdate(ctx, id, in); err != nil {
		return nil, err
	}
	return s.getBook(ctx, id)
}

// DeleteBook removes a title; rows in active circulation block it.
func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalid("book id is required")
	}
	return s.store.ExecDelete(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (StatsResponse, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	return StatsResponse{
		TotalTitles:     st.TotalTitles,
		TotalCopies:     st.TotalCopies,
		AvailableCopies: st.AvailableCopies,
	}, nil
}

func (s *Service) getBook(ctx context.Context, id int64) (*BookResponse, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildBookResponse(r)
	return &resp, nil
}
