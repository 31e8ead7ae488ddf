package categories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
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

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		default:
			return 500
		}
	}
	return 500
}

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(db *sql.DB) *Service { return &Service{db: db, store: NewStore(db)} }

// ===== categories =====
func parseBoolish(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "1" || s == "true" || s == "yes" || s == "all"
}

func normalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalid("name is required")
	}
	return name, nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

func (s *Service) ListCategories(ctx context.Context, all string) ([]Category, error) {
	includeDisabled := parseBoolish(all)
	return s.store.ListCategories(ctx, includeDisabled)
}

func (s *Service) GetCategory(ctx context.Context, id uint) (*Category, error) {
	c, err := s.store.GetCategoryByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("category not found")
		}
		return nil, ErrInternal("failed to get category")
	}
	return &c, nil
}

func (s *Service) CreateCategory(ctx context.Context, name string) (*Category, error) {
	n, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	c, err := s.store.CreateCategory(ctx, n)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrConflict("category name already exists")
		}
		return nil, ErrInternal("failed to create category")
	}
	return &c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id uint, name string, disabled bool) (*Category, error) {
	n, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	err = s.store.UpdateCategory(ctx, id, n, disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("category not found")
		}
		if isDuplicateKey(err) {
			return nil, ErrConflict("category name already exists")
		}
		return nil, ErrInternal("failed to update category")
	}
	return s.GetCategory(ctx, id)
}

// DeleteCategory disables rather than removes so existing books keep their link.
func (s *Service) DeleteCategory(ctx context.Context, id uint) error {
	err := s.store.DisableCategory(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("category not found")
		}
		return ErrInternal("failed to delete category")
	}
	return nil
}
