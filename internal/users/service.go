package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"LIBRIS-backend/internal/platform/auth"

	mysql "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
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

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

const minPasswordLen = 6

func validRole(role string) bool {
	switch role {
	case auth.RoleAdmin, auth.RoleLibrarian, auth.RoleStudent:
		return true
	}
	return false
}

type Service struct {
	store UserStore
}

func NewService(conn *sql.DB) *Service { return &Service{store: NewStore(conn)} }

func (s *Service) ListUsers(ctx context.Context, f Filter, p Page) (*ListUsersResponse, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, ErrInternal("failed to list users")
	}
	resp := &ListUsersResponse{Items: make([]UserResponse, 0, len(items)), Total: total}
	for i := range items {
		resp.Items = append(resp.Items, buildUserResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*UserResponse, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("user not found")
		}
		return nil, ErrInternal("failed to get user")
	}
	resp := buildUserResponse(u)
	return &resp, nil
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if name == "" || email == "" {
		return nil, ErrInvalid("name and email are required")
	}
	if !validRole(req.Role) {
		return nil, ErrInvalid("unknown role")
	}
	if len(req.Password) < minPasswordLen {
		return nil, ErrInvalid("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrInternal("failed to hash password")
	}

	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         req.Role,
	}
	if req.Phone != nil && *req.Phone != "" {
		u.Phone = sql.NullString{String: *req.Phone, Valid: true}
	}
	if err := s.store.Insert(ctx, u); err != nil {
		if isDuplicateKey(err) {
			return nil, ErrConflict("email already exists")
		}
		return nil, ErrInternal("failed to create user")
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (*UserResponse, error) {
	sets := []string{}
	args := []any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalid("name must not be empty")
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email == "" {
			return nil, ErrInvalid("email must not be empty")
		}
		sets = append(sets, "email = ?")
		args = append(args, email)
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			return nil, ErrInvalid("unknown role")
		}
		sets = append(sets, "role = ?")
		args = append(args, *req.Role)
	}
	if req.Phone != nil {
		sets = append(sets, "phone = ?")
		if *req.Phone == "" {
			args = append(args, sql.NullString{})
		} else {
			args = append(args, sql.NullString{String: *req.Phone, Valid: true})
		}
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLen {
			return nil, ErrInvalid("password must be at least 6 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, ErrInternal("failed to hash password")
		}
		sets = append(sets, "password_hash = ?")
		args = append(args, string(hash))
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, id)
	}

	if err := s.store.ExecUpdate(ctx, id, sets, args); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("user not found")
		}
		if isDuplicateKey(err) {
			return nil, ErrConflict("email already exists")
		}
		return nil, ErrInternal("failed to update user")
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes an account. Admins cannot delete themselves, and accounts
// with pending or issued loans stay until the loans settle.
func (s *Service) DeleteUser(ctx context.Context, id, actorID int64) error {
	if id == actorID {
		return ErrConflict("cannot delete your own account")
	}
	active, err := s.store.HasActiveCirculation(ctx, id)
	if err != nil {
		return ErrInternal("failed to check circulation")
	}
	if active {
		return ErrConflict("user has active circulation")
	}
	if err := s.store.ExecDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("user not found")
		}
		return ErrInternal("failed to delete user")
	}
	return nil
}
