package circulation

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model (same shape as the other domain packages) =====

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeNotAvailable     Code = "NOT_AVAILABLE"
	CodeDuplicateRequest Code = "DUPLICATE_ACTIVE_REQUEST"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeInternal         Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

// ErrNotAvailable: no copies left at approval or direct-issue time.
func ErrNotAvailable() *APIError {
	return &APIError{Code: CodeNotAvailable, Message: "no copies of this book are available"}
}

// ErrDuplicateRequest: the requester already holds an active row for the book.
func ErrDuplicateRequest() *APIError {
	return &APIError{Code: CodeDuplicateRequest, Message: "an active request or issue already exists for this book"}
}

// ErrInvalidState: the row is not in the state the transition starts from.
func ErrInvalidState(have Status, want Status) *APIError {
	return &APIError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("record is %s, operation requires %s", have, want),
	}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeNotAvailable, CodeDuplicateRequest, CodeInvalidState:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
