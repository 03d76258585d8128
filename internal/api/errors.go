package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-watchparty/internal/server"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewValidationError(msg string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    msg,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewConflictError(msg string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusConflict,
		Message:    msg,
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

// NewCoordinatorError maps a coordinator error onto a response. Refusals
// keep their message; anything else is reported as an internal error.
func NewCoordinatorError(err error) *ApiError {
	var apiErr *ApiError
	switch code := server.StatusCode(err); code {
	case http.StatusInternalServerError:
		return NewInternalServerError(err)
	case http.StatusBadRequest:
		apiErr = NewValidationError(err.Error())
	case http.StatusConflict:
		apiErr = NewConflictError(err.Error())
	default:
		apiErr = &ApiError{StatusCode: code, Message: err.Error()}
	}
	apiErr.Err = err

	return apiErr
}
