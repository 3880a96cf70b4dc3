package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUsernameExists     = "USERNAME_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotLazy            = "NOT_LAZY"
	CodeLazyUser           = "LAZY_USER"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	// Check for specific error types
	var he *httpError
	if errors.As(err, &he) {
		return he
	}
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		return &httpError{http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: verr.Error(), Field: verr.Field}}
	}

	switch {
	// Map model errors
	case errors.Is(err, model.ErrUserNotFound):
		return &httpError{http.StatusNotFound, APIError{Code: CodeUserNotFound, Message: "User not found"}}
	case errors.Is(err, model.ErrUsernameTaken):
		return &httpError{http.StatusConflict, APIError{Code: CodeUsernameExists, Message: "Username already exists", Field: "username"}}
	case errors.Is(err, model.ErrInvalidUsername):
		return &httpError{http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: "Invalid username", Field: "username"}}
	case errors.Is(err, model.ErrNotLazy):
		return &httpError{http.StatusConflict, APIError{Code: CodeNotLazy, Message: "User is not a lazy user"}}
	case errors.Is(err, model.ErrUpdateMismatch):
		return &httpError{http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: "Update does not belong to this user"}}
	case errors.Is(err, model.ErrDuplicateMarker), errors.Is(err, model.ErrConflict):
		return &httpError{http.StatusConflict, APIError{Code: CodeConflict, Message: "Concurrent update, try again"}}

	// Map auth errors
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{Code: CodeInvalidCredentials, Message: "Invalid username or password"}}
	case errors.Is(err, auth.ErrInvalidSession):
		return &httpError{http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "Invalid or expired session"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{Code: CodeInternalError, Message: "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "Authentication required"}}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError() error {
	return &httpError{http.StatusForbidden, APIError{Code: CodeForbidden, Message: "Forbidden"}}
}

// NewNotLazyError is returned when an action needs a lazy user
func NewNotLazyError() error {
	return &httpError{http.StatusConflict, APIError{Code: CodeNotLazy, Message: "User is not a lazy user"}}
}

// NewLazyUserError is returned when an action needs a real account
func NewLazyUserError() error {
	return &httpError{http.StatusForbidden, APIError{Code: CodeLazyUser, Message: "Sign up to use this action"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{Code: CodeInternalError, Message: "Internal server error"}}
}
