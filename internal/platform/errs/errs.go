// Package errs defines the error body returned by every API endpoint and the
// constructors handlers use to build it.
package errs

import (
	"net/http"
	"strings"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// HTTPError is the JSON error body: {code, message, status, errors}.
type HTTPError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is matches any *HTTPError so callers can use errors.Is(err, &HTTPError{}).
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)
	return ok
}

// WithMessage returns a copy with Message replaced.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	cp := *e
	cp.Message = message
	return &cp
}

// CodeFromStatus turns "Bad Request" into "BAD_REQUEST".
func CodeFromStatus(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func newError(status int, code, message string) *HTTPError {
	if code == "" {
		code = CodeFromStatus(status)
	}
	return &HTTPError{Code: code, Message: message, Status: status}
}

func NewBadRequest(message string) *HTTPError {
	return newError(http.StatusBadRequest, "", message)
}

// NewBadRequestWithCode is used when the client needs a machine-readable reason.
func NewBadRequestWithCode(code, message string) *HTTPError {
	return newError(http.StatusBadRequest, code, message)
}

// NewValidationError carries per-field failures.
func NewValidationError(message string, fields []FieldError) *HTTPError {
	e := newError(http.StatusBadRequest, "VALIDATION_FAILED", message)
	e.Errors = fields
	return e
}

func NewNotFound(message string) *HTTPError {
	return newError(http.StatusNotFound, "", message)
}

func NewConflict(code, message string) *HTTPError {
	return newError(http.StatusConflict, code, message)
}

func NewUnprocessable(code, message string) *HTTPError {
	return newError(http.StatusUnprocessableEntity, code, message)
}

// NewInternalServerError hides the underlying cause from the client.
func NewInternalServerError() *HTTPError {
	return newError(http.StatusInternalServerError, "", http.StatusText(http.StatusInternalServerError))
}
