package http

import (
	"fmt"
	"net/http"
)

// Codes carried by AppError and ValidationError.
const (
	CodeNotFound    = "ERR_NOT_FOUND"
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeUnavailable = "ERR_UNAVAILABLE"
	CodeInternal    = "ERR_INTERNAL"
	CodeBind        = "ERR_BIND"
)

// AppError is an error the status API can render: a code, a message for
// the client and the HTTP status. Err stays server side.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the underlying cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf(format, a...), Status: http.StatusNotFound}
}

func BadRequestErrorf(field, format string, a ...interface{}) *AppError {
	return &AppError{Code: CodeBadRequest, Field: field, Message: fmt.Sprintf(format, a...), Status: http.StatusBadRequest}
}

// UnavailableError reports state that does not exist yet, e.g. before the
// first tick has settled.
func UnavailableError(message string) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Status: http.StatusServiceUnavailable}
}

func InternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError}
}
