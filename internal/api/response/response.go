// Package response renders the JSON envelopes shared by every API handler and
// maps domain failures onto HTTP status codes.
//
// Success bodies for mutations are {status: true, message, data}. Failures are
// {status: false, message, code?, errors?} where errors holds per-field reasons.
package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope wraps the result of a mutating operation.
type Envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorBody is written for every failed request.
type ErrorBody struct {
	Status  bool              `json:"status"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ValidationError reports malformed or missing input (400).
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Invalid input."
}

// AuthenticationError reports missing, invalid or expired credentials (401).
type AuthenticationError struct {
	Message string
	Code    string
}

func (e *AuthenticationError) Error() string { return e.Message }

// NotFoundError reports an unknown resource (404).
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Not found."
}

// Codes carried by AuthenticationError.
const (
	CodeTokenNotValid      = "token_not_valid"
	CodeNotAuthenticated   = "not_authenticated"
	CodeInvalidCredentials = "invalid_credentials"
	CodeUserInactive       = "user_inactive"
)

// ErrNotFound is the generic 404.
var ErrNotFound = &NotFoundError{Message: "Not found."}

// Success writes an envelope with status true.
func Success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Status: true, Message: message, Data: data})
}

// Fail writes the error body for err. Errors outside the API taxonomy are
// logged and reported as 500 without leaking their text.
func Fail(c *gin.Context, err error) {
	status, body := render(c, err)
	c.JSON(status, body)
}

// Abort is Fail for middleware: it also stops the handler chain.
func Abort(c *gin.Context, err error) {
	status, body := render(c, err)
	c.AbortWithStatusJSON(status, body)
}

func render(c *gin.Context, err error) (int, ErrorBody) {
	var (
		validationErr *ValidationError
		authErr       *AuthenticationError
		notFoundErr   *NotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorBody{Message: validationErr.Error(), Errors: validationErr.Fields}
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, ErrorBody{Message: authErr.Message, Code: authErr.Code}
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, ErrorBody{Message: notFoundErr.Error()}
	default:
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString("request_id"),
			"error", err)
		return http.StatusInternalServerError, ErrorBody{Message: "Internal server error"}
	}
}
