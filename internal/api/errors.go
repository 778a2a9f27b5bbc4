package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/importer"
	"github.com/chainguard/tracker/internal/lifecycle"
	"github.com/chainguard/tracker/internal/returns"
	"github.com/chainguard/tracker/internal/tracker"
)

// Error is an API error with the HTTP status it maps to.
type Error struct {
	Code    int
	Message string
	Err     error
}

// NewError creates a new API error
func NewError(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errorBody is written for every failed request.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// classify maps domain errors onto HTTP statuses.
func classify(err error) *Error {
	var apiErr *Error
	var ve validatorv10.ValidationErrors
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, tracker.ErrNotFound):
		return NewError(http.StatusNotFound, "not_found", err)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return NewError(http.StatusConflict, "invalid_transition", err)
	case errors.As(err, &ve),
		errors.Is(err, tracker.ErrInvalidRequest),
		errors.Is(err, importer.ErrMalformedImport),
		errors.Is(err, commerce.ErrInvalidOrderID),
		errors.Is(err, returns.ErrUnsupportedMedia):
		return NewError(http.StatusBadRequest, "invalid_request", err)
	}
	return NewError(http.StatusInternalServerError, "internal_error", err)
}

// abort writes the error response for err.
func (r *Router) abort(c *gin.Context, err error) {
	e := classify(err)
	body := errorBody{Error: e.Message}
	if e.Err != nil {
		body.Detail = e.Err.Error()
	}
	if e.Code >= http.StatusInternalServerError {
		r.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body.Detail = "unexpected server error"
	}
	c.AbortWithStatusJSON(e.Code, body)
}
