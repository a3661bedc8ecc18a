// Package http provides HTTP server and handler implementations.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"budgetly/internal/core"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	if b.payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, description string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: code, ErrorDescription: description})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(description string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", description)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(description string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, "validation_failed", description)
}

// InternalServerError creates a 500 response. Details stay in the logs.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal_error", "")
}

// noSourceBudgets is the 409 body of a rollover with nothing to copy.
type noSourceBudgets struct {
	Copied int    `json:"copied"`
	Reason string `json:"reason"`
}

// errorFromDomain maps service errors to responses. The second result is
// false for errors that are not the client's fault.
func errorFromDomain(err error) (*JSONResponseBuilder, bool) {
	switch {
	case errors.Is(err, core.ErrNoSourceBudgets):
		return NewJSONResponse().
			Status(http.StatusConflict).
			Body(noSourceBudgets{Copied: 0, Reason: "no_source_budgets"}), true
	case errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrNegativeAmount),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidColor),
		errors.Is(err, core.ErrMissingOccurredAt):
		return UnprocessableEntityError(err.Error()), true
	case errors.Is(err, core.ErrCategoryNotOwned):
		return ErrorResponse(http.StatusForbidden, "forbidden", err.Error()), true
	case errors.Is(err, core.ErrCategoryNotFound),
		errors.Is(err, core.ErrOwnerNotFound):
		return ErrorResponse(http.StatusNotFound, "not_found", err.Error()), true
	case errors.Is(err, core.ErrCategoryExists):
		return ErrorResponse(http.StatusConflict, "conflict", err.Error()), true
	default:
		return InternalServerError(), false
	}
}
