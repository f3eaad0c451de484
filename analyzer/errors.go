package analyzer

import (
	"errors"
	"net/http"
)

// Kind classifies analysis failures for the API layer
type Kind int

const (
	InvalidInput Kind = iota + 1
	Unreachable
	Timeout
	Decode
)

// AppError is the single error type surfaced by the analysis pipeline
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Detail is the operator-facing description of the cause, if any.
func (e *AppError) Detail() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// StatusCode maps the error kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case InvalidInput:
		return http.StatusBadRequest
	case Unreachable:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the HTTP status for any pipeline error.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}
