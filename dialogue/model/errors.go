package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes shared by all backends.
const (
	CodeInvalidAPIKey = "invalid_api_key"
	CodeRateLimited   = "rate_limited"
	CodeTimeout       = "timeout"
	CodeNotFound      = "not_found"
	CodeUnavailable   = "unavailable"
	CodeAPIError      = "api_error"
)

var (
	// ErrMissingAPIKey is returned when a cloud backend is used without a key.
	ErrMissingAPIKey = errors.New("API key is not set")

	// ErrEmptyResponse is returned when a backend answers without any text.
	ErrEmptyResponse = errors.New("backend returned an empty response")
)

// Error represents a classified backend failure.
//
// It distinguishes between retryable transient failures (rate limits,
// timeouts, overloaded servers) and permanent failures (bad credentials,
// unknown models) so the dialogue engine can decide retry-or-abort.
type Error struct {
	// Provider names the backend that failed ("ollama", "anthropic", ...).
	Provider string

	// Code is the machine-readable error code (Code* constants).
	Code string

	// Message is the human-readable description.
	Message string

	// StatusCode is the HTTP status when the failure came from a response.
	StatusCode int

	// Retryable reports whether the request may succeed if repeated.
	Retryable bool

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return e.Provider + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if err (or anything it wraps) is a retryable
// backend error.
func IsRetryable(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// CodeOf returns the classification code of err, or "" when err is not a
// backend error.
func CodeOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Classify maps an HTTP status code and the underlying error onto an *Error.
//
// A status of 0 means no response was received; the error text is then
// inspected for the usual transient patterns. Context cancellation is
// returned unchanged so callers can still match it with errors.Is.
func Classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: provider, Code: CodeTimeout, Message: "request timed out", Retryable: true, Cause: err}
	}

	e := &Error{Provider: provider, StatusCode: status, Cause: err}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code, e.Message = CodeInvalidAPIKey, "API key is invalid or expired"
	case status == http.StatusNotFound:
		e.Code, e.Message = CodeNotFound, "model not found"
	case status == http.StatusTooManyRequests:
		e.Code, e.Message, e.Retryable = CodeRateLimited, "API rate limit exceeded", true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Code, e.Message, e.Retryable = CodeTimeout, "request timed out", true
	case status >= 500:
		e.Code, e.Message, e.Retryable = CodeUnavailable, fmt.Sprintf("server error (%d)", status), true
	case status > 0:
		e.Code, e.Message = CodeAPIError, fmt.Sprintf("API error (%d): %v", status, err)
	default:
		classifyMessage(e, err)
	}
	return e
}

func classifyMessage(e *Error, err error) {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "api_key") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication"):
		e.Code, e.Message = CodeInvalidAPIKey, "API key is invalid or expired"
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "resource_exhausted"):
		e.Code, e.Message, e.Retryable = CodeRateLimited, "API rate limit exceeded", true
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		e.Code, e.Message, e.Retryable = CodeTimeout, "request timed out", true
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof"):
		e.Code, e.Message, e.Retryable = CodeUnavailable, "backend is unreachable", true
	default:
		e.Code, e.Message = CodeAPIError, err.Error()
	}
}
