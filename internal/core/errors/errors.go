// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"errors"
	"fmt"
)

// Content lookup errors.
var (
	// ErrContentNotFound indicates a content row could not be found.
	ErrContentNotFound = errors.New("content not found")

	// ErrTaskNotFound indicates a queue task could not be found.
	ErrTaskNotFound = errors.New("task not found")
)

// Extraction errors.
var (
	// ErrNoStrategy indicates no extraction strategy can handle the content.
	ErrNoStrategy = errors.New("no extraction strategy for content")

	// ErrEmptyDocument indicates the fetched payload held no extractable text.
	ErrEmptyDocument = errors.New("document has no extractable text")
)

// Summarization errors.
var (
	// ErrEmptySummary indicates the summarization service returned no usable result.
	ErrEmptySummary = errors.New("summarization returned no result")

	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Fetch errors.
var (
	// ErrHTTPStatusNotOK indicates an HTTP response with an unexpected status code.
	ErrHTTPStatusNotOK = errors.New("HTTP status not OK")

	// ErrResponseTooLarge indicates the response body exceeded the configured cap.
	ErrResponseTooLarge = errors.New("response body too large")
)

// NonRetryableError marks a permanent fetch failure (4xx client errors,
// malformed content). The worker treats it like any other processing error;
// the distinction exists for the external retry policy.
type NonRetryableError struct {
	StatusCode int
	Reason     string
}

func (e *NonRetryableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("non-retryable: %s (status %d)", e.Reason, e.StatusCode)
	}

	return "non-retryable: " + e.Reason
}

// IsNonRetryable reports whether err wraps a NonRetryableError.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError

	return errors.As(err, &nre)
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
