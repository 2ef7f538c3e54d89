package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the client.
var (
	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("page number must be >= 1")

	// ErrUnexpectedStatus is wrapped by FetchError for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

// ErrorClass represents a classification of page fetch failures.
type ErrorClass string

const (
	// ErrorClassTimeout represents a request that exceeded its deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassConnection represents transport failures (DNS, refused, reset, TLS).
	ErrorClassConnection ErrorClass = "connection"

	// ErrorClassStatus represents a response with a non-2xx status code.
	ErrorClassStatus ErrorClass = "status"
)

// FetchError represents a failed page fetch with additional context.
type FetchError struct {
	Page       int
	Class      ErrorClass
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Class == ErrorClassStatus {
		return fmt.Sprintf("fetch page %d: %s error (status %d)", e.Page, e.Class, e.StatusCode)
	}
	return fmt.Sprintf("fetch page %d: %s error: %v", e.Page, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyError maps a transport error to timeout or connection.
func classifyError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassConnection
}

// ClassOf returns the ErrorClass of err if it wraps a FetchError.
func ClassOf(err error) (ErrorClass, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class, true
	}
	return "", false
}
