package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"deadline exceeded", context.DeadlineExceeded, ErrorClassTimeout},
		{"wrapped deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrorClassTimeout},
		{"net timeout", timeoutErr{}, ErrorClassTimeout},
		{"eof", io.EOF, ErrorClassConnection},
		{"refused", errors.New("connection refused"), ErrorClassConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.expected {
				t.Errorf("classifyError() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FetchError
		expected string
	}{
		{
			name:     "status error",
			err:      &FetchError{Page: 2, Class: ErrorClassStatus, StatusCode: 503},
			expected: "fetch page 2: status error (status 503)",
		},
		{
			name:     "connection error",
			err:      &FetchError{Page: 1, Class: ErrorClassConnection, Err: errors.New("connection refused")},
			expected: "fetch page 1: connection error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	wrapped := errors.New("underlying")
	err := fmt.Errorf("page: %w", &FetchError{Page: 1, Class: ErrorClassConnection, Err: wrapped})

	if !errors.Is(err, wrapped) {
		t.Error("errors.Is should find the wrapped error")
	}
	if class, ok := ClassOf(err); !ok || class != ErrorClassConnection {
		t.Errorf("ClassOf() = %q, %v", class, ok)
	}
	if _, ok := ClassOf(errors.New("plain")); ok {
		t.Error("ClassOf() on a plain error should report false")
	}
}
