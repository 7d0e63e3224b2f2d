package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrTransport indicates a network-level failure (retryable)
	ErrTransport = errors.New("transport failure")

	// ErrUpstream indicates a non-2xx status or malformed response envelope
	ErrUpstream = errors.New("upstream service error")

	// ErrDatabaseOperation indicates a database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")

	// ErrLLMCommunication indicates LLM communication failed
	ErrLLMCommunication = errors.New("llm communication failed")
)

// WrapError wraps an error with context message
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransport checks if error is a transport-level failure
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsUpstream checks if error is an upstream service error
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// IsDatabaseOperation checks if error is a database operation failure
func IsDatabaseOperation(err error) bool {
	return errors.Is(err, ErrDatabaseOperation)
}
