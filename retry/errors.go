package retry

import (
	"errors"
	"fmt"
	"strings"
)

// MultiError aggregates the errors of all failed attempts
type MultiError struct {
	Errors   []error
	Attempts int
}

// Error returns the last attempt's error message
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "retry failed: no errors"
	}
	return e.Errors[len(e.Errors)-1].Error()
}

// Unwrap returns the last attempt's error
func (e *MultiError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// AllErrors returns a multi-line report of every attempt
func (e *MultiError) AllErrors() string {
	if len(e.Errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("retry failed after %d attempts:", e.Attempts))
	for i, err := range e.Errors {
		b.WriteString(fmt.Sprintf("\n  attempt %d: %v", i+1, err))
	}
	return b.String()
}

// LastError returns the final attempt's error
func (e *MultiError) LastError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// GetAttempts extracts the attempt count from a retry error (0 if not one)
func GetAttempts(err error) int {
	var multiErr *MultiError
	if errors.As(err, &multiErr) {
		return multiErr.Attempts
	}
	return 0
}
