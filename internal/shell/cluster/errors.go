package cluster

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("request not authorized")
)

// APIError is a non-2xx answer from the platform API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.Path, e.Status)
}

// Unwrap maps well-known statuses onto sentinel errors so callers can test
// with errors.Is without looking at the status themselves.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case 404:
		return ErrNotFound
	case 401, 403:
		return ErrUnauthorized
	default:
		return nil
	}
}
