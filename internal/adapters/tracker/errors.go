package tracker

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidID is returned for ids not of the form owner/repo#N.
var ErrInvalidID = errors.New("invalid tracker id")

// APIError is a non-2xx response from the tracker.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
	// RateLimited is set when the tracker reported an exhausted quota.
	RateLimited bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the tracker.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsTransient reports whether retrying err may succeed. Malformed ids and
// client-side API errors are permanent; transport failures are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidID) {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.RateLimited ||
		apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.StatusCode >= http.StatusInternalServerError
}
