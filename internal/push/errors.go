package push

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned when no bearer token is available.
	ErrNoToken = errors.New("push: token is required")

	// ErrNoEndpoint is returned when no backend URL is configured.
	ErrNoEndpoint = errors.New("push: endpoint is not configured")
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push: backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push: backend returned %d: %s", e.StatusCode, e.Body)
}
