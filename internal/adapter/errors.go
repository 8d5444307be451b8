package adapter

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("item not found")

	// ErrNameAlreadyExists is returned when a create or upload with conflict
	// behavior "fail" collides with an existing child of the same name.
	ErrNameAlreadyExists = errors.New("name already exists")

	// ErrInvalidRequest is returned for malformed or unsupported requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnauthorized is returned when the stored credentials are rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError carries a non-success response that did not map to a sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("drive api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("drive api: status %d: %s: %s", e.Status, e.Code, e.Message)
}
