// ABOUTME: Request and response bodies shared by the REST client and the dev backend
// ABOUTME: Also defines StatusError and the sentinel errors it maps to

package api

import (
	"errors"
	"fmt"
	"net/http"
)

// UserHeader carries the caller's handle.
const UserHeader = "X-Chat-User"

var (
	// ErrNotFound is matched by a StatusError with status 404.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is matched by a StatusError with status 403.
	ErrForbidden = errors.New("forbidden")
)

// CreateRequest is the body of POST /api/conversations.
type CreateRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// UpdateRequest is the body of PUT /api/conversations/{id}.
type UpdateRequest struct {
	Title  *string `json:"title,omitempty"`
	Pinned *bool   `json:"pinned,omitempty"`
}

// SummaryResponse is returned by the summarization endpoint.
type SummaryResponse struct {
	Title string `json:"title"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Is maps 404 and 403 to ErrNotFound and ErrForbidden.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	}
	return false
}
