package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrSessionExpired is returned for a 401 on an authenticated request.
	// The forced logout is already under way when the caller sees it; callers
	// should swallow it instead of showing an error.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoBaseURL is returned by New when no base URL is configured.
	ErrNoBaseURL = errors.New("api base url required")
	// ErrResponseTooLarge is the cause of an *APIError for a success body
	// above the client's response limit.
	ErrResponseTooLarge = errors.New("response body too large")
)

// APIError is the normalized form of every non-session failure.
//
// Status is 0 for transport failures (no response received).
type APIError struct {
	Message     string
	Status      int
	FieldErrors map[string][]string
	cause       error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "api: " + e.Message
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// IsTransport reports whether no response was received.
func (e *APIError) IsTransport() bool {
	return e.Status == 0
}

// IsValidation reports whether the server rejected the input (4xx other
// than 401).
func (e *APIError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusUnauthorized
}

// FieldMessage returns the first message for field, or "".
func (e *APIError) FieldMessage(field string) string {
	if msgs := e.FieldErrors[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Summary joins field errors into one line for terminal output.
func (e *APIError) Summary() string {
	if len(e.FieldErrors) == 0 {
		return e.Message
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e.FieldErrors[f], ", "))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// IsSessionExpired reports whether err is the session-invalid category.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
