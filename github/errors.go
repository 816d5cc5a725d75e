package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors
var (
	ErrQuotaExceeded     = fmt.Errorf("github api quota exceeded")
	ErrConnectivity      = fmt.Errorf("connection failed, please check your internet")
	ErrNotFound          = fmt.Errorf("not found")
	ErrInvalidHandle     = fmt.Errorf("invalid handle")
	ErrMissingCredential = fmt.Errorf("credential required")
)

// APIError is a non-success response that is not a quota signal
type APIError struct {
	StatusCode int
	Reason     string
}

func newAPIError(resp *http.Response) *APIError {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Reason: reason}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error (%d): %s", e.StatusCode, e.Reason)
}

// Unwrap lets errors.Is(err, ErrNotFound) match a 404
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// GraphQLError is returned when a batched query yields no data at all
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// IsQuota reports whether err is a throttling signal
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// StatusCode extracts the upstream status from err, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
