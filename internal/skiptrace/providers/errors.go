package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCategory defines the normalized failure taxonomy for provider calls.
type ErrorCategory string

const (
	// ErrorInvalidRequest indicates the upstream rejected the request shape.
	ErrorInvalidRequest ErrorCategory = "invalid_request"

	// ErrorAuthentication indicates credential or permission issues.
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorRateLimited indicates too many requests.
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorUnavailable indicates the upstream is down, timing out, or
	// returning server errors.
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorUnknown covers everything the taxonomy cannot place.
	ErrorUnknown ErrorCategory = "unknown"
)

// ProviderError wraps provider failures with normalized categorization and
// the upstream status code when one was observed.
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	StatusCode int
	Message    string
	Underlying error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s [%s] status %d: %s", e.Provider, e.Category, e.StatusCode, e.Message)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized provider error.
func NewError(category ErrorCategory, provider, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Message:    message,
		Underlying: underlying,
	}
}

// FromStatus translates a non-2xx upstream status into the taxonomy.
func FromStatus(provider string, status int, message string) *ProviderError {
	var category ErrorCategory
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		category = ErrorInvalidRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = ErrorAuthentication
	case status == http.StatusTooManyRequests:
		category = ErrorRateLimited
	case status >= 500:
		category = ErrorUnavailable
	default:
		category = ErrorUnknown
	}
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		StatusCode: status,
		Message:    message,
	}
}

// FromTransport translates a transport-level failure. Timeouts, refused
// connections, and cancellations all count as unavailability: the caller
// treats them exactly like any other definitive provider failure.
func FromTransport(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	category := ErrorUnavailable
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		var ne net.Error
		if !errors.As(err, &ne) {
			category = ErrorUnknown
		}
	}
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Message:    "transport failure",
		Underlying: err,
	}
}

// CategoryOf extracts the error category, defaulting to unknown.
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorUnknown
}

// Sentinel errors for registry-level conditions.
var (
	ErrNotConfigured      = errors.New("provider not configured")
	ErrAllProvidersFailed = errors.New("all providers failed")
)
