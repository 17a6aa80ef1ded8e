// Package apperr defines the error kinds shared by scraping, summarization
// and alert delivery.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure independently of its Go type.
type Kind string

// Known failure kinds.
const (
	KindBlockedDomain       Kind = "BLOCKED_DOMAIN"
	KindRobotsDisallowed    Kind = "ROBOTS_DISALLOWED"
	KindScrapeFailed        Kind = "SCRAPE_FAILED"
	KindInvalidDestination  Kind = "INVALID_DESTINATION"
	KindDeliveryFailed      Kind = "DELIVERY_FAILED"
	KindWebhookTimeout      Kind = "WEBHOOK_TIMEOUT"
	KindWebhookError        Kind = "WEBHOOK_ERROR"
	KindEmailError          Kind = "EMAIL_ERROR"
	KindRateLimit           Kind = "RATE_LIMIT"
	KindAuthError           Kind = "AUTH_ERROR"
	KindContentTooShort     Kind = "CONTENT_TOO_SHORT"
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	KindEmptyResponse       Kind = "EMPTY_RESPONSE"
	KindAPIError            Kind = "API_ERROR"
	KindSummarizeFailed     Kind = "SUMMARIZE_FAILED"
)

// Retryable reports whether an operation failing with this kind may be
// attempted again.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit,
		KindAuthError,
		KindInvalidDestination,
		KindBlockedDomain,
		KindRobotsDisallowed,
		KindWebhookTimeout,
		KindWebhookError,
		KindContentTooShort,
		KindProviderUnavailable,
		KindScrapeFailed,
		KindDeliveryFailed,
		KindSummarizeFailed:
		return false
	default:
		return true
	}
}

// HTTPStatus maps a kind to the status code the API reports for it.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidDestination, KindContentTooShort:
		return http.StatusBadRequest
	case KindBlockedDomain, KindRobotsDisallowed:
		return http.StatusForbidden
	case KindAuthError:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindWebhookTimeout:
		return http.StatusGatewayTimeout
	case KindWebhookError, KindEmailError, KindScrapeFailed:
		return http.StatusBadGateway
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a failure tagged with a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
