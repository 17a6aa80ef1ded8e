package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWalksWrappedChain(t *testing.T) {
	t.Parallel()

	base := New(KindRateLimit, "too many requests")
	wrapped := fmt.Errorf("send alert: %w", base)

	require.Equal(t, KindRateLimit, KindOf(wrapped))
	require.True(t, Is(wrapped, KindRateLimit))
	require.False(t, Is(wrapped, KindAuthError))
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
	require.False(t, Is(nil, KindRateLimit))
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := Wrap(KindWebhookError, cause, "Alert delivery failed: %v", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, "Alert delivery failed: dial tcp: refused", err.Error())
}

func TestRetryableKinds(t *testing.T) {
	t.Parallel()

	terminal := []Kind{
		KindRateLimit, KindAuthError, KindInvalidDestination,
		KindBlockedDomain, KindRobotsDisallowed, KindWebhookTimeout, KindWebhookError,
	}
	for _, k := range terminal {
		require.Falsef(t, k.Retryable(), "%s should not be retryable", k)
	}
	require.True(t, KindEmailError.Retryable())
	require.True(t, KindAPIError.Retryable())
	require.True(t, KindEmptyResponse.Retryable())
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[Kind]int{
		KindInvalidDestination:  http.StatusBadRequest,
		KindRateLimit:           http.StatusTooManyRequests,
		KindWebhookTimeout:      http.StatusGatewayTimeout,
		KindWebhookError:        http.StatusBadGateway,
		KindProviderUnavailable: http.StatusServiceUnavailable,
		KindAuthError:           http.StatusUnauthorized,
		KindDeliveryFailed:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equalf(t, want, kind.HTTPStatus(), "kind %s", kind)
	}
}
