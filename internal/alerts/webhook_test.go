package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pulseflow/internal/apperr"
)

func TestWebhookProvider_PostsPayload(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got WebhookPayload
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(WebhookEventHeader)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewWebhookProvider(WebhookConfig{Client: srv.Client(), Now: func() time.Time { return fixed }},
		WithSleep(noSleep))
	result, err := p.Send(context.Background(), sampleOptions(srv.URL+"/hook"))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, ChannelWebhook, result.Channel)
	require.Equal(t, fixed, result.DeliveredAt)

	require.Equal(t, WebhookEvent, header)
	require.Equal(t, WebhookEvent, got.Event)
	require.Equal(t, "2026-03-01T12:00:00Z", got.Timestamp)
	require.Equal(t, "sig-1", got.Signal.ID)
	require.Equal(t, "pulse-1", got.PulseID)
	require.NotNil(t, got.Change.Type)
	require.Len(t, got.Change.Items.Added, 1)
	require.Equal(t, 1, got.Change.Stats.AddedCount)
}

func TestWebhookProvider_ServerErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewWebhookProvider(WebhookConfig{Client: srv.Client()}, WithSleep(noSleep))
	result, err := p.Send(context.Background(), sampleOptions(srv.URL))
	require.True(t, apperr.Is(err, apperr.KindWebhookError))
	require.Contains(t, err.Error(), "500")
	require.EqualError(t, err, "Webhook returned status 500: Internal Server Error")
	require.False(t, result.Success)
	require.Equal(t, int32(1), calls.Load())
}

func TestWebhookProvider_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewWebhookProvider(WebhookConfig{Client: srv.Client(), Timeout: 20 * time.Millisecond}, WithSleep(noSleep))
	_, err := p.Send(context.Background(), sampleOptions(srv.URL))
	require.True(t, apperr.Is(err, apperr.KindWebhookTimeout))
	require.EqualError(t, err, "Webhook request timed out after 20ms")
}

func TestWebhookProvider_InvalidURL(t *testing.T) {
	t.Parallel()

	p := NewWebhookProvider(WebhookConfig{})
	_, err := p.Send(context.Background(), sampleOptions("mailto:ops@example.com"))
	require.EqualError(t, err, "Invalid webhook destination: mailto:ops@example.com")
}

func TestBuildWebhookPayloadUsesEmptyLists(t *testing.T) {
	t.Parallel()

	payload := BuildWebhookPayload(Options{Signal: Signal{ID: "s"}}, time.Unix(0, 0))
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"added":[]`)
	require.Contains(t, string(raw), `"updated":[]`)
}
