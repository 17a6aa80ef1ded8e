package headless

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	renderer, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer renderer.Close()
	require.Equal(t, 2, cap(renderer.limiter))
	require.Equal(t, DefaultNavigationTimeout, renderer.cfg.NavigationTimeout)
}

func TestAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	renderer, err := NewChromedp(Config{MaxParallel: 1, NavigationTimeout: time.Second})
	require.NoError(t, err)
	defer renderer.Close()

	require.NoError(t, renderer.acquire(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, renderer.acquire(ctx), context.Canceled)
	renderer.release()
	require.NoError(t, renderer.acquire(context.Background()))
}

func TestDocumentStatusIgnoresSubresources(t *testing.T) {
	t.Parallel()

	meta := &documentStatus{}
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	require.Zero(t, meta.get())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404},
	})
	require.Equal(t, 404, meta.get())
}

func TestNoopRenderer(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Render(context.Background(), "https://example.com")
	require.True(t, errors.Is(err, ErrUnavailable))
}
