package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testDelay = 80 * time.Millisecond

func TestLimiter_FirstRequestIsImmediate(t *testing.T) {
	t.Parallel()
	l := New()

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://example.com/a", time.Second))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_SameDomainWaits(t *testing.T) {
	t.Parallel()
	l := New()
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/a", testDelay))
	start := time.Now()
	// Scheme and port are ignored when keying domains.
	require.NoError(t, l.Wait(ctx, "http://EXAMPLE.com:8080/b", testDelay))
	require.GreaterOrEqual(t, time.Since(start), testDelay-20*time.Millisecond)
}

func TestLimiter_DifferentDomainsDoNotBlock(t *testing.T) {
	t.Parallel()
	l := New()
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1", time.Second))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1", time.Second))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_ConcurrentCallersAccumulate(t *testing.T) {
	t.Parallel()
	l := New()
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(ctx, "https://busy.example/x", testDelay))
		}()
	}
	wg.Wait()
	require.GreaterOrEqual(t, time.Since(start), 2*testDelay-20*time.Millisecond)
}

func TestLimiter_ContextCancelled(t *testing.T) {
	t.Parallel()
	l := New()

	require.NoError(t, l.Wait(context.Background(), "https://slow.example", time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.example", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()
	l := New()
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com", time.Minute))
	l.Reset()
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com", time.Minute))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestDomain(t *testing.T) {
	t.Parallel()
	require.Equal(t, "example.com", Domain("https://Example.com:443/path"))
	require.Equal(t, "unknown", Domain("not a url"))
	require.Equal(t, "unknown", Domain("http://%"))
}
