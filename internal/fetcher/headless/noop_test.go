package headless

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopRenderAlwaysFails(t *testing.T) {
	t.Parallel()

	html, err := NewNoop().Render(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Empty(t, html)
}
