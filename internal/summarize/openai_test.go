package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pulseflow/internal/apperr"
)

func chatServer(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOpenAIProvider_Generate(t *testing.T) {
	t.Parallel()

	srv, captured := chatServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Two launches today.  "}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)

	p := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.True(t, p.Available())
	require.Equal(t, DefaultModel, p.Model())

	got, err := p.Generate(context.Background(), "prompt body")
	require.NoError(t, err)
	require.Equal(t, Generation{Text: "Two launches today.", TokensUsed: 15}, got)
	require.Equal(t, DefaultModel, (*captured)["model"])
	require.EqualValues(t, DefaultMaxTokens, (*captured)["max_tokens"])
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv, _ := chatServer(t, http.StatusOK, `{"choices": []}`)
	p := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	_, err := p.Generate(context.Background(), "x")
	require.Error(t, err)
	require.Equal(t, apperr.KindEmptyResponse, apperr.KindOf(mapAPIError(err)))
}

func TestOpenAIProvider_UnauthorizedThroughService(t *testing.T) {
	t.Parallel()

	srv, _ := chatServer(t, http.StatusUnauthorized,
		`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)
	gen := NewOpenAI(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL + "/v1"})
	sleeps := &sleepRecorder{}

	_, err := New(gen, WithSleep(sleeps.Sleep)).Summarize(context.Background(), Request{Content: longContent})
	require.True(t, apperr.Is(err, apperr.KindAuthError))
	require.Empty(t, sleeps.delays)
}

func TestOpenAIProvider_UnavailableWithoutKey(t *testing.T) {
	t.Parallel()

	require.False(t, NewOpenAI(OpenAIConfig{}).Available())
}
