package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pulseflow/internal/archive"
)

func newTestStore(t *testing.T, cfg Config, handler http.Handler) *Store {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := Dial(context.Background(), cfg, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshot() archive.Snapshot {
	return archive.Snapshot{
		SignalID:  "sig",
		PulseID:   "p1",
		CreatedAt: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
		Data:      []byte(`[{"id":"1"}]`),
	}
}

func TestPutUploadsSnapshotOnce(t *testing.T) {
	const object = "raw/signals/sig/2026/01/02/p1.json"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/pulses/o")
		assert.Equal(t, object, r.URL.Query().Get("name"))
		assert.Equal(t, "0", r.URL.Query().Get("ifGenerationMatch"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `[{"id":"1"}]`)
		assert.Contains(t, string(body), `"pulseId":"p1"`)
		assert.Contains(t, string(body), `"contentType":"application/json"`)
		fmt.Fprintln(w, `{"name": "`+object+`", "bucket": "pulses"}`)
	})

	s := newTestStore(t, Config{Bucket: "pulses", Prefix: "/raw/"}, handler)
	uri, err := s.Put(context.Background(), snapshot())
	require.NoError(t, err)
	require.Equal(t, "gs://pulses/"+object, uri)
}

func TestPutKeepsExistingObject(t *testing.T) {
	s := newTestStore(t, Config{Bucket: "pulses"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		fmt.Fprintln(w, `{"error":{"code":412,"message":"conditionNotMet"}}`)
	}))
	uri, err := s.Put(context.Background(), snapshot())
	require.NoError(t, err)
	require.Equal(t, "gs://pulses/signals/sig/2026/01/02/p1.json", uri)
}

func TestPutServerError(t *testing.T) {
	s := newTestStore(t, Config{Bucket: "pulses"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := s.Put(context.Background(), snapshot())
	require.ErrorContains(t, err, "upload snapshot p1")
}

func TestPutRejectsIncompleteSnapshot(t *testing.T) {
	s := newTestStore(t, Config{Bucket: "pulses"}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no upload expected")
	}))
	_, err := s.Put(context.Background(), archive.Snapshot{SignalID: "sig"})
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}
