package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/v1/signals/{id}/scrape", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	accepted := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "202"))
	notFound := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	resp, err := http.Post(ts.URL+"/v1/signals/abc/scrape", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if errClose := resp.Body.Close(); errClose != nil {
		t.Log(errClose)
	}

	resp, err = http.Get(ts.URL + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	if errClose := resp.Body.Close(); errClose != nil {
		t.Log(errClose)
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "202")); val != accepted+1 {
		t.Errorf("expected one more POST 202, got %f", val-accepted)
	}
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")); val != notFound+1 {
		t.Errorf("expected one more GET 404, got %f", val-notFound)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
