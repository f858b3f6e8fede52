package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/reporting"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Health{Status: "ok", RunID: "run-1", Steps: 42, Clients: 2})
	})
	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(reporting.Summary{RunID: "run-1", Steps: 42, FinalPrice: 97.5})
	})
	mux.HandleFunc("/api/steps", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("n") != "2" {
			http.Error(w, "bad n", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode([]engine.ModelRecord{{Step: 40, Price: 98}, {Step: 41, Price: 97.5}})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 42, h.Steps)

	s, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 97.5, s.FinalPrice)

	steps, err := c.Steps(ctx, 2)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 41, steps[1].Step)

	_, err = c.Steps(ctx, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
