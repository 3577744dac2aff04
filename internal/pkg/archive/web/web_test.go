package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// BEGIN --- Web Sink Tests

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"URL": "http://192.168.0.5"}`), 0o644))
	cfg, err := LoadConfig(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.URL, "http://192.168.0.5")
	assert.Equal(t, cfg.Timeout, "5s")

	assert.NilError(t, os.WriteFile(path, []byte(`{"URL": "http://x", "Timeout": "soon"}`), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "timeout")

	assert.NilError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "needs a URL")
}

func TestPost(t *testing.T) {
	var mux sync.Mutex
	got := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mux.Lock()
		got[r.URL.Path] = raw
		mux.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewSink(Config{URL: srv.URL + "/", Timeout: "1s"})
	assert.NilError(t, err)
	pid := uuid.New()
	ctx := context.Background()
	assert.NilError(t, s.WritePhase(ctx, metamodel.PhaseEvent{PID: pid, Phase: metamodel.PhaseModel}))
	assert.NilError(t, s.WriteSummary(ctx, optmodel.Summary{PID: pid, Name: "house"}))
	assert.NilError(t, s.Close(ctx))

	assert.Assert(t, is.Len(got, 2))
	var sum optmodel.Summary
	assert.NilError(t, json.Unmarshal(got["/models/"+pid.String()+"/summary"], &sum))
	assert.Equal(t, sum.Name, "house")
	_, ok := got["/models/"+pid.String()+"/phases"]
	assert.Assert(t, ok)
}

func TestPostRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewSink(Config{URL: srv.URL, Timeout: "1s"})
	assert.NilError(t, err)
	err = s.WriteSummary(context.Background(), optmodel.Summary{})
	assert.ErrorContains(t, err, "500")
}
