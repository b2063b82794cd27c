package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const probeCatalog = `feeds:
  - key: network-stats
    source: http
    path: /stats
    poll_interval: 10s
    demo_file: stats.json
`

func setupProbe(t *testing.T, status int) {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "feeds.yaml"), []byte(probeCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stats.json"), []byte(`{"demo":true}`), 0o600); err != nil {
		t.Fatalf("write demo payload: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"height":42}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("FEEDS_CONFIG_PATH", filepath.Join(dir, "feeds.yaml"))
	t.Setenv("UPSTREAM_BASE_URL", srv.URL)
	t.Setenv("POLL_MAX_RETRIES", "0")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunProbe_LiveUpstream(t *testing.T) {
	setupProbe(t, http.StatusOK)

	var stdout, stderr bytes.Buffer
	err := runProbe(context.Background(), probeOptions{cycles: 1, timeout: 10 * time.Second, compact: true}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("runProbe() error = %v, stderr = %s", err, stderr.String())
	}

	var state struct {
		IsLive bool `json:"is_live"`
		Feeds  []struct {
			Feed   string `json:"feed"`
			Source string `json:"source"`
		} `json:"feeds"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &state); err != nil {
		t.Fatalf("decode output: %v (%s)", err, stdout.String())
	}
	if !state.IsLive || len(state.Feeds) != 1 || state.Feeds[0].Source != "live" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestRunProbe_FailingUpstreamForcesDemo(t *testing.T) {
	setupProbe(t, http.StatusBadGateway)

	var stdout, stderr bytes.Buffer
	err := runProbe(context.Background(), probeOptions{cycles: 3, timeout: 10 * time.Second}, &stdout, &stderr)
	if !errors.Is(err, errDemoMode) {
		t.Fatalf("runProbe() error = %v, want errDemoMode", err)
	}
	if !bytes.Contains(stdout.Bytes(), []byte(`"should_force_demo_mode": true`)) {
		t.Fatalf("expected forced demo mode in output, got %s", stdout.String())
	}
}

func TestRunProbe_RejectsZeroCycles(t *testing.T) {
	if err := runProbe(context.Background(), probeOptions{cycles: 0}, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for zero cycles")
	}
}
