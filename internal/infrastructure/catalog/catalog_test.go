package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"network-stats", "recent-blocks", "validators", "node-resources"}
	if len(c.Feeds) != len(want) {
		t.Fatalf("expected %d feeds, got %d", len(want), len(c.Feeds))
	}
	for i, key := range want {
		feed := c.Feeds[i]
		if feed.Key != key {
			t.Errorf("feed[%d] = %q, want %q", i, feed.Key, key)
		}
		if !json.Valid(feed.DemoPayload()) {
			t.Errorf("feed %q has invalid demo payload", key)
		}
		if feed.Interval() < time.Second {
			t.Errorf("feed %q interval = %v", key, feed.Interval())
		}
	}

	if c.Feeds[3].Source != SourceNode {
		t.Fatalf("node-resources source = %q, want node", c.Feeds[3].Source)
	}
}

func TestLoad_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	yaml := `feeds:
  - key: gas-price
    source: HTTP
    path: /api/v1/gas
    poll_interval: 15s
`
	if err := os.WriteFile(filepath.Join(dir, "feeds.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "gas-price.json"), []byte("{ \"gwei\": 1.5 }\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c, err := Load(filepath.Join(dir, "feeds.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	feed := c.Feeds[0]
	if feed.Source != SourceHTTP {
		t.Fatalf("source = %q, want normalized http", feed.Source)
	}
	if feed.DemoFile != "gas-price.json" {
		t.Fatalf("demo file default = %q", feed.DemoFile)
	}
	if got := string(feed.DemoPayload()); got != `{"gwei":1.5}` {
		t.Fatalf("demo payload = %s, want compacted JSON", got)
	}

	specs := c.FeedSpecs()
	if len(specs) != 1 || specs[0].Key != "gas-price" || specs[0].PollInterval != 15*time.Second {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}

func TestParse_Errors(t *testing.T) {
	demo := fstest.MapFS{
		"a.json":   {Data: []byte(`{"ok":true}`)},
		"bad.json": {Data: []byte(`{broken`)},
	}

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "feeds: []", "no feeds"},
		{"bad key", "feeds:\n  - {key: Bad_Key, source: node, poll_interval: 5s, demo_file: a.json}", "feed key"},
		{"unknown source", "feeds:\n  - {key: a, source: grpc, poll_interval: 5s, demo_file: a.json}", "unknown source"},
		{"http without path", "feeds:\n  - {key: a, source: http, poll_interval: 5s, demo_file: a.json}", "requires path"},
		{"bad interval", "feeds:\n  - {key: a, source: node, poll_interval: soon, demo_file: a.json}", "poll_interval"},
		{"too fast", "feeds:\n  - {key: a, source: node, poll_interval: 10ms, demo_file: a.json}", "at least 1s"},
		{"missing demo", "feeds:\n  - {key: a, source: node, poll_interval: 5s, demo_file: missing.json}", "read demo payload"},
		{"invalid demo", "feeds:\n  - {key: a, source: node, poll_interval: 5s, demo_file: bad.json}", "not valid JSON"},
		{"duplicate", "feeds:\n  - {key: a, source: node, poll_interval: 5s}\n  - {key: a, source: node, poll_interval: 5s}", "duplicate"},
		{"malformed yaml", "feeds: [", "parse catalog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), demo)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

type mapDemoSource map[string]string

func (m mapDemoSource) Load(_ context.Context, feedKey string) (json.RawMessage, error) {
	if feedKey == "recent-blocks" {
		return nil, errors.New("access denied")
	}
	raw, ok := m[feedKey]
	if !ok {
		return nil, port.ErrDemoPayloadNotFound
	}
	return json.RawMessage(raw), nil
}

func TestApplyDemoOverrides(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	before := string(c.Feeds[1].DemoPayload())

	source := mapDemoSource{
		"network-stats": `{"chain_id": "override"}`,
		"validators":    `not json`,
	}
	applied := c.ApplyDemoOverrides(context.Background(), source, logger.New("error"))

	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if got := string(c.Feeds[0].DemoPayload()); got != `{"chain_id":"override"}` {
		t.Fatalf("override not applied: %s", got)
	}
	if got := string(c.Feeds[1].DemoPayload()); got != before {
		t.Fatal("failed override must keep embedded payload")
	}
	if !json.Valid(c.Feeds[2].DemoPayload()) {
		t.Fatal("invalid override must be ignored")
	}
}
