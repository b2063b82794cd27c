package logger

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []port.LogEntry
	flushed bool
}

func (p *recordingPublisher) Publish(_ context.Context, entry port.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, entries []port.LogEntry) error {
	for _, e := range entries {
		_ = p.Publish(ctx, e)
	}
	return nil
}

func (p *recordingPublisher) Flush(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushed = true
	return nil
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("Feed poll failed", "feed", "network-stats", "error_kind", "rate-limited")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Fatalf("messages below level must be dropped: %q", out)
	}
	if !strings.Contains(out, "[WARN] Feed poll failed | feed=network-stats error_kind=rate-limited") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLogger_ErrorAppendsErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Error("Failed to save transition", context.DeadlineExceeded, "feed", "validators")

	if !strings.Contains(buf.String(), "feed=validators error=context deadline exceeded") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestLogger_ShipsEntriesToPublisher(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)
	publisher := &recordingPublisher{}
	log.SetLogPublisher(publisher, "warn")

	log.Info("not shipped")
	log.Warn("Feed poll failed", "feed", "recent-blocks")
	log.Error("Failed to publish transition", nil, "subject", "freshness.transition.recent-blocks")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := log.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(publisher.entries) != 2 {
		t.Fatalf("shipped %d entries, want 2", len(publisher.entries))
	}
	first := publisher.entries[0]
	if first.Level != port.LogLevelWarn || first.Message != "Feed poll failed" || first.Fields["feed"] != "recent-blocks" {
		t.Fatalf("unexpected entry: %+v", first)
	}
	if publisher.entries[1].Level != port.LogLevelError {
		t.Fatalf("second entry level = %s", publisher.entries[1].Level)
	}
	if !publisher.flushed {
		t.Fatal("Close must flush the publisher")
	}

	log.Warn("after close")
	if len(publisher.entries) != 2 {
		t.Fatal("entries must not be shipped after Close")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"info":    INFO,
		"warn":    WARN,
		"error":   ERROR,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
