package collector

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNodeResourcesFetcher_Fetch(t *testing.T) {
	f := NewNodeResourcesFetcher("/")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := f.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	var res NodeResources
	if err := json.Unmarshal(payload, &res); err != nil {
		t.Fatalf("payload is not NodeResources JSON: %v", err)
	}
	if !res.CollectedAt.Equal(fixed) {
		t.Fatalf("collected_at = %v, want %v", res.CollectedAt, fixed)
	}
	if res.Memory == nil || res.Memory.TotalMB == 0 {
		t.Fatalf("expected memory section, got %+v", res.Memory)
	}
	if res.Memory.UsagePercent < 0 || res.Memory.UsagePercent > 100 {
		t.Fatalf("memory usage out of range: %v", res.Memory.UsagePercent)
	}
}

func TestNetworkCollector_FirstCallHasZeroRate(t *testing.T) {
	c := NewNetworkCollector()

	stats, err := c.Collect(context.Background())
	if err != nil {
		t.Skipf("network counters unavailable: %v", err)
	}
	if stats.SentKBps != 0 || stats.RecvKBps != 0 {
		t.Fatalf("first sample must not report rate, got %+v", stats)
	}

	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
}
