package view

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
)

func TestTrustLabel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	twoMinutesAgo := now.Add(-2 * time.Minute)

	tests := []struct {
		name string
		snap *dto.SnapshotDTO
		want string
	}{
		{"live", &dto.SnapshotDTO{Source: "live", ReceivedAt: &now}, "live"},
		{"cached", &dto.SnapshotDTO{Source: "cached", ReceivedAt: &twoMinutesAgo, ErrorKind: "rate-limited"}, "cached 2 minutes ago"},
		{"demo network", &dto.SnapshotDTO{Source: "demo", ErrorKind: "network-error"}, "demo data - network issue"},
		{"demo rate limited", &dto.SnapshotDTO{Source: "demo", ErrorKind: "rate-limited"}, "demo data - rate limited"},
		{"initial demo", &dto.SnapshotDTO{Source: "demo"}, "demo data"},
		{"nil", nil, "demo data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrustLabel(tt.snap, now); got != tt.want {
				t.Errorf("TrustLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDashboard_Render(t *testing.T) {
	now := time.Now()
	state := &dto.FreshnessStateDTO{
		Timestamp: now,
		Feeds: []*dto.SnapshotDTO{
			{Feed: "network-stats", Source: "live", ReceivedAt: &now, Payload: json.RawMessage(`{"note":"<b>"}`)},
			{Feed: "validators", Source: "demo", ErrorKind: "server-error", Payload: json.RawMessage(`{}`)},
		},
		DerivedHealth:         &dto.SnapshotDTO{Source: "live", IsStale: true},
		ConsecutiveErrorCount: 3,
		ShouldForceDemoMode:   true,
	}

	var buf bytes.Buffer
	if err := Dashboard(state, now).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		`data-feed="network-stats"`,
		"demo data - upstream error",
		`id="demo-banner"`,
		"3 poll cycles",
		"&lt;b&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page does not contain %q", want)
		}
	}
	if strings.Contains(html, `"<b>"`) {
		t.Error("payload must be escaped")
	}
}
