package cloudwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	applicationPort "github.com/dreschagin/mainnet-dashboard/internal/application/port"
)

type fakeMetricData struct {
	mu       sync.Mutex
	requests []*cloudwatch.PutMetricDataInput
	failures int
}

func (f *fakeMetricData) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("throttled")
	}
	f.requests = append(f.requests, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakeMetricData) datums() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		n += len(r.MetricData)
	}
	return n
}

func newTestMetricsPublisher(t *testing.T, client MetricDataAPI, bufferSize int) *MetricsPublisher {
	t.Helper()
	p, err := NewMetricsPublisherWithClient(client, MetricsPublisherConfig{
		Namespace:     "Test/Freshness",
		Region:        "us-east-1",
		BufferSize:    bufferSize,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewMetricsPublisherWithClient() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestMapUnit(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected string
	}{
		{"percentage", "%", "Percent"},
		{"milliseconds", "ms", "Milliseconds"},
		{"seconds", "s", "Seconds"},
		{"count", "count", "Count"},
		{"unknown", "custom", "None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mapUnit(tt.unit)
			if string(result) != tt.expected {
				t.Errorf("mapUnit(%q) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestConvertToDatum(t *testing.T) {
	p := &MetricsPublisher{
		namespace: "Test/Freshness",
		defaultDimensions: map[string]string{
			"Environment": "test",
		},
		storageResolution: 60,
	}

	at := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	datum := p.convertToDatum(applicationPort.FreshnessSample{
		Name:      "feed_age",
		FeedKey:   "network-stats",
		Value:     12.5,
		Unit:      "s",
		Timestamp: at,
	})

	if datum.MetricName == nil || *datum.MetricName != "feed_age" {
		t.Errorf("Expected MetricName=feed_age, got %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 12.5 {
		t.Errorf("Expected Value=12.5, got %v", datum.Value)
	}
	if datum.Unit != "Seconds" {
		t.Errorf("Expected Unit=Seconds, got %v", datum.Unit)
	}
	if datum.Timestamp == nil || !datum.Timestamp.Equal(at) {
		t.Errorf("Expected Timestamp=%v, got %v", at, datum.Timestamp)
	}

	expected := map[string]string{"Environment": "test", "Feed": "network-stats"}
	if len(datum.Dimensions) != len(expected) {
		t.Fatalf("Expected %d dimensions, got %d", len(expected), len(datum.Dimensions))
	}
	for _, dim := range datum.Dimensions {
		if expected[*dim.Name] != *dim.Value {
			t.Errorf("Dimension %s: expected %s, got %s", *dim.Name, expected[*dim.Name], *dim.Value)
		}
	}
}

func TestConvertToDatum_AggregateHasNoFeedDimension(t *testing.T) {
	p := &MetricsPublisher{}
	datum := p.convertToDatum(applicationPort.FreshnessSample{Name: "consecutive_error_cycles", Value: 2, Unit: "count"})

	if len(datum.Dimensions) != 0 {
		t.Fatalf("Expected no dimensions, got %d", len(datum.Dimensions))
	}
	if datum.Timestamp == nil {
		t.Fatal("Expected Timestamp to default to now")
	}
}

func TestMetricsPublisher_AutoFlushOnFullBuffer(t *testing.T) {
	client := &fakeMetricData{}
	p := newTestMetricsPublisher(t, client, 3)

	samples := []applicationPort.FreshnessSample{
		{Name: "feed_live", FeedKey: "a", Value: 1, Unit: "count"},
		{Name: "feed_live", FeedKey: "b", Value: 0, Unit: "count"},
	}
	if err := p.PublishBatch(context.Background(), samples); err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	if client.datums() != 0 {
		t.Fatal("Expected samples to stay buffered")
	}

	if err := p.PublishBatch(context.Background(), samples[:1]); err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	if client.datums() != 3 {
		t.Fatalf("Expected 3 datums after auto-flush, got %d", client.datums())
	}
}

func TestMetricsPublisher_RetriesTransientErrors(t *testing.T) {
	client := &fakeMetricData{failures: 2}
	p := newTestMetricsPublisher(t, client, 100)

	err := p.PublishSingle(context.Background(), applicationPort.FreshnessSample{Name: "force_demo_mode", Value: 1, Unit: "count"})
	if err != nil {
		t.Fatalf("PublishSingle() error = %v", err)
	}
	if client.datums() != 1 {
		t.Fatalf("Expected 1 datum, got %d", client.datums())
	}
}

func TestMetricsPublisher_CloseFlushes(t *testing.T) {
	client := &fakeMetricData{}
	p, err := NewMetricsPublisherWithClient(client, MetricsPublisherConfig{Namespace: "Test/Freshness", Region: "us-east-1", FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewMetricsPublisherWithClient() error = %v", err)
	}

	if err := p.PublishBatch(context.Background(), []applicationPort.FreshnessSample{{Name: "feed_live", Value: 1}}); err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.datums() != 1 {
		t.Fatalf("Expected buffered sample to be flushed on Close, got %d", client.datums())
	}
}

func TestMetricsConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config MetricsPublisherConfig
	}{
		{"missing namespace", MetricsPublisherConfig{Region: "us-east-1"}},
		{"missing region", MetricsPublisherConfig{Namespace: "Test/Freshness"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMetricsPublisherWithClient(&fakeMetricData{}, tt.config); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
