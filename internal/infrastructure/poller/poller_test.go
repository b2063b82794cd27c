package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/application/usecase"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/upstream"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

type upstreamStatus int

func (e upstreamStatus) Error() string   { return fmt.Sprintf("upstream status %d", int(e)) }
func (e upstreamStatus) HTTPStatus() int { return int(e) }

type recordingReporter struct {
	mu    sync.Mutex
	cmds  []usecase.ReportPollResultCommand
	calls chan string
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{calls: make(chan string, 64)}
}

func (r *recordingReporter) Execute(_ context.Context, cmd usecase.ReportPollResultCommand) (entity.ControllerState, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()

	select {
	case r.calls <- cmd.FeedKey:
	default:
	}
	return entity.ControllerState{}, nil
}

func (r *recordingReporter) last() usecase.ReportPollResultCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmds[len(r.cmds)-1]
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

type staticAdvisor struct {
	force    atomic.Bool
	byConfig bool
}

func (a *staticAdvisor) ShouldForceDemoMode() bool { return a.force.Load() || a.byConfig }
func (a *staticAdvisor) ForcedByConfig() bool      { return a.byConfig }

// scriptedFetcher возвращает ошибки по порядку, затем payload
func scriptedFetcher(attempts *int32, errs ...error) port.FeedFetcher {
	return port.FeedFetcherFunc(func(context.Context) (json.RawMessage, error) {
		n := int(atomic.AddInt32(attempts, 1))
		if n <= len(errs) {
			return nil, errs[n-1]
		}
		return json.RawMessage(`{"height":100}`), nil
	})
}

func testConfig() Config {
	return Config{
		MaxRetries:       2,
		BaseDelay:        time.Millisecond,
		MaxDelay:         time.Millisecond,
		RequestTimeout:   time.Second,
		DegradedInterval: time.Hour,
	}
}

func newTestPoller(t *testing.T, reporter Reporter, advisor DemoAdvisor, feeds ...Feed) *Poller {
	t.Helper()
	p, err := New(feeds, reporter, advisor, testConfig(), logger.New("error"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestPollOnce_RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	reporter := newRecordingReporter()
	p := newTestPoller(t, reporter, &staticAdvisor{}, Feed{
		Key:      "recent-blocks",
		Interval: time.Second,
		Fetcher:  scriptedFetcher(&attempts, upstreamStatus(502), errors.New("connection reset")),
	})

	if _, err := p.PollOnce(context.Background(), "recent-blocks"); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if reporter.count() != 1 {
		t.Fatalf("expected exactly one report per logical poll, got %d", reporter.count())
	}
	if cmd := reporter.last(); cmd.Err != nil || string(cmd.Payload) != `{"height":100}` {
		t.Fatalf("unexpected report: %+v", cmd)
	}
}

func TestPollOnce_MalformedBodyIsNotRetried(t *testing.T) {
	var attempts int32
	reporter := newRecordingReporter()
	malformed := fmt.Errorf("%w from http://upstream.local/stats", upstream.ErrMalformedPayload)
	p := newTestPoller(t, reporter, &staticAdvisor{}, Feed{
		Key:      "network-stats",
		Interval: time.Second,
		Fetcher:  scriptedFetcher(&attempts, malformed, malformed, malformed),
	})

	if _, err := p.PollOnce(context.Background(), "network-stats"); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
	if cmd := reporter.last(); !errors.Is(cmd.Err, upstream.ErrMalformedPayload) {
		t.Fatalf("reported error = %v, want ErrMalformedPayload", cmd.Err)
	}
}

func TestPollOnce_ExhaustedRetriesReportLastError(t *testing.T) {
	var attempts int32
	reporter := newRecordingReporter()
	p := newTestPoller(t, reporter, &staticAdvisor{}, Feed{
		Key:      "network-stats",
		Interval: time.Second,
		Fetcher:  scriptedFetcher(&attempts, upstreamStatus(500), upstreamStatus(500), upstreamStatus(429)),
	})

	if _, err := p.PollOnce(context.Background(), "network-stats"); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	cmd := reporter.last()
	if cmd.Err == nil {
		t.Fatal("expected failure report")
	}
	if kind := valueobject.ClassifyError(cmd.Err); kind != valueobject.RateLimited {
		t.Fatalf("reported error classifies as %q, want rate-limited", kind)
	}

	status := p.Status()
	if status[0].Failures != 1 || status[0].LastError == "" {
		t.Fatalf("unexpected status: %+v", status[0])
	}
}

func TestPollOnce_NonRetryableStatus(t *testing.T) {
	var attempts int32
	reporter := newRecordingReporter()
	p := newTestPoller(t, reporter, &staticAdvisor{}, Feed{
		Key:      "network-stats",
		Interval: time.Second,
		Fetcher:  scriptedFetcher(&attempts, upstreamStatus(404), upstreamStatus(404), upstreamStatus(404)),
	})

	if _, err := p.PollOnce(context.Background(), "network-stats"); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1 for non-retryable status", got)
	}
}

func TestPollOnce_UnknownFeed(t *testing.T) {
	var attempts int32
	p := newTestPoller(t, newRecordingReporter(), &staticAdvisor{}, Feed{
		Key: "network-stats", Interval: time.Second, Fetcher: scriptedFetcher(&attempts),
	})

	if _, err := p.PollOnce(context.Background(), "missing"); !errors.Is(err, ErrUnknownFeed) {
		t.Fatalf("expected ErrUnknownFeed, got %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("i/o timeout"), true},
		{"429", upstreamStatus(429), true},
		{"500", upstreamStatus(500), true},
		{"503", upstreamStatus(503), true},
		{"404", upstreamStatus(404), false},
		{"canceled", context.Canceled, false},
		{"malformed body", fmt.Errorf("%w from http://upstream.local/stats", upstream.ErrMalformedPayload), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStart_PollsEveryFeedUntilCanceled(t *testing.T) {
	var statsAttempts, blocksAttempts int32
	reporter := newRecordingReporter()
	p := newTestPoller(t, reporter, &staticAdvisor{},
		Feed{Key: "network-stats", Interval: 5 * time.Millisecond, Fetcher: scriptedFetcher(&statsAttempts)},
		Feed{Key: "recent-blocks", Interval: 5 * time.Millisecond, Fetcher: scriptedFetcher(&blocksAttempts)},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	seen := map[string]int{}
	deadline := time.After(2 * time.Second)
	for seen["network-stats"] < 2 || seen["recent-blocks"] < 2 {
		select {
		case key := <-reporter.calls:
			seen[key]++
		case <-deadline:
			t.Fatalf("feeds were not polled repeatedly: %v", seen)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestStart_ForcedByConfigSkipsPolling(t *testing.T) {
	var attempts int32
	reporter := newRecordingReporter()
	p := newTestPoller(t, reporter, &staticAdvisor{byConfig: true},
		Feed{Key: "network-stats", Interval: 2 * time.Millisecond, Fetcher: scriptedFetcher(&attempts)},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p.Start(ctx)

	if got := atomic.LoadInt32(&attempts); got != 0 {
		t.Fatalf("forced demo data must not hit upstream, got %d attempts", got)
	}
	if reporter.count() != 0 {
		t.Fatal("forced demo data must not report")
	}
}

func TestNextInterval_DegradedMode(t *testing.T) {
	advisor := &staticAdvisor{}
	var attempts int32
	feed := Feed{Key: "network-stats", Interval: time.Second, Fetcher: scriptedFetcher(&attempts)}
	p := newTestPoller(t, newRecordingReporter(), advisor, feed)

	if got := p.nextInterval(feed); got != time.Second {
		t.Fatalf("nextInterval() = %v, want 1s", got)
	}
	advisor.force.Store(true)
	if got := p.nextInterval(feed); got != time.Hour {
		t.Fatalf("nextInterval() in degraded mode = %v, want 1h", got)
	}
}

func TestNew_Validation(t *testing.T) {
	var attempts int32
	fetcher := scriptedFetcher(&attempts)

	cases := map[string][]Feed{
		"no feeds":    nil,
		"nil fetcher": {{Key: "a", Interval: time.Second}},
		"zero period": {{Key: "a", Fetcher: fetcher}},
		"duplicate":   {{Key: "a", Interval: time.Second, Fetcher: fetcher}, {Key: "a", Interval: time.Second, Fetcher: fetcher}},
	}
	for name, feeds := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(feeds, newRecordingReporter(), &staticAdvisor{}, testConfig(), logger.New("error")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
