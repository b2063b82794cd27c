package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
)

type inMemoryTransitionRepo struct {
	mu    sync.Mutex
	items []*entity.Transition
	err   error
}

func (r *inMemoryTransitionRepo) Save(_ context.Context, t *entity.Transition) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, t)
	return nil
}

func (r *inMemoryTransitionRepo) SaveBatch(ctx context.Context, ts []*entity.Transition) error {
	for _, t := range ts {
		if err := r.Save(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *inMemoryTransitionRepo) FindByTimeRange(_ context.Context, feedKey string, tr valueobject.TimeRange) ([]*entity.Transition, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Transition
	for _, t := range r.items {
		if t.FeedKey() == feedKey && tr.Contains(t.ObservedAt()) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt().Before(out[j].ObservedAt()) })
	return out, nil
}

func (r *inMemoryTransitionRepo) FindLatestBefore(_ context.Context, feedKey string, before time.Time) (*entity.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *entity.Transition
	for _, t := range r.items {
		if t.FeedKey() != feedKey || !t.ObservedAt().Before(before) {
			continue
		}
		if latest == nil || t.ObservedAt().After(latest.ObservedAt()) {
			latest = t
		}
	}
	return latest, nil
}

type publishedEvent struct {
	subject string
	event   interface{}
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) PublishEvent(_ context.Context, subject string, event interface{}) error {
	p.events = append(p.events, publishedEvent{subject: subject, event: event})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeNotifier struct {
	mu          sync.Mutex
	states      []*dto.FreshnessStateDTO
	transitions []*dto.TransitionDTO
}

func (n *fakeNotifier) Broadcast(state *dto.FreshnessStateDTO) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
}

func (n *fakeNotifier) BroadcastTransition(t *dto.TransitionDTO) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, t)
}

func (n *fakeNotifier) ClientCount() int { return 1 }

func (n *fakeNotifier) lastState() *dto.FreshnessStateDTO {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.states) == 0 {
		return nil
	}
	return n.states[len(n.states)-1]
}

// blockingObserver задерживает обработку отчета по одному фиду,
// пока тест не отпустит release
type blockingObserver struct {
	feed    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (o *blockingObserver) ObserveReport(feedKey, _, _ string, _ int, _ bool) {
	if feedKey != o.feed {
		return
	}
	o.once.Do(func() {
		close(o.entered)
		<-o.release
	})
}

type fakeMetrics struct {
	samples []port.FreshnessSample
}

func (m *fakeMetrics) PublishBatch(_ context.Context, samples []port.FreshnessSample) error {
	m.samples = append(m.samples, samples...)
	return nil
}

func (m *fakeMetrics) PublishSingle(_ context.Context, sample port.FreshnessSample) error {
	m.samples = append(m.samples, sample)
	return nil
}

func (m *fakeMetrics) Flush(context.Context) error { return nil }

type fakeCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	sets     chan string
	patterns []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), sets: make(chan string, 8)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = raw
	c.mu.Unlock()
	c.sets <- key
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, pattern)
	return nil
}

func (c *fakeCache) Close() error { return nil }

type statusError int

func (e statusError) Error() string   { return "upstream status" }
func (e statusError) HTTPStatus() int { return int(e) }

func newController(t *testing.T, keys ...string) *service.FreshnessController {
	t.Helper()

	specs := make([]service.FeedSpec, 0, len(keys))
	for _, key := range keys {
		specs = append(specs, service.FeedSpec{
			Key:          key,
			PollInterval: time.Second,
			DemoPayload:  json.RawMessage(`{"demo":true}`),
		})
	}
	c, err := service.NewFreshnessController(service.ControllerConfig{}, specs)
	if err != nil {
		t.Fatalf("NewFreshnessController() error = %v", err)
	}
	return c
}
