package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/application/usecase"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/upstream"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
	"github.com/dustin/go-humanize"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ErrUnknownFeed возвращается PollOnce для фида, которого нет у поллера
var ErrUnknownFeed = errors.New("poller: unknown feed")

// Config параметры опроса и повторов
type Config struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	RequestTimeout   time.Duration
	DegradedInterval time.Duration
}

// DefaultConfig значения по умолчанию: 2 повтора, backoff до 5s
func DefaultConfig() Config {
	return Config{
		MaxRetries:       2,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		RequestTimeout:   8 * time.Second,
		DegradedInterval: 30 * time.Second,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.DegradedInterval <= 0 {
		cfg.DegradedInterval = def.DegradedInterval
	}
	return cfg
}

// Feed фид, который опрашивает поллер
type Feed struct {
	Key      string
	Interval time.Duration
	Fetcher  port.FeedFetcher
}

// Reporter принимает итог логической попытки опроса
type Reporter interface {
	Execute(ctx context.Context, cmd usecase.ReportPollResultCommand) (entity.ControllerState, error)
}

// DemoAdvisor сообщает, нужно ли перестать доверять живым данным
type DemoAdvisor interface {
	ShouldForceDemoMode() bool
	ForcedByConfig() bool
}

// FeedStatus состояние опроса одного фида
type FeedStatus struct {
	Feed      string    `json:"feed"`
	Interval  string    `json:"interval"`
	Polls     uint64    `json:"polls"`
	Failures  uint64    `json:"failures"`
	LastRunAt time.Time `json:"last_run_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Poller владеет таймерами фидов: по одной горутине на фид.
// Повторы с backoff выполняются здесь; в контроллер уходит один итог на попытку.
type Poller struct {
	order    []string
	feeds    map[string]Feed
	reporter Reporter
	advisor  DemoAdvisor
	cfg      Config
	log      *logger.Logger
	now      func() time.Time

	executor failsafe.Executor[json.RawMessage]

	mu     sync.RWMutex
	status map[string]*FeedStatus
}

// New создает поллер
func New(feeds []Feed, reporter Reporter, advisor DemoAdvisor, cfg Config, log *logger.Logger) (*Poller, error) {
	if len(feeds) == 0 {
		return nil, errors.New("poller: no feeds")
	}
	cfg = normalizeConfig(cfg)

	p := &Poller{
		order:    make([]string, 0, len(feeds)),
		feeds:    make(map[string]Feed, len(feeds)),
		reporter: reporter,
		advisor:  advisor,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		status:   make(map[string]*FeedStatus, len(feeds)),
	}

	for _, feed := range feeds {
		if feed.Fetcher == nil {
			return nil, fmt.Errorf("poller: feed %q has no fetcher", feed.Key)
		}
		if feed.Interval <= 0 {
			return nil, fmt.Errorf("poller: feed %q has non-positive interval", feed.Key)
		}
		if _, dup := p.feeds[feed.Key]; dup {
			return nil, fmt.Errorf("poller: duplicate feed %q", feed.Key)
		}
		p.order = append(p.order, feed.Key)
		p.feeds[feed.Key] = feed
		p.status[feed.Key] = &FeedStatus{Feed: feed.Key, Interval: feed.Interval.String()}
	}

	p.executor = failsafe.With[json.RawMessage](newRetryPolicy(cfg))
	return p, nil
}

func newRetryPolicy(cfg Config) retrypolicy.RetryPolicy[json.RawMessage] {
	return retrypolicy.NewBuilder[json.RawMessage]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ json.RawMessage, err error) bool {
			return ShouldRetry(err)
		}).
		ReturnLastFailure().
		Build()
}

// ShouldRetry повторяем сетевые ошибки, 429 и 5xx; остальные статусы
// и битое тело при 2xx окончательны
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, upstream.ErrMalformedPayload) {
		return false
	}

	var sc valueobject.StatusCoder
	if !errors.As(err, &sc) {
		return true
	}
	code := sc.HTTPStatus()
	return code == 429 || code >= 500
}

// Start запускает опрос всех фидов и блокируется до отмены ctx
func (p *Poller) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, key := range p.order {
		feed := p.feeds[key]
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.run(ctx, feed)
		}()
	}

	p.log.Info("Poller started", "feeds", len(p.order))
	wg.Wait()
	p.log.Info("Poller stopped")
}

func (p *Poller) run(ctx context.Context, feed Feed) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !p.advisor.ForcedByConfig() {
				if _, err := p.PollOnce(ctx, feed.Key); err != nil && ctx.Err() == nil {
					p.log.Error("Poll cycle failed", err, "feed", feed.Key)
				}
			}
			timer.Reset(p.nextInterval(feed))
		}
	}
}

// nextInterval замедляет опрос, пока контроллер советует demo режим
func (p *Poller) nextInterval(feed Feed) time.Duration {
	if p.advisor.ShouldForceDemoMode() && p.cfg.DegradedInterval > feed.Interval {
		return p.cfg.DegradedInterval
	}
	return feed.Interval
}

// PollOnce выполняет одну логическую попытку опроса фида и передает итог репортеру
func (p *Poller) PollOnce(ctx context.Context, key string) (entity.ControllerState, error) {
	feed, ok := p.feeds[key]
	if !ok {
		return entity.ControllerState{}, fmt.Errorf("%w: %s", ErrUnknownFeed, key)
	}

	payload, fetchErr := p.fetch(ctx, feed)
	if fetchErr != nil && ctx.Err() != nil {
		// остановка сервиса не является сбоем апстрима
		return entity.ControllerState{}, ctx.Err()
	}

	observedAt := p.now()
	p.updateStatus(key, observedAt, fetchErr)

	return p.reporter.Execute(ctx, usecase.ReportPollResultCommand{
		FeedKey:    key,
		Payload:    payload,
		Err:        fetchErr,
		ObservedAt: observedAt,
	})
}

// PollAll опрашивает все фиды по одному разу, последовательно
func (p *Poller) PollAll(ctx context.Context) (entity.ControllerState, error) {
	var (
		state entity.ControllerState
		err   error
	)
	for _, key := range p.order {
		state, err = p.PollOnce(ctx, key)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func (p *Poller) fetch(ctx context.Context, feed Feed) (json.RawMessage, error) {
	attempt := 0
	return p.executor.WithContext(ctx).Get(func() (json.RawMessage, error) {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()

		payload, err := feed.Fetcher.Fetch(reqCtx)
		if err != nil && attempt <= p.cfg.MaxRetries && ShouldRetry(err) {
			p.log.Debug("Feed fetch attempt failed, retrying",
				"feed", feed.Key,
				"attempt", attempt,
				"error", err.Error())
		}
		return payload, err
	})
}

func (p *Poller) updateStatus(key string, at time.Time, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.status[key]
	st.Polls++
	st.LastRunAt = at
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}

	if st.Polls%1000 == 0 {
		p.log.Info("Feed poll milestone",
			"feed", key,
			"polls", humanize.Comma(int64(st.Polls)),
			"failures", humanize.Comma(int64(st.Failures)))
	}
}

// Status возвращает копию состояния опроса по всем фидам
func (p *Poller) Status() []FeedStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]FeedStatus, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, *p.status[key])
	}
	return out
}
