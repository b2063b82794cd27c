package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
)

const (
	DefaultMaxCacheAge          = 5 * time.Minute
	DefaultMaxConsecutiveErrors = 3
)

// ErrUnknownFeed возвращается при отчете по незарегистрированному фиду.
// Это ошибка вызывающего кода, а не состояние апстрима.
var ErrUnknownFeed = errors.New("unknown feed")

// ErrEmptyPayload подставляется вместо успеха без данных: live снапшот всегда несет payload
var ErrEmptyPayload = errors.New("empty payload")

// ControllerConfig параметры контроллера свежести
type ControllerConfig struct {
	MaxCacheAge          time.Duration
	MaxConsecutiveErrors int
	// ForceDemoData внешний флаг окружения, принудительно включающий demo режим
	ForceDemoData bool
}

// FeedSpec описание фида, регистрируемого в контроллере
type FeedSpec struct {
	Key          string
	PollInterval time.Duration
	DemoPayload  json.RawMessage
}

type feedState struct {
	spec            FeedSpec
	snapshot        entity.Snapshot
	lastGoodPayload json.RawMessage
	lastGoodAt      time.Time
	reported        bool
}

// FreshnessController ведет для каждого фида снапшот live/cached/demo
// и агрегаты по всем фидам (Domain Service).
// Все состояние защищено одним мьютексом: пересчет агрегатов читает
// все фиды и не должен видеть частично примененный отчет.
type FreshnessController struct {
	mu sync.Mutex

	cfg   ControllerConfig
	order []string
	feeds map[string]*feedState

	isLive                bool
	lastLiveUpdate        time.Time
	consecutiveErrorCount int
	// растет на каждый примененный отчет
	version uint64

	// текущий цикл опроса: какие фиды уже отчитались и был ли среди них live
	cycleReported map[string]struct{}
	cycleLive     bool
}

// NewFreshnessController создает контроллер. Все фиды стартуют в demo.
func NewFreshnessController(cfg ControllerConfig, feeds []FeedSpec) (*FreshnessController, error) {
	if cfg.MaxCacheAge <= 0 {
		cfg.MaxCacheAge = DefaultMaxCacheAge
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if len(feeds) == 0 {
		return nil, errors.New("at least one feed is required")
	}

	c := &FreshnessController{
		cfg:           cfg,
		order:         make([]string, 0, len(feeds)),
		feeds:         make(map[string]*feedState, len(feeds)),
		cycleReported: make(map[string]struct{}, len(feeds)),
	}

	for _, spec := range feeds {
		if err := valueobject.ValidateFeedKey(spec.Key); err != nil {
			return nil, err
		}
		if _, exists := c.feeds[spec.Key]; exists {
			return nil, fmt.Errorf("duplicate feed %q", spec.Key)
		}
		if len(spec.DemoPayload) == 0 || !json.Valid(spec.DemoPayload) {
			return nil, fmt.Errorf("feed %q: demo payload must be valid JSON", spec.Key)
		}

		spec.DemoPayload = clonePayload(spec.DemoPayload)
		c.order = append(c.order, spec.Key)
		c.feeds[spec.Key] = &feedState{
			spec: spec,
			snapshot: entity.Snapshot{
				FeedKey: spec.Key,
				Payload: spec.DemoPayload,
				Source:  valueobject.Demo,
				IsStale: true,
			},
		}
	}

	return c, nil
}

// ReportPollResult применяет итог опроса к снапшоту фида и пересчитывает агрегаты.
// Неуспешный опрос не является ошибкой: он превращается в cached или demo снапшот.
func (c *FreshnessController) ReportPollResult(feedKey string, outcome entity.PollOutcome) (entity.ControllerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	feed, ok := c.feeds[feedKey]
	if !ok {
		return entity.ControllerState{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedKey)
	}

	if !outcome.Failed() && len(outcome.Payload) == 0 {
		outcome = entity.Failure(ErrEmptyPayload, outcome.ObservedAt)
	}

	feed.reported = true
	t := outcome.ObservedAt
	if outcome.Failed() {
		feed.snapshot = c.degradedSnapshot(feed, outcome.Err, t)
	} else {
		payload := clonePayload(outcome.Payload)
		feed.lastGoodPayload = payload
		feed.lastGoodAt = t
		feed.snapshot = entity.Snapshot{
			FeedKey:    feedKey,
			Payload:    payload,
			ReceivedAt: t,
			Source:     valueobject.Live,
			IsStale:    false,
		}
	}

	c.recomputeLocked(feedKey, !outcome.Failed(), t)
	c.version++
	return c.stateLocked(), nil
}

func (c *FreshnessController) degradedSnapshot(feed *feedState, err error, t time.Time) entity.Snapshot {
	kind := valueobject.ClassifyError(err)

	// receivedAt у cached остается временем получения данных, а не временем сбоя
	if feed.lastGoodPayload != nil && t.Sub(feed.lastGoodAt) < c.cfg.MaxCacheAge {
		return entity.Snapshot{
			FeedKey:    feed.spec.Key,
			Payload:    feed.lastGoodPayload,
			ReceivedAt: feed.lastGoodAt,
			Source:     valueobject.Cached,
			IsStale:    true,
			ErrorKind:  kind,
		}
	}

	return entity.Snapshot{
		FeedKey:    feed.spec.Key,
		Payload:    feed.spec.DemoPayload,
		ReceivedAt: t,
		Source:     valueobject.Demo,
		IsStale:    true,
		ErrorKind:  kind,
	}
}

func (c *FreshnessController) recomputeLocked(feedKey string, succeeded bool, t time.Time) {
	c.isLive = false
	for _, key := range c.order {
		if c.feeds[key].snapshot.Source == valueobject.Live {
			c.isLive = true
			break
		}
	}

	if c.isLive {
		c.consecutiveErrorCount = 0
		c.lastLiveUpdate = t
	}

	if succeeded {
		c.cycleLive = true
	}
	c.cycleReported[feedKey] = struct{}{}

	// цикл закрывается, когда отчитались все фиды; счетчик растет не чаще раза за цикл
	if len(c.cycleReported) < len(c.order) {
		return
	}
	if !c.cycleLive && !c.isLive {
		c.consecutiveErrorCount++
	}
	clear(c.cycleReported)
	c.cycleLive = false
}

// State возвращает копию текущего состояния. Побочных эффектов нет.
func (c *FreshnessController) State() entity.ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// ShouldForceDemoMode советует вызывающему перейти в demo режим целиком
func (c *FreshnessController) ShouldForceDemoMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldForceDemoLocked()
}

// ForcedByConfig сообщает, включен ли demo режим флагом окружения
func (c *FreshnessController) ForcedByConfig() bool {
	return c.cfg.ForceDemoData
}

// Ready сообщает, что каждый фид получил хотя бы один отчет
func (c *FreshnessController) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.order {
		if !c.feeds[key].reported {
			return false
		}
	}
	return true
}

// Feeds возвращает зарегистрированные фиды в порядке регистрации
func (c *FreshnessController) Feeds() []FeedSpec {
	c.mu.Lock()
	defer c.mu.Unlock()

	specs := make([]FeedSpec, 0, len(c.order))
	for _, key := range c.order {
		specs = append(specs, c.feeds[key].spec)
	}
	return specs
}

// Config возвращает действующую конфигурацию с примененными значениями по умолчанию
func (c *FreshnessController) Config() ControllerConfig {
	return c.cfg
}

func (c *FreshnessController) shouldForceDemoLocked() bool {
	return c.consecutiveErrorCount >= c.cfg.MaxConsecutiveErrors || c.cfg.ForceDemoData
}

func (c *FreshnessController) stateLocked() entity.ControllerState {
	state := entity.ControllerState{
		Feeds:                 make([]entity.Snapshot, 0, len(c.order)),
		IsLive:                c.isLive,
		LastLiveUpdate:        c.lastLiveUpdate,
		ConsecutiveErrorCount: c.consecutiveErrorCount,
		ShouldForceDemoMode:   c.shouldForceDemoLocked(),
		Version:               c.version,
	}

	health := entity.Snapshot{FeedKey: "derived-health", Source: valueobject.Demo}
	for _, key := range c.order {
		snap := c.feeds[key].snapshot
		// вызывающий код получает свою копию: payload контроллера не должен меняться снаружи
		snap.Payload = clonePayload(snap.Payload)
		state.Feeds = append(state.Feeds, snap)

		if snap.Source.Rank() > health.Source.Rank() {
			health.Source = snap.Source
		}
		if snap.ReceivedAt.After(health.ReceivedAt) {
			health.ReceivedAt = snap.ReceivedAt
		}
		if snap.IsStale {
			health.IsStale = true
		}
	}
	state.DerivedHealth = health

	return state
}

func clonePayload(p json.RawMessage) json.RawMessage {
	if p == nil {
		return nil
	}
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out
}
