package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/repository"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

const defaultSubjectPrefix = "freshness"

// ReportPollResultCommand итог одной логической попытки опроса от Poller
type ReportPollResultCommand struct {
	FeedKey    string
	Payload    json.RawMessage
	Err        error
	ObservedAt time.Time
}

// ReportPollResultDeps опциональные получатели результата. Nil поля пропускаются.
type ReportPollResultDeps struct {
	Repository    repository.TransitionRepository
	Publisher     port.EventPublisher
	Notifier      port.NotificationService
	Metrics       port.MetricsPublisher
	Observer      port.FreshnessObserver
	HistoryCache  port.Cache
	SubjectPrefix string
}

// ReportPollResultUseCase передает итог опроса в контроллер свежести,
// записывает переходы и рассылает новое состояние
type ReportPollResultUseCase struct {
	controller *service.FreshnessController
	validator  *service.PayloadValidator
	deps       ReportPollResultDeps
	logger     *logger.Logger

	// State+Report и рассылка состояния атомарны: переход считается от верного снапшота,
	// а клиенты получают состояния в порядке применения отчетов
	mu sync.Mutex
}

// NewReportPollResultUseCase создает новый use case
func NewReportPollResultUseCase(
	controller *service.FreshnessController,
	validator *service.PayloadValidator,
	deps ReportPollResultDeps,
	logger *logger.Logger,
) *ReportPollResultUseCase {
	if deps.SubjectPrefix == "" {
		deps.SubjectPrefix = defaultSubjectPrefix
	}
	return &ReportPollResultUseCase{
		controller: controller,
		validator:  validator,
		deps:       deps,
		logger:     logger,
	}
}

// Execute применяет итог опроса. Ошибка возвращается только для незарегистрированного фида.
func (uc *ReportPollResultUseCase) Execute(ctx context.Context, cmd ReportPollResultCommand) (entity.ControllerState, error) {
	outcome := uc.buildOutcome(cmd)

	uc.mu.Lock()
	prev, _ := uc.controller.State().Feed(cmd.FeedKey)
	state, err := uc.controller.ReportPollResult(cmd.FeedKey, outcome)
	if err == nil && uc.deps.Notifier != nil {
		// Broadcast только ставит сообщение в очередь hub и не блокируется
		uc.deps.Notifier.Broadcast(dto.NewFreshnessStateDTO(state, uc.controller.ForcedByConfig(), outcome.ObservedAt))
	}
	uc.mu.Unlock()

	if err != nil {
		return state, fmt.Errorf("report poll result: %w", err)
	}

	next, _ := state.Feed(cmd.FeedKey)
	if outcome.Failed() {
		uc.logger.Warn("Feed poll failed",
			"feed", cmd.FeedKey,
			"source", next.Source,
			"error_kind", next.ErrorKind,
			"error", outcome.Err.Error())
	} else {
		uc.logger.Debug("Feed poll succeeded", "feed", cmd.FeedKey, "bytes", len(outcome.Payload))
	}

	if entity.IsTransition(prev, next) {
		uc.recordTransition(ctx, prev, next, outcome.ObservedAt)
	}

	if uc.deps.Observer != nil {
		uc.deps.Observer.ObserveReport(cmd.FeedKey, next.Source.String(), next.ErrorKind.String(), state.ConsecutiveErrorCount, state.IsLive)
	}
	uc.publishSamples(ctx, cmd.FeedKey, next, state, outcome.ObservedAt)

	return state, nil
}

func (uc *ReportPollResultUseCase) buildOutcome(cmd ReportPollResultCommand) entity.PollOutcome {
	observedAt := cmd.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	if cmd.Err != nil {
		return entity.Failure(cmd.Err, observedAt)
	}
	if err := uc.validator.Validate(cmd.Payload); err != nil {
		return entity.Failure(err, observedAt)
	}
	return entity.Success(cmd.Payload, observedAt)
}

func (uc *ReportPollResultUseCase) recordTransition(ctx context.Context, prev, next entity.Snapshot, observedAt time.Time) {
	transition, err := entity.NewTransition(prev, next, observedAt)
	if err != nil {
		uc.logger.Error("Failed to build transition", err, "feed", next.FeedKey)
		return
	}

	transitionDTO := dto.FromTransition(transition)
	uc.logger.Info("Feed source changed",
		"feed", next.FeedKey,
		"from", prev.Source,
		"to", next.Source,
		"error_kind", next.ErrorKind)

	if uc.deps.Repository != nil {
		if err := uc.deps.Repository.Save(ctx, transition); err != nil {
			uc.logger.Error("Failed to save transition", err, "feed", next.FeedKey)
		}
	}

	if uc.deps.HistoryCache != nil {
		if err := uc.deps.HistoryCache.DeletePattern(ctx, HistoryCachePattern(next.FeedKey)); err != nil {
			uc.logger.Warn("Failed to invalidate history cache", "feed", next.FeedKey, "error", err.Error())
		}
	}

	if uc.deps.Publisher != nil {
		subject := fmt.Sprintf("%s.transition.%s", uc.deps.SubjectPrefix, next.FeedKey)
		if err := uc.deps.Publisher.PublishEvent(ctx, subject, transitionDTO); err != nil {
			uc.logger.Error("Failed to publish transition", err, "subject", subject)
		}
	}

	if uc.deps.Notifier != nil {
		uc.deps.Notifier.BroadcastTransition(transitionDTO)
	}
}

func (uc *ReportPollResultUseCase) publishSamples(
	ctx context.Context,
	feedKey string,
	snap entity.Snapshot,
	state entity.ControllerState,
	at time.Time,
) {
	if uc.deps.Metrics == nil {
		return
	}

	samples := []port.FreshnessSample{
		{Name: "feed_live", FeedKey: feedKey, Value: boolValue(snap.Source == valueobject.Live), Unit: "count", Timestamp: at},
		{Name: "feed_age", FeedKey: feedKey, Value: snap.Age(at).Seconds(), Unit: "s", Timestamp: at},
		{Name: "consecutive_error_cycles", Value: float64(state.ConsecutiveErrorCount), Unit: "count", Timestamp: at},
		{Name: "force_demo_mode", Value: boolValue(state.ShouldForceDemoMode), Unit: "count", Timestamp: at},
	}

	if err := uc.deps.Metrics.PublishBatch(ctx, samples); err != nil {
		uc.logger.Warn("Failed to publish freshness samples", "error", err.Error())
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
