package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/repository"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

// ErrHistoryUnavailable возвращается, когда хранилище истории не настроено
var ErrHistoryUnavailable = errors.New("transition history is not configured")

// GetTransitionHistoryUseCase возвращает историю переходов фида со сводкой доступности.
// Результат кешируется, если передан cache.
type GetTransitionHistoryUseCase struct {
	repository repository.TransitionRepository
	controller *service.FreshnessController
	aggregator *service.AvailabilityAggregator
	cache      port.Cache
	logger     *logger.Logger
}

// NewGetTransitionHistoryUseCase создает новый use case с кешированием
func NewGetTransitionHistoryUseCase(
	repository repository.TransitionRepository,
	controller *service.FreshnessController,
	aggregator *service.AvailabilityAggregator,
	cache port.Cache,
	logger *logger.Logger,
) *GetTransitionHistoryUseCase {
	return &GetTransitionHistoryUseCase{
		repository: repository,
		controller: controller,
		aggregator: aggregator,
		cache:      cache,
		logger:     logger,
	}
}

// Execute выполняет получение истории переходов
func (uc *GetTransitionHistoryUseCase) Execute(
	ctx context.Context,
	feedKey string,
	timeRange valueobject.TimeRange,
) (*dto.TransitionHistoryDTO, error) {
	if uc.repository == nil {
		return nil, ErrHistoryUnavailable
	}
	if _, ok := uc.controller.State().Feed(feedKey); !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrUnknownFeed, feedKey)
	}

	// Если кеш не настроен, используем стандартный путь
	if uc.cache == nil {
		return uc.executeWithoutCache(ctx, feedKey, timeRange)
	}

	cacheKey := HistoryCacheKey(feedKey, timeRange)

	var cached *dto.TransitionHistoryDTO
	if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil && cached != nil {
		uc.logger.Debug("Cache hit for transition history", "feed", feedKey)
		return cached, nil
	}

	uc.logger.Debug("Cache miss for transition history, fetching from repository", "feed", feedKey)

	history, err := uc.executeWithoutCache(ctx, feedKey, timeRange)
	if err != nil {
		return nil, err
	}

	// Сохраняем в кеш (асинхронно, не блокируем ответ)
	go func() {
		if err := uc.cache.Set(context.Background(), cacheKey, history); err != nil {
			uc.logger.Warn("Failed to cache transition history", "feed", feedKey, "error", err.Error())
		}
	}()

	return history, nil
}

func (uc *GetTransitionHistoryUseCase) executeWithoutCache(
	ctx context.Context,
	feedKey string,
	timeRange valueobject.TimeRange,
) (*dto.TransitionHistoryDTO, error) {
	transitions, err := uc.repository.FindByTimeRange(ctx, feedKey, timeRange)
	if err != nil {
		uc.logger.Error("Failed to fetch transition history", err, "feed", feedKey)
		return nil, fmt.Errorf("failed to fetch transition history: %w", err)
	}

	// источник на начало диапазона берем из последнего перехода до него; без истории фид был в demo
	initial := valueobject.Demo
	previous, err := uc.repository.FindLatestBefore(ctx, feedKey, timeRange.Start())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch previous transition: %w", err)
	}
	if previous != nil {
		initial = previous.To()
	}

	summary := uc.aggregator.Summarize(initial, transitions, timeRange)
	uc.logger.Debug("Fetched transition history", "feed", feedKey, "count", len(transitions))

	return &dto.TransitionHistoryDTO{
		Feed:         feedKey,
		From:         timeRange.Start(),
		To:           timeRange.End(),
		Transitions:  dto.ToTransitionDTOs(transitions),
		Availability: dto.FromAvailability(summary),
	}, nil
}

// HistoryCacheKey строит ключ кеша истории. Длительность округляется до секунд,
// чтобы запросы с одинаковым окном попадали в один ключ.
func HistoryCacheKey(feedKey string, timeRange valueobject.TimeRange) string {
	return fmt.Sprintf("freshness:history:%s:%s", feedKey, timeRange.Duration().Round(time.Second).String())
}

// HistoryCachePattern шаблон всех ключей истории фида
func HistoryCachePattern(feedKey string) string {
	return fmt.Sprintf("freshness:history:%s:*", feedKey)
}
