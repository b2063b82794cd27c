package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/usecase"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/http/middleware"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

// FreshnessAPIHandler обрабатывает API запросы состояния свежести и истории переходов
type FreshnessAPIHandler struct {
	getStateUC      *usecase.GetFreshnessStateUseCase
	getHistoryUC    *usecase.GetTransitionHistoryUseCase
	defaultDuration time.Duration
	maxDuration     time.Duration
	logger          *logger.Logger
}

// NewFreshnessAPIHandler создает новый handler
func NewFreshnessAPIHandler(
	getStateUC *usecase.GetFreshnessStateUseCase,
	getHistoryUC *usecase.GetTransitionHistoryUseCase,
	defaultDuration time.Duration,
	maxDuration time.Duration,
	logger *logger.Logger,
) *FreshnessAPIHandler {
	if maxDuration <= 0 {
		maxDuration = 7 * 24 * time.Hour
	}
	if defaultDuration <= 0 || defaultDuration > maxDuration {
		defaultDuration = time.Hour
	}

	return &FreshnessAPIHandler{
		getStateUC:      getStateUC,
		getHistoryUC:    getHistoryUC,
		defaultDuration: defaultDuration,
		maxDuration:     maxDuration,
		logger:          logger,
	}
}

// GetState возвращает состояние всех фидов
func (h *FreshnessAPIHandler) GetState(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.getStateUC.Execute(r.Context()))
}

// GetFeed возвращает снапшот одного фида
func (h *FreshnessAPIHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.getStateUC.ExecuteFeed(r.Context(), r.PathValue("feed"))
	if err != nil {
		if errors.Is(err, service.ErrUnknownFeed) {
			middleware.WriteError(w, http.StatusNotFound, "unknown feed")
			return
		}
		h.logger.Error("Failed to get feed snapshot", err)
		middleware.WriteError(w, http.StatusInternalServerError, "failed to get feed snapshot")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, snapshot)
}

// GetHistory возвращает переходы фида и сводку доступности за период
func (h *FreshnessAPIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	feed := r.URL.Query().Get("feed")
	if feed == "" {
		middleware.WriteError(w, http.StatusBadRequest, "missing required parameter: feed")
		return
	}
	if err := valueobject.ValidateFeedKey(feed); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid feed key")
		return
	}

	duration := h.defaultDuration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid duration format")
			return
		}
		duration = parsed
	}
	if duration <= 0 || duration > h.maxDuration {
		middleware.WriteError(w, http.StatusBadRequest, "duration out of allowed range")
		return
	}

	timeRange, err := valueobject.NewTimeRangeFromDuration(duration)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid time range")
		return
	}

	history, err := h.getHistoryUC.Execute(r.Context(), feed, timeRange)
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, history)
	case errors.Is(err, usecase.ErrHistoryUnavailable):
		middleware.WriteError(w, http.StatusServiceUnavailable, "transition history is not configured")
	case errors.Is(err, service.ErrUnknownFeed):
		middleware.WriteError(w, http.StatusNotFound, "unknown feed")
	default:
		h.logger.Error("Failed to get transition history", err, "feed", feed)
		middleware.WriteError(w, http.StatusInternalServerError, "failed to fetch transition history")
	}
}
