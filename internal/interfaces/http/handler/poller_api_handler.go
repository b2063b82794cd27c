package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/poller"
	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/http/middleware"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

// FeedPoller операции поллера, доступные оператору
type FeedPoller interface {
	PollOnce(ctx context.Context, key string) (entity.ControllerState, error)
	Status() []poller.FeedStatus
}

// PollerAPIHandler ручной опрос фида и состояние поллера
type PollerAPIHandler struct {
	poller         FeedPoller
	forcedByConfig bool
	timeout        time.Duration
	logger         *logger.Logger
}

// NewPollerAPIHandler создает новый handler
func NewPollerAPIHandler(p FeedPoller, forcedByConfig bool, timeout time.Duration, logger *logger.Logger) *PollerAPIHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PollerAPIHandler{
		poller:         p,
		forcedByConfig: forcedByConfig,
		timeout:        timeout,
		logger:         logger,
	}
}

// TriggerPoll выполняет внеочередной опрос фида и возвращает новое состояние
func (h *PollerAPIHandler) TriggerPoll(w http.ResponseWriter, r *http.Request) {
	if h.forcedByConfig {
		middleware.WriteError(w, http.StatusConflict, "polling is disabled: demo data is forced by configuration")
		return
	}

	feed := r.PathValue("feed")
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.poller.PollOnce(ctx, feed)
	if err != nil {
		if errors.Is(err, poller.ErrUnknownFeed) {
			middleware.WriteError(w, http.StatusNotFound, "unknown feed")
			return
		}
		h.logger.Error("Manual poll failed", err, "feed", feed)
		middleware.WriteError(w, http.StatusGatewayTimeout, "poll did not complete")
		return
	}

	h.logger.Info("Manual poll completed", "feed", feed, "request_id", middleware.RequestIDFrom(r))
	middleware.WriteJSON(w, http.StatusOK, dto.NewFreshnessStateDTO(state, h.forcedByConfig, time.Now()))
}

// Status возвращает счетчики опроса по фидам
func (h *PollerAPIHandler) Status(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"forced_by_config": h.forcedByConfig,
		"feeds":            h.poller.Status(),
	})
}
