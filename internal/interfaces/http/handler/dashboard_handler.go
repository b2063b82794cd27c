package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/usecase"
	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/view"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

// DashboardHandler обрабатывает запросы к dashboard
type DashboardHandler struct {
	getStateUC *usecase.GetFreshnessStateUseCase
	logger     *logger.Logger
}

// NewDashboardHandler создает новый handler
func NewDashboardHandler(
	getStateUC *usecase.GetFreshnessStateUseCase,
	logger *logger.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		getStateUC: getStateUC,
		logger:     logger,
	}
}

// ShowDashboard отображает главную страницу dashboard.
// Страница всегда рендерится: при недоступном апстриме фиды показывают cached или demo данные.
func (h *DashboardHandler) ShowDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	state := h.getStateUC.Execute(r.Context())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := view.Dashboard(state, time.Now()).Render(r.Context(), w); err != nil {
		h.logger.Error("Failed to render dashboard", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}
