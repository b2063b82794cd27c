package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
)

// GetFreshnessStateUseCase возвращает текущее состояние свежести фидов
type GetFreshnessStateUseCase struct {
	controller *service.FreshnessController
	now        func() time.Time
}

// NewGetFreshnessStateUseCase создает новый use case
func NewGetFreshnessStateUseCase(controller *service.FreshnessController) *GetFreshnessStateUseCase {
	return &GetFreshnessStateUseCase{
		controller: controller,
		now:        time.Now,
	}
}

// Execute возвращает состояние всех фидов
func (uc *GetFreshnessStateUseCase) Execute(_ context.Context) *dto.FreshnessStateDTO {
	return dto.NewFreshnessStateDTO(uc.controller.State(), uc.controller.ForcedByConfig(), uc.now())
}

// ExecuteFeed возвращает снапшот одного фида
func (uc *GetFreshnessStateUseCase) ExecuteFeed(_ context.Context, feedKey string) (*dto.SnapshotDTO, error) {
	snap, ok := uc.controller.State().Feed(feedKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrUnknownFeed, feedKey)
	}
	return dto.FromSnapshot(snap, uc.now()), nil
}

// Ready сообщает, что все фиды опрошены хотя бы раз
func (uc *GetFreshnessStateUseCase) Ready() bool {
	return uc.controller.Ready()
}
