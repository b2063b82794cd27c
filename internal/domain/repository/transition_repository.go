package repository

import (
	"context"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
)

// TransitionRepository определяет интерфейс хранилища истории переходов (Port)
// Реализация будет в Infrastructure слое
type TransitionRepository interface {
	// Save сохраняет один переход
	Save(ctx context.Context, transition *entity.Transition) error

	// SaveBatch сохраняет несколько переходов
	SaveBatch(ctx context.Context, transitions []*entity.Transition) error

	// FindByTimeRange находит переходы фида во временном диапазоне, по возрастанию времени
	FindByTimeRange(ctx context.Context, feedKey string, timeRange valueobject.TimeRange) ([]*entity.Transition, error)

	// FindLatestBefore находит последний переход фида до указанного момента.
	// Возвращает nil, nil если переходов не было.
	FindLatestBefore(ctx context.Context, feedKey string, before time.Time) (*entity.Transition, error)
}

// RetentionRepository реализуется хранилищами, которые чистят историю сами
type RetentionRepository interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
