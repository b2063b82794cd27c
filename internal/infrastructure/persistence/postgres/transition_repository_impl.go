package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	_ "github.com/lib/pq"
)

const schema = `
	CREATE TABLE IF NOT EXISTS feed_transitions (
		id          UUID PRIMARY KEY,
		feed_key    TEXT NOT NULL,
		from_source TEXT NOT NULL,
		to_source   TEXT NOT NULL,
		error_kind  TEXT,
		observed_at TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_feed_transitions_feed_observed
		ON feed_transitions (feed_key, observed_at);
`

const insertTransition = `
	INSERT INTO feed_transitions (id, feed_key, from_source, to_source, error_kind, observed_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

const selectColumns = `id, feed_key, from_source, to_source, error_kind, observed_at, received_at`

// PostgresTransitionRepository реализует repository.TransitionRepository для PostgreSQL
type PostgresTransitionRepository struct {
	db *sql.DB
}

// NewPostgresTransitionRepository создает новый PostgreSQL repository
func NewPostgresTransitionRepository(db *sql.DB) *PostgresTransitionRepository {
	return &PostgresTransitionRepository{
		db: db,
	}
}

// EnsureSchema создает таблицу переходов, если ее еще нет
func (r *PostgresTransitionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Save сохраняет один переход
func (r *PostgresTransitionRepository) Save(ctx context.Context, transition *entity.Transition) error {
	model := ToDBModel(transition)

	_, err := r.db.ExecContext(ctx, insertTransition,
		model.ID,
		model.FeedKey,
		model.FromSource,
		model.ToSource,
		model.ErrorKind,
		model.ObservedAt,
		model.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}

	return nil
}

// SaveBatch сохраняет несколько переходов одной транзакцией
func (r *PostgresTransitionRepository) SaveBatch(ctx context.Context, transitions []*entity.Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, insertTransition)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, transition := range transitions {
		model := ToDBModel(transition)
		_, err = stmt.ExecContext(ctx,
			model.ID,
			model.FeedKey,
			model.FromSource,
			model.ToSource,
			model.ErrorKind,
			model.ObservedAt,
			model.ReceivedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByTimeRange находит переходы фида в диапазоне, по возрастанию времени
func (r *PostgresTransitionRepository) FindByTimeRange(
	ctx context.Context,
	feedKey string,
	timeRange valueobject.TimeRange,
) ([]*entity.Transition, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM feed_transitions
		WHERE feed_key = $1 AND observed_at BETWEEN $2 AND $3
		ORDER BY observed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, feedKey, timeRange.Start(), timeRange.End())
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	return r.scanTransitions(rows)
}

// FindLatestBefore возвращает последний переход фида до момента before или nil
func (r *PostgresTransitionRepository) FindLatestBefore(
	ctx context.Context,
	feedKey string,
	before time.Time,
) (*entity.Transition, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM feed_transitions
		WHERE feed_key = $1 AND observed_at < $2
		ORDER BY observed_at DESC
		LIMIT 1
	`

	model, err := ScanTransitionRow(r.db.QueryRowContext(ctx, query, feedKey, before))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan transition: %w", err)
	}

	return ToEntity(model)
}

// DeleteOlderThan удаляет переходы старше указанного времени
func (r *PostgresTransitionRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM feed_transitions WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old transitions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected, nil
}

// scanTransitions сканирует несколько строк в слайс переходов
func (r *PostgresTransitionRepository) scanTransitions(rows *sql.Rows) ([]*entity.Transition, error) {
	var transitions []*entity.Transition

	for rows.Next() {
		model, err := ScanTransitionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}

		transition, err := ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to convert to entity: %w", err)
		}

		transitions = append(transitions, transition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return transitions, nil
}
