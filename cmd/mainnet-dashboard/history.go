package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/repository"
	dynamodbRepo "github.com/dreschagin/mainnet-dashboard/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/mainnet-dashboard/pkg/config"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"

	_ "github.com/lib/pq"
)

// historyBackend хранилище переходов. repo остается nil интерфейсом, если история выключена.
type historyBackend struct {
	repo      repository.TransitionRepository
	retention repository.RetentionRepository
	db        *sql.DB
}

func (h *historyBackend) Close() {
	if h.db != nil {
		_ = h.db.Close()
	}
}

func openHistory(ctx context.Context, cfg *config.Config, log *logger.Logger) (*historyBackend, error) {
	switch cfg.History.Backend {
	case config.HistoryBackendNone:
		log.Warn("Transition history is disabled, history API will return 503")
		return &historyBackend{}, nil

	case config.HistoryBackendPostgres:
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		// Настраиваем connection pool
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		repo := postgres.NewPostgresTransitionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("Database connected successfully", "host", cfg.Database.Host, "database", cfg.Database.Database)
		return &historyBackend{repo: repo, retention: repo, db: db}, nil

	case config.HistoryBackendDynamoDB:
		endpoint := cfg.DynamoDB.Endpoint
		if endpoint == "" {
			endpoint = cfg.AWS.Endpoint
		}
		repo, err := dynamodbRepo.NewTransitionRepository(ctx, dynamodbRepo.Config{
			TableName:       cfg.DynamoDB.Table,
			Region:          cfg.AWS.Region,
			Endpoint:        endpoint,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			StrongReads:     cfg.DynamoDB.StrongReads,
			Retention:       cfg.History.Retention(),
		})
		if err != nil {
			return nil, err
		}
		log.Info("Transition history initialized", "provider", "dynamodb", "table", cfg.DynamoDB.Table)
		// устаревшие записи удаляет TTL таблицы по expires_at
		return &historyBackend{repo: repo}, nil

	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// runRetention удаляет переходы старше срока хранения каждые PruneInterval
func runRetention(ctx context.Context, repo repository.RetentionRepository, cfg config.HistoryConfig, log *logger.Logger) {
	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	log.Info("History retention started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.PruneInterval.String())

	for {
		select {
		case <-ctx.Done():
			log.Info("History retention stopped")
			return
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			deleted, err := repo.DeleteOlderThan(pruneCtx, time.Now().Add(-cfg.Retention()))
			cancel()
			if err != nil {
				log.Error("Failed to prune transition history", err)
				continue
			}
			if deleted > 0 {
				log.Info("Transition history pruned", "deleted", deleted)
			}
		}
	}
}
