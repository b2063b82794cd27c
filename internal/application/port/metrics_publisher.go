package port

import (
	"context"
	"time"
)

// FreshnessSample одна точка метрики свежести для внешней системы мониторинга
type FreshnessSample struct {
	Name      string
	FeedKey   string // пусто для агрегатов по всем фидам
	Value     float64
	Unit      string
	Timestamp time.Time
}

// MetricsPublisher отправляет метрики свежести во внешнюю систему мониторинга (Port)
type MetricsPublisher interface {
	// PublishBatch ставит точки в буфер; лимит запроса API учитывает реализация
	PublishBatch(ctx context.Context, samples []FreshnessSample) error

	PublishSingle(ctx context.Context, sample FreshnessSample) error

	// Flush отправляет буфер; вызывается при остановке сервиса
	Flush(ctx context.Context) error
}

// FreshnessObserver получает каждое новое состояние контроллера (Prometheus и т.п.)
type FreshnessObserver interface {
	ObserveReport(feedKey string, source, errorKind string, consecutiveErrors int, isLive bool)
}
