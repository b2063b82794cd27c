package port

import (
	"context"
	"time"
)

// LogLevel уровень записи для внешнего приемника логов
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry запись pkg/logger, отправляемая во внешний приемник
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Fields    map[string]interface{} // пары key=value из вызова логгера
}

// LogPublisher отправляет записи логгера во внешнюю систему (Port).
// Реализация сама соблюдает лимиты пачек своего API.
type LogPublisher interface {
	Publish(ctx context.Context, entry LogEntry) error

	PublishBatch(ctx context.Context, entries []LogEntry) error

	// Flush отправляет буфер; вызывается при остановке сервиса
	Flush(ctx context.Context) error
}
