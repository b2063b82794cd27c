package port

import "context"

// Cache кэш ответов истории переходов (Port).
// Значения сериализуются в JSON, TTL задает реализация.
type Cache interface {
	// Get читает значение по ключу в dest; промах возвращается как ошибка
	Get(ctx context.Context, key string, dest interface{}) error

	Set(ctx context.Context, key string, value interface{}) error

	Delete(ctx context.Context, key string) error

	// DeletePattern сбрасывает все ключи фида после нового перехода
	DeletePattern(ctx context.Context, pattern string) error

	Close() error
}
