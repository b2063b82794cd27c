package port

import (
	"context"
	"encoding/json"
)

// FeedFetcher получает свежий payload одного фида (Port)
// Реализации: HTTP апстрим, локальный сборщик ресурсов узла.
// Ошибки с HTTP статусом должны реализовывать valueobject.StatusCoder.
type FeedFetcher interface {
	Fetch(ctx context.Context) (json.RawMessage, error)
}

// FeedFetcherFunc адаптер функции к FeedFetcher
type FeedFetcherFunc func(ctx context.Context) (json.RawMessage, error)

// Fetch вызывает f(ctx)
func (f FeedFetcherFunc) Fetch(ctx context.Context) (json.RawMessage, error) {
	return f(ctx)
}
