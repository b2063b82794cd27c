package port

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrDemoPayloadNotFound означает, что для фида нет переопределения demo payload
var ErrDemoPayloadNotFound = errors.New("demo payload not found")

// DemoPayloadSource определяет внешний источник demo payload (Port)
type DemoPayloadSource interface {
	// Load возвращает demo payload фида или ErrDemoPayloadNotFound
	Load(ctx context.Context, feedKey string) (json.RawMessage, error)
}
