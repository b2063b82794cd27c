package port

import "context"

// EventPublisher публикует события переходов свежести в брокер сообщений (Port).
// Subject имеет вид <prefix>.transition.<feed>.
type EventPublisher interface {
	PublishEvent(ctx context.Context, subject string, event interface{}) error

	// Close закрывает соединение с брокером
	Close() error
}
