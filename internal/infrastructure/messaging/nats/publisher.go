package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
	"github.com/nats-io/nats.go"
)

// Config параметры подключения к JetStream
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
}

// jetStream методы JetStream, которыми пользуется публикатор
type jetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
	PublishAsyncPending() int
	PublishAsyncComplete() <-chan struct{}
}

// NATSPublisher публикует переходы свежести в JetStream (реализация port.EventPublisher)
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetStream
	logger *logger.Logger

	closeTimeout time.Duration
}

// NewNATSPublisher подключается к NATS и проверяет, что поток для событий свежести существует
func NewNATSPublisher(cfg Config, log *logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("mainnet-dashboard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
		log.Error("Async publish failed", err, "subject", msg.Subject)
	}))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	p := newPublisher(nc, js, log)
	if err := p.ensureStream(cfg.Stream, cfg.SubjectPrefix); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("Connected to NATS", "url", cfg.URL, "stream", cfg.Stream)
	return p, nil
}

func newPublisher(nc *nats.Conn, js jetStream, log *logger.Logger) *NATSPublisher {
	return &NATSPublisher{
		nc:           nc,
		js:           js,
		logger:       log,
		closeTimeout: 5 * time.Second,
	}
}

// ensureStream создает поток на все subject'ы префикса, если его еще нет.
// Пустое имя потока означает, что поток настраивается вне сервиса.
func (p *NATSPublisher) ensureStream(name, subjectPrefix string) error {
	if name == "" {
		return nil
	}
	if subjectPrefix == "" {
		return errors.New("subject prefix is required to create a stream")
	}
	subject := subjectPrefix + ".>"

	_, err := p.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", name, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}

	p.logger.Info("Created JetStream stream", "stream", name, "subject", subject)
	return nil
}

// PublishEvent сериализует событие в JSON и публикует асинхронно
func (p *NATSPublisher) PublishEvent(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err = p.js.PublishAsync(subject, data); err != nil {
		p.logger.Error("Failed to publish event", err,
			"subject", subject,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		"subject", subject,
		"size", len(data),
	)

	return nil
}

// Close дожидается отправки асинхронных публикаций и закрывает соединение
func (p *NATSPublisher) Close() error {
	if p.js != nil {
		select {
		case <-p.js.PublishAsyncComplete():
		case <-time.After(p.closeTimeout):
			p.logger.Warn("Timed out waiting for pending NATS publishes", "pending", p.js.PublishAsyncPending())
		}
	}

	if p.nc != nil {
		p.logger.Info("Closing NATS connection")
		p.nc.Close()
	}
	return nil
}
