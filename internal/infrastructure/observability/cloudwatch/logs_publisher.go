package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/failsafe-go/failsafe-go"

	applicationPort "github.com/dreschagin/mainnet-dashboard/internal/application/port"
)

const (
	// CloudWatch Logs limits
	maxLogEventsPerRequest = 10000
	maxLogBatchSize        = 1048576 // 1 MB
	maxLogEventSize        = 256000  // 256 KB
	logEventOverhead       = 26      // bytes CloudWatch adds to every event

	// во сколько раз буфер может превысить BufferSize, пока CloudWatch недоступен
	maxBufferFactor = 20
)

// LogsPublisherConfig holds configuration for CloudWatch logs publishing.
type LogsPublisherConfig struct {
	LogGroupName    string // CloudWatch log group name
	LogStreamName   string // CloudWatch log stream name
	Region          string // AWS region
	Endpoint        string // Optional endpoint override (for LocalStack)
	AccessKeyID     string // AWS access key
	SecretAccessKey string // AWS secret key
	Service         string // Service name added to every event
	BufferSize      int    // Buffer size before auto-flush
	FlushInterval   time.Duration
	AutoCreate      bool // Automatically create log group/stream if missing
}

// LogEventsAPI is the subset of the CloudWatch Logs client used by the publisher.
type LogEventsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// LogsPublisher отправляет записи pkg/logger в CloudWatch Logs пачками.
// При недоступности CloudWatch записи копятся до maxBufferFactor*BufferSize,
// затем самые старые отбрасываются.
type LogsPublisher struct {
	client        LogEventsAPI
	executor      failsafe.Executor[any]
	logGroupName  string
	logStreamName string
	service       string

	mu         sync.Mutex
	buffer     []applicationPort.LogEntry
	bufferSize int
	maxBuffer  int
	dropped    uint64

	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewLogsPublisher creates a new CloudWatch logs publisher.
func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if err := validateLogsConfig(cfg); err != nil {
		return nil, err
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	return NewLogsPublisherWithClient(ctx, cloudwatchlogs.NewFromConfig(awsCfg), cfg)
}

// NewLogsPublisherWithClient creates a publisher on top of an existing client.
func NewLogsPublisherWithClient(ctx context.Context, client LogEventsAPI, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if err := validateLogsConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	p := &LogsPublisher{
		client:        client,
		executor:      newExecutor(),
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		service:       cfg.Service,
		buffer:        make([]applicationPort.LogEntry, 0, cfg.BufferSize),
		bufferSize:    cfg.BufferSize,
		maxBuffer:     cfg.BufferSize * maxBufferFactor,
		stopCh:        make(chan struct{}),
	}

	if cfg.AutoCreate {
		if err := p.ensureLogGroupAndStream(ctx); err != nil {
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.flushTicker = time.NewTicker(cfg.FlushInterval)
	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

func validateLogsConfig(cfg LogsPublisherConfig) error {
	switch {
	case cfg.LogGroupName == "":
		return errors.New("log group name is required")
	case cfg.LogStreamName == "":
		return errors.New("log stream name is required")
	case cfg.Region == "":
		return errors.New("region is required")
	}
	return nil
}

// Publish добавляет запись в буфер; полный буфер отправляется сразу
func (p *LogsPublisher) Publish(ctx context.Context, entry applicationPort.LogEntry) error {
	return p.PublishBatch(ctx, []applicationPort.LogEntry{entry})
}

// PublishBatch добавляет записи в буфер; полный буфер отправляется сразу
func (p *LogsPublisher) PublishBatch(ctx context.Context, entries []applicationPort.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, entries...)
	p.trimBufferLocked()

	if len(p.buffer) < p.bufferSize {
		return nil
	}
	if err := p.flushLocked(ctx); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// Flush отправляет все накопленные записи
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushLocked(ctx)
}

// Close останавливает фоновую отправку и отправляет остаток буфера
func (p *LogsPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.flushTicker.Stop()
	})
	p.wg.Wait()

	return p.Flush(ctx)
}

// Dropped количество записей, отброшенных из-за переполнения буфера
func (p *LogsPublisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *LogsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			// при ошибке буфер остается и уходит на следующем тике
			_ = p.Flush(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

func (p *LogsPublisher) trimBufferLocked() {
	if over := len(p.buffer) - p.maxBuffer; over > 0 {
		p.buffer = append(p.buffer[:0], p.buffer[over:]...)
		p.dropped += uint64(over)
	}
}

// flushLocked отправляет буфер пачками в пределах лимитов PutLogEvents.
// Успешно отправленные пачки удаляются из буфера, даже если следующая упала.
func (p *LogsPublisher) flushLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	// CloudWatch Logs требует хронологический порядок внутри запроса
	sort.SliceStable(p.buffer, func(i, j int) bool {
		return p.buffer[i].Timestamp.Before(p.buffer[j].Timestamp)
	})

	// битые записи не должны блокировать остальные: отбрасываем их сразу
	kept := p.buffer[:0]
	events := make([]types.InputLogEvent, 0, len(p.buffer))
	for _, entry := range p.buffer {
		event, err := p.convertToLogEvent(entry)
		if err != nil {
			continue
		}
		kept = append(kept, entry)
		events = append(events, event)
	}
	p.buffer = kept

	sent := 0
	for _, batch := range splitLogBatches(events) {
		err := run(ctx, p.executor, func(ctx context.Context) error {
			_, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
				LogGroupName:  aws.String(p.logGroupName),
				LogStreamName: aws.String(p.logStreamName),
				LogEvents:     batch,
			})
			return err
		})
		if err != nil {
			p.buffer = append(p.buffer[:0], p.buffer[sent:]...)
			return fmt.Errorf("put log events: %w", err)
		}
		sent += len(batch)
	}

	p.buffer = p.buffer[:0]
	return nil
}

// splitLogBatches делит события на пачки по числу и суммарному размеру
func splitLogBatches(events []types.InputLogEvent) [][]types.InputLogEvent {
	var (
		batches [][]types.InputLogEvent
		start   int
		size    int
	)
	for i, event := range events {
		eventSize := len(aws.ToString(event.Message)) + logEventOverhead
		if i > start && (i-start >= maxLogEventsPerRequest || size+eventSize > maxLogBatchSize) {
			batches = append(batches, events[start:i])
			start, size = i, 0
		}
		size += eventSize
	}
	if start < len(events) {
		batches = append(batches, events[start:])
	}
	return batches
}

// convertToLogEvent converts a LogEntry to CloudWatch InputLogEvent.
func (p *LogsPublisher) convertToLogEvent(entry applicationPort.LogEntry) (types.InputLogEvent, error) {
	logData := map[string]interface{}{
		"timestamp": entry.Timestamp.Format(time.RFC3339Nano),
		"level":     string(entry.Level),
		"message":   entry.Message,
	}
	if p.service != "" {
		logData["service"] = p.service
	}
	if len(entry.Fields) > 0 {
		logData["fields"] = entry.Fields
	}

	messageJSON, err := json.Marshal(logData)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(messageJSON)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
	}, nil
}

// ensureLogGroupAndStream creates the log group and stream if they don't exist.
func (p *LogsPublisher) ensureLogGroupAndStream(ctx context.Context) error {
	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroupName),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create log group: %w", err)
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create log stream: %w", err)
	}

	return nil
}

func isAlreadyExists(err error) bool {
	var alreadyExists *types.ResourceAlreadyExistsException
	return errors.As(err, &alreadyExists)
}
