package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
)

type Logger struct {
	logger *log.Logger
	level  Level

	shipper atomic.Pointer[shipper]
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	default:
		return "ERROR"
	}
}

func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter пишет в w вместо stdout
func NewWithWriter(level string, w io.Writer) *Logger {
	return &Logger{
		logger: log.New(w, "", 0),
		level:  parseLevel(level),
	}
}

func parseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log(DEBUG, msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= INFO {
		l.log(INFO, msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WARN {
		l.log(WARN, msg, args...)
	}
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if l.level <= ERROR {
		if err != nil {
			args = append(args, "error", err.Error())
		}
		l.log(ERROR, msg, args...)
	}
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	now := time.Now()
	message := fmt.Sprintf("[%s] [%s] %s", now.Format("2006-01-02 15:04:05"), level, msg)

	if len(args) > 0 {
		message += " |"
		for i := 0; i < len(args); i += 2 {
			if i+1 < len(args) {
				message += fmt.Sprintf(" %v=%v", args[i], args[i+1])
			}
		}
	}

	l.logger.Println(message)

	if s := l.shipper.Load(); s != nil && level >= s.minLevel {
		s.enqueue(port.LogEntry{
			Timestamp: now,
			Level:     port.LogLevel(level.String()),
			Message:   msg,
			Fields:    toFields(args),
		})
	}
}

func toFields(args []interface{}) map[string]interface{} {
	if len(args) < 2 {
		return nil
	}
	fields := make(map[string]interface{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return fields
}

// SetLogPublisher дублирует записи уровня minLevel и выше во внешний publisher.
// Отправка асинхронная: при переполнении очереди записи отбрасываются, вызов лога не блокируется.
func (l *Logger) SetLogPublisher(publisher port.LogPublisher, minLevel string) {
	s := &shipper{
		publisher: publisher,
		minLevel:  parseLevel(minLevel),
		entries:   make(chan port.LogEntry, 1024),
		done:      make(chan struct{}),
	}
	go s.run()

	if prev := l.shipper.Swap(s); prev != nil {
		prev.close()
	}
}

// Close останавливает отправку во внешний publisher и сбрасывает его буфер
func (l *Logger) Close(ctx context.Context) error {
	s := l.shipper.Swap(nil)
	if s == nil {
		return nil
	}
	s.close()
	return s.publisher.Flush(ctx)
}

// Dropped число записей, отброшенных из-за переполнения очереди
func (l *Logger) Dropped() uint64 {
	if s := l.shipper.Load(); s != nil {
		return s.dropped.Load()
	}
	return 0
}

type shipper struct {
	publisher port.LogPublisher
	minLevel  Level
	entries   chan port.LogEntry
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func (s *shipper) enqueue(entry port.LogEntry) {
	select {
	case s.entries <- entry:
	default:
		s.dropped.Add(1)
	}
}

func (s *shipper) run() {
	defer close(s.done)
	for entry := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// ошибки publisher не логируем через себя же, иначе получим петлю
		_ = s.publisher.Publish(ctx, entry)
		cancel()
	}
}

func (s *shipper) close() {
	s.closeOnce.Do(func() {
		close(s.entries)
	})
	<-s.done
}
