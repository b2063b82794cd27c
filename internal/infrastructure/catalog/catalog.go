package catalog

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/feeds.yaml defaults/demo/*.json
var defaults embed.FS

const (
	SourceHTTP = "http"
	SourceNode = "node"
)

// FeedDefinition описание фида в YAML каталоге
type FeedDefinition struct {
	Key          string `yaml:"key"`
	Source       string `yaml:"source"`
	Path         string `yaml:"path"`
	PollInterval string `yaml:"poll_interval"`
	DemoFile     string `yaml:"demo_file"`

	interval    time.Duration
	demoPayload json.RawMessage
}

// Interval возвращает разобранный интервал опроса
func (d FeedDefinition) Interval() time.Duration {
	return d.interval
}

// DemoPayload возвращает demo payload фида
func (d FeedDefinition) DemoPayload() json.RawMessage {
	return d.demoPayload
}

// Catalog набор фидов дашборда
type Catalog struct {
	Feeds []FeedDefinition `yaml:"feeds"`
}

// Load читает каталог из path. Пустой path означает встроенный каталог.
// demo_file ищется рядом с файлом каталога, для встроенного каталога во встроенной папке demo.
func Load(path string) (*Catalog, error) {
	var (
		raw    []byte
		demoFS fs.FS
		err    error
	)

	if strings.TrimSpace(path) == "" {
		raw, err = defaults.ReadFile("defaults/feeds.yaml")
		if err != nil {
			return nil, fmt.Errorf("read embedded catalog: %w", err)
		}
		demoFS, err = fs.Sub(defaults, "defaults/demo")
		if err != nil {
			return nil, fmt.Errorf("open embedded demo payloads: %w", err)
		}
	} else {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		demoFS = os.DirFS(filepath.Dir(path))
	}

	return Parse(raw, demoFS)
}

// Parse разбирает YAML каталога и загружает demo payload из demoFS
func Parse(raw []byte, demoFS fs.FS) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Feeds) == 0 {
		return nil, errors.New("catalog has no feeds")
	}

	seen := make(map[string]struct{}, len(c.Feeds))
	for i := range c.Feeds {
		feed := &c.Feeds[i]
		if err := feed.normalize(); err != nil {
			return nil, err
		}
		if _, dup := seen[feed.Key]; dup {
			return nil, fmt.Errorf("duplicate feed %q", feed.Key)
		}
		seen[feed.Key] = struct{}{}

		payload, err := fs.ReadFile(demoFS, feed.DemoFile)
		if err != nil {
			return nil, fmt.Errorf("feed %q: read demo payload: %w", feed.Key, err)
		}
		if !json.Valid(payload) {
			return nil, fmt.Errorf("feed %q: demo payload %s is not valid JSON", feed.Key, feed.DemoFile)
		}
		feed.demoPayload = compact(payload)
	}

	return &c, nil
}

func (d *FeedDefinition) normalize() error {
	if err := valueobject.ValidateFeedKey(d.Key); err != nil {
		return err
	}

	d.Source = strings.ToLower(strings.TrimSpace(d.Source))
	switch d.Source {
	case SourceHTTP:
		if d.Path == "" {
			return fmt.Errorf("feed %q: http source requires path", d.Key)
		}
	case SourceNode:
	default:
		return fmt.Errorf("feed %q: unknown source %q", d.Key, d.Source)
	}

	interval, err := time.ParseDuration(d.PollInterval)
	if err != nil {
		return fmt.Errorf("feed %q: invalid poll_interval: %w", d.Key, err)
	}
	if interval < time.Second {
		return fmt.Errorf("feed %q: poll_interval must be at least 1s", d.Key)
	}
	d.interval = interval

	if d.DemoFile == "" {
		d.DemoFile = d.Key + ".json"
	}
	return nil
}

// ApplyDemoOverrides подменяет demo payload из внешнего источника (S3).
// Отсутствие переопределения не ошибка; битый payload пропускается с предупреждением.
func (c *Catalog) ApplyDemoOverrides(ctx context.Context, source port.DemoPayloadSource, log *logger.Logger) int {
	applied := 0
	for i := range c.Feeds {
		feed := &c.Feeds[i]

		payload, err := source.Load(ctx, feed.Key)
		if errors.Is(err, port.ErrDemoPayloadNotFound) {
			continue
		}
		if err != nil {
			log.Warn("Failed to load demo payload override", "feed", feed.Key, "error", err.Error())
			continue
		}
		if !json.Valid(payload) {
			log.Warn("Ignoring invalid demo payload override", "feed", feed.Key)
			continue
		}

		feed.demoPayload = compact(payload)
		applied++
	}
	return applied
}

// FeedSpecs переводит каталог в описания фидов для контроллера
func (c *Catalog) FeedSpecs() []service.FeedSpec {
	specs := make([]service.FeedSpec, 0, len(c.Feeds))
	for _, feed := range c.Feeds {
		specs = append(specs, service.FeedSpec{
			Key:          feed.Key,
			PollInterval: feed.interval,
			DemoPayload:  feed.demoPayload,
		})
	}
	return specs
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		out := make(json.RawMessage, len(raw))
		copy(out, raw)
		return out
	}
	return buf.Bytes()
}
