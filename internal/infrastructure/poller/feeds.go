package poller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/catalog"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/collector"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/upstream"
	"golang.org/x/time/rate"
)

// SourceOptions параметры источников данных фидов
type SourceOptions struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int
	NodeDiskMount  string
	Client         *http.Client
}

// FeedsFromCatalog строит фиды поллера по каталогу.
// Все http фиды делят один лимитер запросов к апстриму.
func FeedsFromCatalog(cat *catalog.Catalog, opts SourceOptions) ([]Feed, error) {
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	feeds := make([]Feed, 0, len(cat.Feeds))
	for _, def := range cat.Feeds {
		var fetcher port.FeedFetcher
		switch def.Source {
		case catalog.SourceHTTP:
			f, err := upstream.NewHTTPFetcher(opts.BaseURL, def.Path, opts.Client, limiter, upstream.Options{
				Timeout:      opts.RequestTimeout,
				MaxBodyBytes: opts.MaxBodyBytes,
			})
			if err != nil {
				return nil, fmt.Errorf("feed %q: %w", def.Key, err)
			}
			fetcher = f
		case catalog.SourceNode:
			fetcher = collector.NewNodeResourcesFetcher(opts.NodeDiskMount)
		default:
			return nil, fmt.Errorf("feed %q: unknown source %q", def.Key, def.Source)
		}

		feeds = append(feeds, Feed{
			Key:      def.Key,
			Interval: def.Interval(),
			Fetcher:  fetcher,
		})
	}
	return feeds, nil
}
