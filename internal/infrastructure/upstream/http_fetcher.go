package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxBodyBytes = 1 << 20

// ErrMalformedPayload апстрим ответил 2xx, но тело не является JSON
var ErrMalformedPayload = errors.New("malformed upstream payload")

// StatusError не-2xx ответ апстрима. Реализует valueobject.StatusCoder.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s responded %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus возвращает HTTP статус ответа
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Options настройки HTTP фетчера
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// HTTPFetcher получает JSON фида по HTTP GET
type HTTPFetcher struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
}

// NewHTTPFetcher создает фетчер для baseURL+path.
// limiter может быть общим для всех фидов одного апстрима; nil отключает ограничение.
func NewHTTPFetcher(baseURL, path string, client *http.Client, limiter *rate.Limiter, opts Options) (*HTTPFetcher, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("upstream base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "mainnet-dashboard/1.0"
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPFetcher{
		url:     strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		client:  client,
		limiter: limiter,
		opts:    opts,
	}, nil
}

// URL возвращает адрес фида
func (f *HTTPFetcher) URL() string {
	return f.url
}

// Fetch выполняет один запрос. Повторы делает Poller.
func (f *HTTPFetcher) Fetch(ctx context.Context) (json.RawMessage, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("upstream rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// дочитываем тело, чтобы соединение вернулось в пул
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: f.url}
	}

	body, err := readLimited(resp.Body, f.opts.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.url, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w from %s", ErrMalformedPayload, f.url)
	}

	return json.RawMessage(body), nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return body, nil
}
