package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

type countingRejections struct {
	auth, limited int
}

func (c *countingRejections) AuthFailed()  { c.auth++ }
func (c *countingRejections) RateLimited() { c.limited++ }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAuth(t *testing.T) {
	counter := &countingRejections{}
	h := Auth(AuthConfig{Enabled: true, BearerToken: "secret"}, counter, logger.New("error"))(okHandler())

	tests := []struct {
		name   string
		path   string
		header string
		cookie string
		want   int
	}{
		{"missing token", "/api/v1/freshness", "", "", http.StatusUnauthorized},
		{"wrong token", "/api/v1/freshness", "Bearer nope", "", http.StatusUnauthorized},
		{"bearer header", "/api/v1/freshness", "Bearer secret", "", http.StatusOK},
		{"cookie", "/api/v1/freshness", "", "secret", http.StatusOK},
		{"query token", "/ws?token=secret", "", "", http.StatusOK},
		{"probe is public", "/readyz", "", "", http.StatusOK},
		{"metrics is public", "/metrics", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if counter.auth != 2 {
		t.Fatalf("AuthFailed() called %d times, want 2", counter.auth)
	}
}

func TestAuth_DisabledPassesThrough(t *testing.T) {
	h := Auth(AuthConfig{}, nil, logger.New("error"))(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/freshness", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimit_PerIP(t *testing.T) {
	counter := &countingRejections{}
	limiter := NewIPRateLimiter(0.001, 2)
	h := RateLimit(limiter, counter)(okHandler())

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/freshness", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("203.0.113.7"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := send("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", code)
	}
	if code := send("198.51.100.2"); code != http.StatusOK {
		t.Fatalf("other client status = %d, want 200", code)
	}
	if counter.limited != 1 {
		t.Fatalf("RateLimited() called %d times, want 1", counter.limited)
	}
	if limiter.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", limiter.Size())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if got := ClientIP(req); got != "192.0.2.10" {
		t.Fatalf("ClientIP() = %q", got)
	}

	req.Header.Set("X-Real-IP", "192.0.2.20")
	if got := ClientIP(req); got != "192.0.2.20" {
		t.Fatalf("ClientIP() with X-Real-IP = %q", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("generated id %q not echoed, header = %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" {
		t.Fatalf("incoming id not kept, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.New("error"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/freshness", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestCompression(t *testing.T) {
	body := strings.Repeat(`{"source":"live"}`, 100)
	h := Compression(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/freshness", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("expected gzip response")
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	decoded, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(decoded) != body {
		t.Fatal("decoded body mismatch")
	}

	wsReq := httptest.NewRequest(http.MethodGet, "/ws", nil)
	wsReq.Header.Set("Accept-Encoding", "gzip")
	wsReq.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, wsReq)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatal("websocket upgrade must not be compressed")
	}
}
