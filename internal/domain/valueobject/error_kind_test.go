package valueobject

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("upstream responded %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"429", &statusErr{code: 429}, RateLimited},
		{"500", &statusErr{code: 500}, ServerError},
		{"502", &statusErr{code: 502}, ServerError},
		{"503 is not server-error", &statusErr{code: 503}, NetworkError},
		{"404", &statusErr{code: 404}, NetworkError},
		{"wrapped 429", fmt.Errorf("fetch network-stats: %w", &statusErr{code: 429}), RateLimited},
		{"timeout", context.DeadlineExceeded, NetworkError},
		{"dns", &net.DNSError{Err: "no such host", Name: "rpc.invalid"}, NetworkError},
		{"nil", nil, NetworkError},
		{"429 inside message only", errors.New("GET https://host/blocks/4290: connection reset"), NetworkError},
		{"500 inside message only", errors.New("timeout after 500ms"), NetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestSourceIsStale(t *testing.T) {
	if Live.IsStale() {
		t.Fatal("live must not be stale")
	}
	if !Cached.IsStale() || !Demo.IsStale() {
		t.Fatal("cached and demo must be stale")
	}
	if !(Live.Rank() > Cached.Rank() && Cached.Rank() > Demo.Rank()) {
		t.Fatal("unexpected source ranking")
	}
}

func TestValidateFeedKey(t *testing.T) {
	valid := []string{"network-stats", "recent-blocks", "node-resources", "a1"}
	for _, key := range valid {
		if err := ValidateFeedKey(key); err != nil {
			t.Errorf("ValidateFeedKey(%q) error = %v", key, err)
		}
	}

	invalid := []string{"", "Network", "with space", "-leading", "dots.in.key"}
	for _, key := range invalid {
		if err := ValidateFeedKey(key); err == nil {
			t.Errorf("ValidateFeedKey(%q) expected error", key)
		}
	}
}
