package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

func responseError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New("upstream"),
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), false},
		{"throttling code", &smithy.GenericAPIError{Code: "ThrottlingException"}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Whatever", Fault: smithy.FaultServer}, true},
		{"client fault", &smithy.GenericAPIError{Code: "InvalidParameterException", Fault: smithy.FaultClient}, false},
		{"http 429", responseError(http.StatusTooManyRequests), true},
		{"http 503", responseError(http.StatusServiceUnavailable), true},
		{"http 400", responseError(http.StatusBadRequest), false},
		{"network error", errors.New("connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRun_OpensBreakerAfterRepeatedFailures(t *testing.T) {
	executor := newExecutor()
	calls := 0
	failing := func(context.Context) error {
		calls++
		return &smithy.GenericAPIError{Code: "ServiceUnavailable", Fault: smithy.FaultServer}
	}

	var err error
	for i := 0; i < breakerFailures; i++ {
		err = run(context.Background(), executor, failing)
		if errors.Is(err, ErrPublisherUnavailable) {
			break
		}
	}
	if !errors.Is(err, ErrPublisherUnavailable) {
		err = run(context.Background(), executor, failing)
	}
	if !errors.Is(err, ErrPublisherUnavailable) {
		t.Fatalf("run() error = %v, want ErrPublisherUnavailable", err)
	}

	before := calls
	if err := run(context.Background(), executor, failing); !errors.Is(err, ErrPublisherUnavailable) {
		t.Fatalf("run() error = %v, want ErrPublisherUnavailable", err)
	}
	if calls != before {
		t.Fatal("open breaker must not call the API")
	}
}
