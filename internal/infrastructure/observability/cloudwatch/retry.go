package cloudwatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second

	// после breakerFailures неудач подряд публикация приостанавливается на breakerDelay
	breakerFailures = 5
	breakerDelay    = 30 * time.Second
)

// ErrPublisherUnavailable CloudWatch недоступен, вызовы временно не выполняются
var ErrPublisherUnavailable = errors.New("cloudwatch publisher temporarily unavailable")

// newExecutor повторы с backoff поверх circuit breaker.
// Breaker не дает логам и метрикам копиться в повторах, пока CloudWatch лежит.
func newExecutor() failsafe.Executor[any] {
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(initialBackoff, maxBackoff).
		WithMaxRetries(maxRetries-1).
		WithJitterFactor(0.1).
		HandleIf(func(_ any, err error) bool {
			return isRetryable(err)
		}).
		ReturnLastFailure().
		Build()

	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(breakerFailures).
		WithDelay(breakerDelay).
		WithSuccessThreshold(1).
		HandleIf(func(_ any, err error) bool {
			return err != nil && isRetryable(err)
		}).
		Build()

	return failsafe.With[any](retry, breaker)
}

// run выполняет вызов API через executor
func run(ctx context.Context, executor failsafe.Executor[any], call func(ctx context.Context) error) error {
	err := executor.WithContext(ctx).Run(func() error {
		return call(ctx)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrPublisherUnavailable
	}
	return err
}

// isRetryable повторяем троттлинг, 5xx и сетевые ошибки; ошибки валидации запроса окончательны
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "ServiceUnavailable", "ServiceUnavailableException", "InternalFailure":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}

	return true
}
