package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

const defaultResetTimeout = 30 * time.Second

// guard runs fn behind breaker, retrying transient failures with retry
func guard(ctx context.Context, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, fn func(ctx context.Context) error) error {
	err := breaker.Call(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, fn, retry, retryable)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return errorsx.Wrap(fmt.Errorf("%s: %w", breaker.Name(), err), errorsx.ReasonProviderCircuit)
	}
	return err
}

// retryable excludes classified provider answers, which carry a reason code
func retryable(err error) bool {
	if errorsx.Reason(err) != errorsx.ReasonUnknown {
		return false
	}
	return resilience.IsRetryableNetworkError(err)
}
