package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// defaultBaseBackoff is the fixed starting backoff between retry attempts.
const defaultBaseBackoff = 1000 * time.Millisecond

// InvokeFunc is one attemptable tool invocation.
type InvokeFunc func(ctx context.Context) (any, error)

// RetryExecutor wraps a single tool invocation with bounded exponential
// backoff. The first attempt runs immediately; backoff is applied before each
// retry, multiplied by the policy's multiplier after every failed attempt and
// capped at MaxBackoffMs.
type RetryExecutor struct {
	logger *zap.Logger
	base   time.Duration
}

// NewRetryExecutor creates a retry executor.
func NewRetryExecutor(logger *zap.Logger) *RetryExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryExecutor{
		logger: logger.With(zap.String("component", "retry_executor")),
		base:   defaultBaseBackoff,
	}
}

// Execute runs invoke with up to policy.MaxRetries additional attempts after
// the first failure. It returns the result, the number of retries performed
// (0 when the first attempt succeeds), and the last error once retries are
// exhausted. A cancelled context aborts the backoff wait immediately.
func (r *RetryExecutor) Execute(ctx context.Context, nodeID string, policy RetryPolicy, invoke InvokeFunc) (any, int, error) {
	backoff := r.base
	maxBackoff := time.Duration(policy.MaxBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
			r.logger.Debug("backing off before retry",
				zap.String("node_id", nodeID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			}
			backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
		}

		result, err := invoke(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		r.logger.Debug("tool invocation failed",
			zap.String("node_id", nodeID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return nil, attempt, lastErr
		}
	}
	return nil, policy.MaxRetries, lastErr
}
