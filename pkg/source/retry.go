package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/narradar/pkg/signal"
)

// RetryPolicy bounds how often a failing adapter is retried within one run.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetry is the production policy: three attempts with exponential
// backoff starting at two seconds.
var DefaultRetry = RetryPolicy{MaxAttempts: 3, InitialBackoff: 2 * time.Second}

// CollectWithRetry runs one adapter under the default retry policy.
func CollectWithRetry(ctx context.Context, c Collector, window signal.Window, logger *zap.Logger) (Result, error) {
	return DefaultRetry.Collect(ctx, c, window, logger)
}

// Collect runs the adapter with bounded retries and exponential backoff on
// rate-limit and transient upstream failures. Auth failures are returned
// immediately. Cancellation is honored between attempts.
func (rp RetryPolicy) Collect(ctx context.Context, c Collector, window signal.Window, logger *zap.Logger) (Result, error) {
	backoff := rp.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= rp.MaxAttempts; attempt++ {
		res, err := c.Collect(ctx, window)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !retryable(err) || attempt == rp.MaxAttempts {
			break
		}

		logger.Warn("adapter attempt failed, backing off",
			zap.String("source", string(c.Name())),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return Result{}, lastErr
}
