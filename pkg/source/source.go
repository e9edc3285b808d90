package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/elonfeng/narradar/pkg/signal"
)

// Typed failures for a whole adapter run. Partial failures inside an adapter
// are reported as Result warnings instead.
var (
	// ErrSourceUnavailable marks a transient upstream outage.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited marks an upstream rate limit.
	ErrRateLimited = errors.New("source rate limited")

	// ErrAuth marks rejected or missing credentials. Not retryable.
	ErrAuth = errors.New("source authentication failed")
)

// Result is what one adapter produced for one collection window. An adapter
// that fetched part of its data returns the normalized subset here and names
// the failed remainder in Warnings.
type Result struct {
	Signals  []signal.Signal
	Warnings []string
}

// Collector is the interface every signal adapter implements. Adapters are
// independent: none may assume another succeeded.
type Collector interface {
	Name() signal.Source
	Collect(ctx context.Context, window signal.Window) (Result, error)
}

// statusError maps an HTTP status to the adapter error taxonomy.
func statusError(src signal.Source, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s status %d: %w", src, status, ErrAuth)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s status %d: %w", src, status, ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("%s status %d: %w", src, status, ErrSourceUnavailable)
	default:
		return fmt.Errorf("%s unexpected status %d", src, status)
	}
}

// retryable reports whether the error is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrSourceUnavailable)
}
