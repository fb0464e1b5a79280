// Package ratelimit implements the per-source fixed-window limiter guarding the webhook endpoint.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/asperpharma/webhook-service/internal/metrics"
)

// Store is the backing counter table. Incr opens a new window when none is
// active for key and returns the post-increment count and when the window ends.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Result is the outcome of a single check.
type Result struct {
	Limited    bool
	RetryAfter int // seconds, set only when Limited
}

type Limiter struct {
	store  Store
	max    int64
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewLimiter(store Store, max int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		max:    int64(max),
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used for Retry-After. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check counts one request from ip. A store failure allows the request.
func (l *Limiter) Check(ctx context.Context, ip string) Result {
	count, resetAt, err := l.store.Incr(ctx, ip, l.window)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("ratelimit").Inc()
		l.logger.WarnContext(ctx, "rate limit store unavailable, allowing request",
			"source_ip", ip, "error", err)
		return Result{}
	}

	if count <= l.max {
		return Result{}
	}

	return Result{Limited: true, RetryAfter: retryAfter(resetAt.Sub(l.now()))}
}

func retryAfter(remaining time.Duration) int {
	secs := int(math.Ceil(remaining.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
