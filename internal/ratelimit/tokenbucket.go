package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// tokenBucketLimiter wraps golang.org/x/time/rate.Limiter, mapping
// requests-per-minute onto a per-second refill rate.
type tokenBucketLimiter struct {
	mu  sync.Mutex
	cfg Config
	rl  *rate.Limiter
}

func newTokenBucketLimiter(cfg Config) *tokenBucketLimiter {
	return &tokenBucketLimiter{cfg: cfg, rl: rate.NewLimiter(perSecond(cfg), cfg.burst())}
}

func perSecond(cfg Config) rate.Limit {
	if cfg.RequestsPerMinute <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
}

func (l *tokenBucketLimiter) AllowRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rl.Allow()
}

func (l *tokenBucketLimiter) WaitForSlot(ctx context.Context) error {
	l.mu.Lock()
	rl := l.rl
	l.mu.Unlock()
	if err := rl.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// rate.Limiter.Wait fails early, with an error that does not wrap
		// a context error, when the wait would run past ctx's deadline.
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("ratelimit: %v: %w", err, context.DeadlineExceeded)
		}
		return err
	}
	return nil
}

func (l *tokenBucketLimiter) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.WaitForSlot(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

func (l *tokenBucketLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rl = rate.NewLimiter(perSecond(l.cfg), l.cfg.burst())
}

func (l *tokenBucketLimiter) UpdateConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.rl = rate.NewLimiter(perSecond(cfg), cfg.burst())
}
