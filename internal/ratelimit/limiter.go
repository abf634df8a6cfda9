// Package ratelimit implements the two rate limiting strategies available
// to Sync Orchestrator providers: token-bucket (golang.org/x/time/rate)
// and sliding-window.
package ratelimit

import "context"

// Strategy selects the limiting algorithm.
type Strategy string

const (
	StrategyTokenBucket   Strategy = "token_bucket"
	StrategySlidingWindow Strategy = "sliding_window"
)

// Config bounds a provider's outbound request rate.
type Config struct {
	RequestsPerMinute int
	// BurstLimit is the max number of requests admitted in a single
	// instant. Defaults to RequestsPerMinute when zero.
	BurstLimit int
}

func (c Config) burst() int {
	if c.BurstLimit <= 0 {
		return c.RequestsPerMinute
	}
	return c.BurstLimit
}

// Limiter is the common interface both strategies satisfy.
type Limiter interface {
	// AllowRequest reports, without blocking, whether a request may
	// proceed right now.
	AllowRequest() bool
	// WaitForSlot blocks until a request may proceed or ctx is done.
	WaitForSlot(ctx context.Context) error
	// Execute waits for a slot then runs fn.
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
	// Reset clears accumulated usage.
	Reset()
	// UpdateConfig swaps in new limiter parameters, preserving whatever
	// usage state makes sense for the strategy.
	UpdateConfig(cfg Config)
}

// New builds a Limiter for the given strategy.
func New(strategy Strategy, cfg Config) Limiter {
	if strategy == StrategySlidingWindow {
		return newSlidingWindowLimiter(cfg)
	}
	return newTokenBucketLimiter(cfg)
}
