package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pollInterval is how often WaitForSlot re-checks admissibility while
// blocked on a full sliding window. There's no library here: a sliding
// window over a 60s horizon isn't something golang.org/x/time/rate or any
// pack dependency models, so this is a small hand-rolled ring of
// timestamps.
const pollInterval = 100 * time.Millisecond

const windowSize = time.Minute

type slidingWindowLimiter struct {
	mu    sync.Mutex
	cfg   Config
	times []time.Time
}

func newSlidingWindowLimiter(cfg Config) *slidingWindowLimiter {
	return &slidingWindowLimiter{cfg: cfg}
}

// prune must be called with mu held.
func (l *slidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-windowSize)
	i := 0
	for ; i < len(l.times); i++ {
		if l.times[i].After(cutoff) {
			break
		}
	}
	l.times = l.times[i:]
}

func (l *slidingWindowLimiter) AllowRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.prune(now)
	if len(l.times) >= l.cfg.burst() {
		return false
	}
	l.times = append(l.times, now)
	return true
}

func (l *slidingWindowLimiter) WaitForSlot(ctx context.Context) error {
	if l.AllowRequest() {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.AllowRequest() {
				return nil
			}
		}
	}
}

func (l *slidingWindowLimiter) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.WaitForSlot(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

func (l *slidingWindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.times = nil
}

func (l *slidingWindowLimiter) UpdateConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}
