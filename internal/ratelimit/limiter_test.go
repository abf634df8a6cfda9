package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllowsUpToBurst(t *testing.T) {
	l := New(StrategyTokenBucket, Config{RequestsPerMinute: 60, BurstLimit: 3})
	assert.True(t, l.AllowRequest())
	assert.True(t, l.AllowRequest())
	assert.True(t, l.AllowRequest())
	assert.False(t, l.AllowRequest())
}

func TestTokenBucketWaitForSlotRespectsContext(t *testing.T) {
	l := New(StrategyTokenBucket, Config{RequestsPerMinute: 1, BurstLimit: 1})
	require.True(t, l.AllowRequest())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.WaitForSlot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucketReset(t *testing.T) {
	l := New(StrategyTokenBucket, Config{RequestsPerMinute: 60, BurstLimit: 1})
	require.True(t, l.AllowRequest())
	require.False(t, l.AllowRequest())
	l.Reset()
	assert.True(t, l.AllowRequest())
}

func TestSlidingWindowAllowsUpToBurst(t *testing.T) {
	l := New(StrategySlidingWindow, Config{RequestsPerMinute: 120, BurstLimit: 2})
	assert.True(t, l.AllowRequest())
	assert.True(t, l.AllowRequest())
	assert.False(t, l.AllowRequest())
}

func TestSlidingWindowExecuteRunsFn(t *testing.T) {
	l := New(StrategySlidingWindow, Config{RequestsPerMinute: 600, BurstLimit: 5})
	called := false
	err := l.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestSlidingWindowUpdateConfigWidensBurst(t *testing.T) {
	l := New(StrategySlidingWindow, Config{RequestsPerMinute: 60, BurstLimit: 1})
	require.True(t, l.AllowRequest())
	require.False(t, l.AllowRequest())
	l.UpdateConfig(Config{RequestsPerMinute: 60, BurstLimit: 2})
	assert.True(t, l.AllowRequest())
}
