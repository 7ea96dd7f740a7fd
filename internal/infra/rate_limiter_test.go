package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.TryAcquire(), "token %d", i)
	}
	assert.False(t, rl.TryAcquire(), "bucket should be empty")
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(1, 0.1)
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestRateLimiter_Unlimited(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
}
