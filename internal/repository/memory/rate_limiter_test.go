package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(3, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow(ctx, "send:192.0.2.1")
		require.NoError(t, err)
		assert.True(t, ok)
		clock.Advance(10 * time.Second)
	}

	ok, retry, err := limiter.Allow(ctx, "send:192.0.2.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retry)

	ok, _, err = limiter.Allow(ctx, "send:192.0.2.2")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(30 * time.Second)
	ok, _, err = limiter.Allow(ctx, "send:192.0.2.1")
	require.NoError(t, err)
	assert.True(t, ok)
}
