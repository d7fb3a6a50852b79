package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-service/internal/client"
)

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := client.WrapRedisClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer rc.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(rc, "test", 2, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(ctx, "send:192.0.2.1")
		require.NoError(t, err)
		assert.True(t, ok)
		now = now.Add(15 * time.Second)
	}

	ok, retry, err := limiter.Allow(ctx, "send:192.0.2.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retry)
	assert.True(t, mr.Exists("test:ratelimit:send:192.0.2.1"))

	now = now.Add(31 * time.Second)
	ok, _, err = limiter.Allow(ctx, "send:192.0.2.1")
	require.NoError(t, err)
	assert.True(t, ok)
}
