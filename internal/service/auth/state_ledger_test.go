package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateLedgerAcceptsOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryStateLedger()
	l.now = func() time.Time { return now }

	first, err := l.Consume(ctx, "tok-1", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, first)

	again, err := l.Consume(ctx, "tok-1", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, again, "a consumed state is refused until it expires")

	other, err := l.Consume(ctx, "tok-2", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, other)

	now = now.Add(11 * time.Minute)
	_, err = l.Consume(ctx, "tok-3", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.NotContains(t, l.seen, "tok-1", "expired entries are pruned")
}

func TestRedisStateLedgerFailsClosed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	first, err := NewRedisStateLedger(client).Consume(context.Background(), "tok-1", time.Now().Add(time.Minute))
	assert.Error(t, err)
	assert.False(t, first)
}
