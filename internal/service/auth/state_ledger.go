package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStateLedger remembers consumed handshake tokens in process until
// they expire. It suits a single instance.
type MemoryStateLedger struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryStateLedger returns an empty ledger.
func NewMemoryStateLedger() *MemoryStateLedger {
	return &MemoryStateLedger{seen: make(map[string]time.Time), now: time.Now}
}

// Consume reports whether token is presented for the first time.
func (l *MemoryStateLedger) Consume(_ context.Context, token string, expiresAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, exp := range l.seen {
		if !exp.After(now) {
			delete(l.seen, k)
		}
	}
	if _, ok := l.seen[token]; ok {
		return false, nil
	}
	l.seen[token] = expiresAt
	return true, nil
}

const stateLedgerPrefix = "cadence:oauth_state:"

// RedisStateLedger records consumed handshake tokens in redis, so a token is
// accepted once across every instance.
type RedisStateLedger struct {
	client *redis.Client
}

// NewRedisStateLedger creates a ledger on client.
func NewRedisStateLedger(client *redis.Client) *RedisStateLedger {
	return &RedisStateLedger{client: client}
}

// Consume reports whether token is presented for the first time. The key
// lives until the handshake expires.
func (l *RedisStateLedger) Consume(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	first, err := l.client.SetNX(ctx, stateLedgerPrefix+token, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record oauth state: %w", err)
	}
	return first, nil
}
