package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist records tokens revoked by logout until they would have expired
type TokenBlacklist interface {
	Revoke(ctx context.Context, token string, until time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryBlacklist keeps revoked tokens in process
type MemoryBlacklist struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{tokens: map[string]time.Time{}, now: time.Now}
}

func (b *MemoryBlacklist) Revoke(ctx context.Context, token string, until time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for digest, expiry := range b.tokens {
		if now.After(expiry) {
			delete(b.tokens, digest)
		}
	}
	if until.After(now) {
		b.tokens[tokenDigest(token)] = until
	}
	return nil
}

func (b *MemoryBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiry, ok := b.tokens[tokenDigest(token)]
	return ok && b.now().Before(expiry), nil
}

// RedisBlacklist shares revocations between instances
type RedisBlacklist struct {
	client *redis.Client
	prefix string
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: "jwt:blacklist:"}
}

func (b *RedisBlacklist) Revoke(ctx context.Context, token string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, b.prefix+tokenDigest(token), 1, ttl).Err()
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+tokenDigest(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
