package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	MaxLoginAttempts = 5
	LoginWindow      = 15 * time.Minute
)

// LoginGuard counts failed logins per account. An account is locked once
// MaxLoginAttempts failures happen within LoginWindow of the last one.
type LoginGuard interface {
	Locked(ctx context.Context, email string) (bool, error)
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

func attemptKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

type attempt struct {
	count int
	last  time.Time
}

// MemoryLoginGuard keeps counters in process
type MemoryLoginGuard struct {
	mu       sync.Mutex
	attempts map[string]attempt
	now      func() time.Time
}

func NewMemoryLoginGuard() *MemoryLoginGuard {
	return &MemoryLoginGuard{attempts: make(map[string]attempt), now: time.Now}
}

func (g *MemoryLoginGuard) Locked(ctx context.Context, email string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := attemptKey(email)
	a, ok := g.attempts[key]
	if !ok {
		return false, nil
	}
	if g.now().Sub(a.last) > LoginWindow {
		delete(g.attempts, key)
		return false, nil
	}
	return a.count >= MaxLoginAttempts, nil
}

func (g *MemoryLoginGuard) Fail(ctx context.Context, email string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := attemptKey(email)
	a := g.attempts[key]
	if g.now().Sub(a.last) > LoginWindow {
		a.count = 0
	}
	a.count++
	a.last = g.now()
	g.attempts[key] = a
	return nil
}

func (g *MemoryLoginGuard) Reset(ctx context.Context, email string) error {
	g.mu.Lock()
	delete(g.attempts, attemptKey(email))
	g.mu.Unlock()
	return nil
}

// RedisLoginGuard shares counters between instances. Each failure pushes
// the expiry out by LoginWindow.
type RedisLoginGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisLoginGuard(client *redis.Client) *RedisLoginGuard {
	return &RedisLoginGuard{client: client, prefix: "login_attempts:"}
}

func (g *RedisLoginGuard) Locked(ctx context.Context, email string) (bool, error) {
	n, err := g.client.Get(ctx, g.prefix+attemptKey(email)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= MaxLoginAttempts, nil
}

func (g *RedisLoginGuard) Fail(ctx context.Context, email string) error {
	key := g.prefix + attemptKey(email)
	pipe := g.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, LoginWindow)
	_, err := pipe.Exec(ctx)
	return err
}

func (g *RedisLoginGuard) Reset(ctx context.Context, email string) error {
	return g.client.Del(ctx, g.prefix+attemptKey(email)).Err()
}
