// Package inflight keeps a source transaction from being prompted twice at the same time.
package inflight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when another worker already holds the key.
var ErrBusy = errors.New("source already in flight")

// Release frees a held key.
type Release func(ctx context.Context) error

type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Redis holds keys with SET NX PX and releases them only when the token still matches.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (g *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	k := g.prefix + key
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func(ctx context.Context) error {
		return g.client.Eval(ctx, releaseScript, []string{k}, token).Err()
	}, nil
}

// Local is an in-process Guard used when no Redis is configured.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

func (g *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if exp, ok := g.held[key]; ok && now.Before(exp) {
		return nil, ErrBusy
	}
	exp := now.Add(ttl)
	g.held[key] = exp
	return func(context.Context) error {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.held[key].Equal(exp) {
			delete(g.held, key)
		}
		return nil
	}, nil
}
