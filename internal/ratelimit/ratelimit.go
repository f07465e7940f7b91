// Package ratelimit caps how many issues one user may submit per window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64         // submissions in the current window, including this one
	Limit      int           // configured cap
	RetryAfter time.Duration // set when not allowed
}

// Limiter counts submissions per key. Release returns a slot taken by an
// allowed submission that was not stored.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Release(ctx context.Context, key string) error
}

// Nop allows everything.
type Nop struct{}

func (Nop) Allow(_ context.Context, _ string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (Nop) Release(_ context.Context, _ string) error { return nil }

// Redis is a fixed-window counter: INCR per submission, EXPIRE set on the
// first hit of a window.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedis returns a limiter allowing limit submissions per window.
func NewRedis(client *redis.Client, limit int, window time.Duration, prefix string) *Redis {
	return &Redis{client: client, limit: limit, window: window, prefix: prefix}
}

// Connect opens a client and verifies the server answers PING.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// releaseScript decrements only a live counter; a DECR on an expired key
// would create a negative counter with no TTL.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 and tonumber(redis.call('GET', KEYS[1])) > 0 then
	return redis.call('DECR', KEYS[1])
end
return 0
`)

func (r *Redis) key(id string) string { return r.prefix + ":" + id }

// Allow records one submission for id and reports whether it fits the window.
func (r *Redis) Allow(ctx context.Context, id string) (Decision, error) {
	key := r.key(id)
	d := Decision{Limit: r.limit}

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return d, fmt.Errorf("rate limit incr: %w", err)
	}
	d.Count = count

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return d, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	if count > int64(r.limit) {
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil {
			return d, fmt.Errorf("rate limit ttl: %w", err)
		}
		if ttl > 0 {
			d.RetryAfter = ttl
		}
		return d, nil
	}

	d.Allowed = true
	return d, nil
}

// Release gives back one submission recorded by Allow for id.
func (r *Redis) Release(ctx context.Context, id string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(id)}).Err(); err != nil {
		return fmt.Errorf("rate limit release: %w", err)
	}
	return nil
}
