package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments a bucket and starts its window on the first hit.
// A key that somehow lost its TTL gets one again so it cannot live forever.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisCounter shares buckets between replicas.
type RedisCounter struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client, now: time.Now}
}

// NewRedisCounterFromURL dials a redis:// or rediss:// URL.
func NewRedisCounterFromURL(ctx context.Context, rawURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
	}
	return NewRedisCounter(client), nil
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (Hit, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	res, err := incrScript.Run(ctx, c.client, []string{key}, ms).Int64Slice()
	if err != nil {
		return Hit{}, fmt.Errorf("ratelimit: redis incr %s: %w", key, err)
	}
	if len(res) != 2 {
		return Hit{}, fmt.Errorf("ratelimit: redis incr %s: unexpected reply %v", key, res)
	}

	return Hit{
		Count:   res[0],
		ResetAt: c.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

// Ping reports whether Redis is reachable.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}
