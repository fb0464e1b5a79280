package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "webhook:ratelimit:"

// incrScript increments the counter and starts the window on the first hit.
// It returns the new count and the remaining window in milliseconds.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares counters across instances through Redis keys that expire with the window.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Incr(ctx context.Context, key string, win time.Duration) (int64, time.Time, error) {
	res, err := incrScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, win.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis incr %s: unexpected reply length %d", key, len(res))
	}
	return res[0], s.now().Add(time.Duration(res[1]) * time.Millisecond), nil
}
