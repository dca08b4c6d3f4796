package counterstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript increments the key and sets its TTL only when this call
// created it, so the window starts exactly once per bucket.
var incrWindowScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {c, ttl}
`)

// casFieldScript swaps a hash field from an expected value to a new one and
// writes any extra fields in the same step. A missing key or field compares
// equal to the empty string.
var casFieldScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur == false then cur = '' end
if cur ~= ARGV[2] then
  return {0, cur}
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
for i = 4, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
return {1, ARGV[3]}
`)

// RedisStore implements Store on a Redis server. Compound operations run as
// Lua scripts so they stay atomic across multiple service instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store backed by the Redis server at url
// (redis://... DSN).
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

// IncrWindow runs the increment-then-expire-if-first script.
func (s *RedisStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrWindowScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, errors.New("counterstore: unexpected incr script reply")
	}
	count, _ := res[0].(int64)
	ttlMs, _ := res[1].(int64)
	if ttlMs < 0 {
		ttlMs = 0
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// Get returns the value at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value at key with the given TTL (zero means no expiry).
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// GetFields returns all hash fields at key, nil when missing.
func (s *RedisStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// SetFields writes the hash fields and applies the TTL when > 0.
func (s *RedisStore) SetFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	pipe.HSet(ctx, key, args...)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IncrField adds delta to the integer hash field at key.
func (s *RedisStore) IncrField(ctx context.Context, key, field string, delta int64) (int64, error) {
	return s.client.HIncrBy(ctx, key, field, delta).Result()
}

// CompareAndSwapField runs the conditional-swap script.
func (s *RedisStore) CompareAndSwapField(ctx context.Context, key, field, old, new string, extra map[string]string) (bool, string, error) {
	args := make([]interface{}, 0, 3+len(extra)*2)
	args = append(args, field, old, new)
	for k, v := range extra {
		args = append(args, k, v)
	}
	res, err := casFieldScript.Run(ctx, s.client, []string{key}, args...).Slice()
	if err != nil {
		return false, "", err
	}
	if len(res) != 2 {
		return false, "", errors.New("counterstore: unexpected cas script reply")
	}
	swapped, _ := res[0].(int64)
	current, _ := res[1].(string)
	return swapped == 1, current, nil
}

// TTL returns the remaining TTL for key.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	// PTTL sentinels come back from go-redis as raw durations, not scaled
	// by the command's millisecond precision.
	switch {
	case d == time.Duration(-2): // key does not exist
		return 0, false, nil
	case d == time.Duration(-1): // no expiry
		return 0, true, nil
	case d < 0:
		return 0, false, nil
	default:
		return d, true, nil
	}
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
