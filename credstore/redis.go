package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps go-redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RedisKV is a KV backed by Redis. Batch writes run inside MULTI/EXEC so a
// partially written session is never observable.
type RedisKV struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

// NewRedisKV creates a RedisKV. A ttl of zero keeps keys until removed.
func NewRedisKV(client redis.UniversalClient, ttl time.Duration) *RedisKV {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisKV{redis: client, ttl: ttl}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return v, true, nil
}

// MultiSet writes every pair in one transaction.
//
//	Performance: 1 round trip (MULTI + N SET + EXEC).
func (r *RedisKV) MultiSet(ctx context.Context, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range pairs {
			pipe.Set(ctx, p.Key, p.Value, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// MultiGet reads keys with a single MGET.
func (r *RedisKV) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for i, v := range values {
		if i >= len(keys) || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			out[keys[i]] = s
		case []byte:
			out[keys[i]] = string(s)
		default:
			return nil, fmt.Errorf("%w: unexpected MGET value type %T", ErrRedisUnavailable, v)
		}
	}
	return out, nil
}

func (r *RedisKV) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *RedisKV) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
