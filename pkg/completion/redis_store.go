package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "completion:"

// RedisStore shares cache entries between replicas. Keys expire with the
// cache TTL as a backstop; the Cache still checks ComputedAt itself.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store writing under the "completion:" prefix.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: defaultKeyPrefix}
}

func (r *RedisStore) key(subjectID string) string {
	return r.prefix + subjectID
}

func (r *RedisStore) Get(ctx context.Context, subjectID string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.key(subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt value is a miss; the next Put overwrites it.
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (r *RedisStore) Put(ctx context.Context, e Entry, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(e.SubjectID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, subjectID string) error {
	if err := r.client.Del(ctx, r.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
