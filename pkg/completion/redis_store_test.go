package completion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	_, ok, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, Entry{SubjectID: "user-1", IsComplete: true, ComputedAt: at}, time.Minute))
	assert.True(t, mr.Exists("completion:user-1"))

	e, ok, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.IsComplete)
	assert.True(t, at.Equal(e.ComputedAt))

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_CorruptValueIsMiss(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("completion:user-1", "{not json"))

	_, ok, err := s.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_DeleteAndClear(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("other:key", "keep"))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, Entry{SubjectID: id, ComputedAt: time.Now()}, time.Minute))
	}

	require.NoError(t, s.Delete(ctx, "a"))
	assert.False(t, mr.Exists("completion:a"))
	assert.True(t, mr.Exists("completion:b"))

	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("completion:b"))
	assert.False(t, mr.Exists("completion:c"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Close()

	_, _, err := s.Get(context.Background(), "user-1")
	assert.Error(t, err)
}
