package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_GetMiss(t *testing.T) {
	s, _ := setupTestRedis(t)

	r, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestRedisStore_SetGetExpire(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	want := Response{Status: 201, ContentType: "application/json", Body: []byte(`{"id":"x"}`)}
	require.NoError(t, s.Set(ctx, Key("alice", "k1"), want, time.Minute))

	got, err := s.Get(ctx, Key("alice", "k1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	// 不同請求者使用相同 key 不會命中
	other, err := s.Get(ctx, Key("bob", "k1"))
	require.NoError(t, err)
	assert.Nil(t, other)

	mr.FastForward(2 * time.Minute)
	expired, err := s.Get(ctx, Key("alice", "k1"))
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestRedisStore_ReserveRelease(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "alice:k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "alice:k1")
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must fail while the first is held")

	require.NoError(t, s.Release(ctx, "alice:k1"))
	require.NoError(t, s.Release(ctx, "alice:k1"))

	ok, err = s.Reserve(ctx, "alice:k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	s, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"alice:k1", "not json"))

	_, err := s.Get(context.Background(), "alice:k1")
	assert.Error(t, err)
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := setupTestRedis(t)
	mr.Close()

	_, err := s.Get(context.Background(), "alice:k1")
	assert.Error(t, err)
}
