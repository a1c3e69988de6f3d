package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisStore(rdb)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "reset_abc", []byte(`{"userId":"u1"}`), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("reset_abc"))

	got, err := s.Get(ctx, "reset_abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"u1"}`, string(got))

	mr.FastForward(time.Hour)
	_, err = s.Get(ctx, "reset_abc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "k"), "deleting a missing key is fine")
}

func TestRedisStore_TakeIsSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisStore(rdb)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "reset_abc", []byte("v"), time.Hour))
	got, err := s.Take(ctx, "reset_abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.False(t, mr.Exists("reset_abc"))

	_, err = s.Take(ctx, "reset_abc")
	assert.ErrorIs(t, err, ErrNotFound)
}
