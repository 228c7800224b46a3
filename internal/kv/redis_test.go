package kv

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func newStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	in := sample{Name: "hello", Count: 42}
	require.NoError(t, store.PutJSON(ctx, "test:one", &in))

	var out sample
	found, err := store.GetJSON(ctx, "test:one", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestGetMissingKey(t *testing.T) {
	store := newStore(t)

	var out sample
	found, err := store.GetJSON(context.Background(), "test:absent", &out)
	require.NoError(t, err, "a missing key is not an error")
	assert.False(t, found)
}

func TestGetMalformedValue(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client)

	require.NoError(t, client.Set(ctx, "test:bad", "{not json", 0).Err())

	var out sample
	_, err := store.GetJSON(ctx, "test:bad", &out)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.PutJSON(ctx, "test:gone", &sample{}))
	require.NoError(t, store.Delete(ctx, "test:gone"))

	var out sample
	found, err := store.GetJSON(ctx, "test:gone", &out)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, store.Delete(ctx, "test:never"), "deleting a missing key is a no-op")
}

func TestListPaginatesToExhaustion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	const total = 250 // forces multiple SCAN pages
	for i := 0; i < total; i++ {
		require.NoError(t, store.PutJSON(ctx, fmt.Sprintf("pfx:%03d", i), &sample{Count: int64(i)}))
	}
	require.NoError(t, store.PutJSON(ctx, "other:1", &sample{}))

	seen := map[string]bool{}
	var cursor uint64
	for {
		keys, next, err := store.List(ctx, "pfx:", cursor)
		require.NoError(t, err)
		for _, k := range keys {
			seen[k] = true
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	assert.Len(t, seen, total)
	assert.False(t, seen["other:1"], "prefix filter must hold")
}
