package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsCrawler/internal/domain"
)

func newRedisIndex(t *testing.T) (*RedisIndex, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisIndex(client, "test:", Options{Retention: 24 * time.Hour, ClaimTTL: time.Minute}), mr
}

func TestRedisClaimCommit(t *testing.T) {
	ctx := context.Background()
	idx, mr := newRedisIndex(t)

	fresh, err := idx.Claim(ctx, fp("a"))
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = idx.Claim(ctx, fp("a"))
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, idx.Commit(ctx, fp("a"), time.Now()))
	assert.False(t, mr.Exists("test:claim:"+fp("a")))
	assert.True(t, mr.Exists("test:seen:"+fp("a")))

	dup, err := idx.IsDuplicate(ctx, fp("a"))
	require.NoError(t, err)
	assert.True(t, dup)

	fresh, err = idx.Claim(ctx, fp("a"))
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestRedisReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	idx, _ := newRedisIndex(t)

	fresh, err := idx.Claim(ctx, fp("b"))
	require.NoError(t, err)
	require.True(t, fresh)
	require.NoError(t, idx.Release(ctx, fp("b")))

	fresh, err = idx.Claim(ctx, fp("b"))
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestRedisRecordExpires(t *testing.T) {
	ctx := context.Background()
	idx, mr := newRedisIndex(t)

	require.NoError(t, idx.Record(ctx, fp("c"), time.Now()))
	mr.FastForward(25 * time.Hour)

	dup, err := idx.IsDuplicate(ctx, fp("c"))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRedisOutageIsFatal(t *testing.T) {
	ctx := context.Background()
	idx, mr := newRedisIndex(t)
	mr.Close()

	_, err := idx.Claim(ctx, fp("d"))
	require.Error(t, err)
	assert.True(t, domain.IsFatal(err))
}
