package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
	"github.com/edgecomet/pdfgen/internal/common/redis"
)

func setupCoordinator(t *testing.T) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewCoordinator(client, time.Second, zap.NewNop()), mr
}

func TestKey(t *testing.T) {
	assert.Equal(t, "lock:abc123", Key("abc123"))
}

func TestAcquireRelease(t *testing.T) {
	c, mr := setupCoordinator(t)
	ctx := context.Background()
	key := Key("fp1")

	ok, err := c.Acquire(ctx, key, "req-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "req-a", val)
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	ok, err = c.Acquire(ctx, key, "req-b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	require.NoError(t, c.Release(ctx, key, "req-a"))
	assert.False(t, mr.Exists(key))

	ok, err = c.Acquire(ctx, key, "req-b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "key is acquirable again after release")
}

func TestRelease_DoesNotDeleteForeignLock(t *testing.T) {
	c, mr := setupCoordinator(t)
	ctx := context.Background()
	key := Key("fp2")

	ok, err := c.Acquire(ctx, key, "owner", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Release(ctx, key, "intruder"))
	assert.True(t, mr.Exists(key))
}

func TestRelease_Idempotent(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	assert.NoError(t, c.Release(ctx, Key("never-held"), "x"))
	assert.NoError(t, c.Release(ctx, Key("never-held"), "x"))
}

func TestAcquire_ExpiresAfterTTL(t *testing.T) {
	c, mr := setupCoordinator(t)
	ctx := context.Background()
	key := Key("fp3")

	ok, err := c.Acquire(ctx, key, "crashed-holder", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = c.Acquire(ctx, key, "next", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquire_InvalidTTL(t *testing.T) {
	c, _ := setupCoordinator(t)

	for _, ttl := range []time.Duration{0, -time.Second} {
		_, err := c.Acquire(context.Background(), Key("fp"), "o", ttl)
		assert.ErrorIs(t, err, ErrInvalidTTL)
	}
}

func TestAcquire_MutualExclusion(t *testing.T) {
	c, _ := setupCoordinator(t)
	key := Key("contended")

	const racers = 20
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := c.Acquire(context.Background(), key, "owner", 30*time.Second)
			if err == nil && ok {
				winners.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestAcquire_IgnoresCallerCancellation(t *testing.T) {
	c, _ := setupCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := c.Acquire(ctx, Key("cancelled"), "o", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreUnavailable(t *testing.T) {
	c, mr := setupCoordinator(t)
	mr.Close()
	ctx := context.Background()

	ok, err := c.Acquire(ctx, Key("down"), "o", 30*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.ErrorIs(t, c.Release(ctx, Key("down"), "o"), ErrStoreUnavailable)
}

type slowStore struct{}

func (slowStore) SetNX(ctx context.Context, _ string, _ interface{}, _ time.Duration) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (slowStore) CompareAndDelete(ctx context.Context, _, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestOperationTimeout(t *testing.T) {
	c := NewCoordinator(slowStore{}, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := c.Acquire(context.Background(), Key("slow"), "o", time.Second)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.Less(t, time.Since(start), time.Second)
}
