package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisKV(client)
}

func TestRedisKV_SetNXAndDeleteIfEqual(t *testing.T) {
	mr, kv := setupTestKV(t)
	ctx := context.Background()

	ok, err := kv.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := kv.DeleteIfEqual(ctx, "lock", "b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, mr.Exists("lock"))

	deleted, err = kv.DeleteIfEqual(ctx, "lock", "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("lock"))
}

func TestLocationLock_ReleaseAllowsNextHolder(t *testing.T) {
	mr, kv := setupTestKV(t)
	lock := NewLocationLock(kv, time.Second)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "haifa|herzl|12")
	require.NoError(t, err)
	assert.True(t, mr.Exists("crosswalk:lock:location:haifa|herzl|12"))

	release()
	assert.False(t, mr.Exists("crosswalk:lock:location:haifa|herzl|12"))

	release, err = lock.Acquire(ctx, "haifa|herzl|12")
	require.NoError(t, err)
	release()
}

func TestLocationLock_TimesOutWhileHeld(t *testing.T) {
	mr, kv := setupTestKV(t)
	require.NoError(t, mr.Set("crosswalk:lock:location:k", "someone-else"))

	lock := NewLocationLock(kv, 100*time.Millisecond)
	_, err := lock.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestLocationLock_ContextCancelled(t *testing.T) {
	mr, kv := setupTestKV(t)
	require.NoError(t, mr.Set("crosswalk:lock:location:k", "someone-else"))

	lock := NewLocationLock(kv, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := lock.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocationLock_SerializesHolders(t *testing.T) {
	_, kv := setupTestKV(t)
	lock := NewLocationLock(kv, 5*time.Second)

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lock.Acquire(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}
