package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLocalLockerSerializes(t *testing.T) {
	defer goleak.VerifyNone(t)

	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, DocumentLockKey("estimate", "e1"))
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.keys, "entries are released")
}

func TestLocalLockerTimeout(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), NumberingLockKey("invoice"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, NumberingLockKey("invoice"))
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := locker.Lock(context.Background(), NumberingLockKey("estimate"))
	require.NoError(t, err, "keys are independent")
	other()

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), NumberingLockKey("invoice"))
	require.NoError(t, err)
	again()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Minute)

	unlock, err := locker.Lock(context.Background(), "billing:estimate:e1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:billing:estimate:e1"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "billing:estimate:e1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists("lock:billing:estimate:e1"))

	unlock, err = locker.Lock(context.Background(), "billing:estimate:e1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Second)

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:k", "someone-else"))

	unlock()
	v, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}
