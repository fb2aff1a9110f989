package vehiclelookup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingLookup struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (l *countingLookup) Lookup(_ context.Context, reg string) (VehicleInfo, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	if l.err != nil {
		return VehicleInfo{}, l.err
	}
	return VehicleInfo{Registration: reg, Make: "VAUXHALL", Model: "CORSA"}, nil
}

func TestCachedLookupUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingLookup{}
	c := NewCachedLookup(next, client, time.Hour, nil)

	info, err := c.Lookup(context.Background(), "xy 99 abc")
	require.NoError(t, err)
	assert.Equal(t, "VAUXHALL", info.Make)
	assert.True(t, mr.Exists("vehiclelookup:XY99ABC"))
	assert.Equal(t, time.Hour, mr.TTL("vehiclelookup:XY99ABC"))

	info, err = c.Lookup(context.Background(), "XY99ABC")
	require.NoError(t, err)
	assert.Equal(t, "CORSA", info.Model)
	assert.Equal(t, int32(1), next.calls.Load(), "second lookup served from cache")

	mr.FastForward(2 * time.Hour)
	_, err = c.Lookup(context.Background(), "XY99ABC")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedLookupDoesNotCacheFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingLookup{err: errors.New("provider down")}
	c := NewCachedLookup(next, client, time.Hour, nil)

	_, err := c.Lookup(context.Background(), "AB1")
	require.Error(t, err)
	assert.False(t, mr.Exists("vehiclelookup:AB1"))
}

func TestCachedLookupCollapsesConcurrentCalls(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &countingLookup{gate: make(chan struct{})}
	c := NewCachedLookup(next, nil, 0, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan VehicleInfo, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := c.Lookup(context.Background(), "AB12CDE")
			if err == nil {
				results <- info
			}
		}()
	}
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(next.gate)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), next.calls.Load())
	n := 0
	for info := range results {
		assert.Equal(t, "AB12CDE", info.Registration)
		n++
	}
	assert.Equal(t, callers, n)
}
