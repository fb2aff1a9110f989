package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock cannot be acquired before the context ends.
var ErrLockTimeout = errors.New("lock not acquired")

// Locker serializes work on a key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// DocumentLockKey builds lock keys for billing documents.
func DocumentLockKey(kind, id string) string {
	return fmt.Sprintf("billing:%s:%s", kind, id)
}

// NumberingLockKey guards document number generation per document kind.
func NumberingLockKey(kind string) string {
	return fmt.Sprintf("billing:numbering:%s", kind)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// Record kinds used in RecordLockKey.
const (
	RecordCustomer = "customer"
	RecordVehicle  = "vehicle"
	RecordProduct  = "product"
)

// RecordLockKey guards a customer, vehicle or product while a delete checks its
// references or a billing document starts referring to it.
func RecordLockKey(kind, id string) string {
	return fmt.Sprintf("records:%s:%s", kind, id)
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*keyedEntry
}

// NewLocalLocker constructs a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.keys[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry, false)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, entry, true) })
	}, nil
}

func (l *LocalLocker) release(key string, entry *keyedEntry, held bool) {
	if held {
		<-entry.ch
	}
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}

const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLocker implements Locker with SET NX PX so several instances share locks.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	script *redis.Script
}

// NewRedisLocker constructs a RedisLocker. ttl bounds how long a crashed holder keeps a key.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		script: redis.NewScript(unlockScript),
	}
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := "lock:" + key
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("shared: redis lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					_ = l.script.Run(context.Background(), l.client, []string{redisKey}, token).Err()
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}
