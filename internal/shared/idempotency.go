package shared

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore remembers processed request keys and the resource they produced.
type IdempotencyStore interface {
	// CheckAndInsert reserves key for module; it returns ErrIdempotencyConflict and the
	// stored result when the key was seen before.
	CheckAndInsert(ctx context.Context, key, module string) (string, error)
	// Complete records the result for a reserved key.
	Complete(ctx context.Context, key, module, result string) error
	// Delete removes a key, typically used to roll back failed processing.
	Delete(ctx context.Context, key, module string) error
}

const pendingResult = "-"

// RedisIdempotencyStore persists processed keys in Redis with a retention TTL.
type RedisIdempotencyStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisIdempotencyStore constructs the store.
func NewRedisIdempotencyStore(client *redis.Client, retention time.Duration) *RedisIdempotencyStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, retention: retention}
}

func idempotencyKey(key, module string) string {
	return "idempotency:" + module + ":" + key
}

// CheckAndInsert ensures key uniqueness per module.
func (s *RedisIdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("idempotency store not initialised")
	}
	if err := checkKey(key, module); err != nil {
		return "", err
	}
	ok, err := s.client.SetNX(ctx, idempotencyKey(key, module), pendingResult, s.retention).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		result, err := s.client.Get(ctx, idempotencyKey(key, module)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", err
		}
		if result == pendingResult {
			result = ""
		}
		return result, ErrIdempotencyConflict
	}
	return "", nil
}

// Complete stores the produced resource id.
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key, module, result string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, idempotencyKey(key, module), result, s.retention).Err()
}

// Delete removes a key.
func (s *RedisIdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := checkKey(key, module); err != nil {
		return err
	}
	return s.client.Del(ctx, idempotencyKey(key, module)).Err()
}

// MemoryIdempotencyStore is the single-process fallback used without Redis.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryIdempotencyStore constructs an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]string)}
}

func (s *MemoryIdempotencyStore) CheckAndInsert(_ context.Context, key, module string) (string, error) {
	if err := checkKey(key, module); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idempotencyKey(key, module)
	if result, ok := s.keys[k]; ok {
		if result == pendingResult {
			result = ""
		}
		return result, ErrIdempotencyConflict
	}
	s.keys[k] = pendingResult
	return "", nil
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key, module, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[idempotencyKey(key, module)] = result
	return nil
}

func (s *MemoryIdempotencyStore) Delete(_ context.Context, key, module string) error {
	if err := checkKey(key, module); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, idempotencyKey(key, module))
	return nil
}

func checkKey(key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	return nil
}
