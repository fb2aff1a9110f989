package vehiclelookup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cachePrefix = "vehiclelookup:"

// CachedLookup wraps a Lookuper with a Redis cache and collapses concurrent
// lookups of the same registration into one provider call.
type CachedLookup struct {
	next   Lookuper
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedLookup constructs the wrapper. A nil client disables caching but keeps
// request collapsing.
func NewCachedLookup(next Lookuper, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLookup{next: next, client: client, ttl: ttl, logger: logger}
}

// Lookup returns the cached entry when present, otherwise asks the provider.
func (c *CachedLookup) Lookup(ctx context.Context, registration string) (VehicleInfo, error) {
	reg := NormalizeRegistration(registration)
	if reg == "" {
		return VehicleInfo{}, ErrInvalidRegistration
	}
	if info, ok := c.cached(ctx, reg); ok {
		return info, nil
	}
	v, err, _ := c.group.Do(reg, func() (any, error) {
		info, err := c.next.Lookup(ctx, reg)
		if err != nil {
			return VehicleInfo{}, err
		}
		c.store(ctx, reg, info)
		return info, nil
	})
	if err != nil {
		return VehicleInfo{}, err
	}
	return v.(VehicleInfo), nil
}

func (c *CachedLookup) cached(ctx context.Context, reg string) (VehicleInfo, bool) {
	if c.client == nil {
		return VehicleInfo{}, false
	}
	raw, err := c.client.Get(ctx, cachePrefix+reg).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "vehicle lookup cache read failed", slog.String("registration", reg), slog.Any("error", err))
		}
		return VehicleInfo{}, false
	}
	var info VehicleInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return VehicleInfo{}, false
	}
	return info, true
}

func (c *CachedLookup) store(ctx context.Context, reg string, info VehicleInfo) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cachePrefix+reg, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "vehicle lookup cache write failed", slog.String("registration", reg), slog.Any("error", err))
	}
}
