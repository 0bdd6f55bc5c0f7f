// Package rediscache shares coordinate-to-name lookups between service
// instances through Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

const keyPrefix = "geo-cascade:name:"

// Client is the subset of redis.UniversalClient the resolver uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Resolver wraps a NameResolver with a Redis read-through cache. Redis
// failures degrade to calling the inner resolver.
type Resolver struct {
	inner   domain.NameResolver
	rdb     Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver creates a Redis cache decorator. Entries expire after ttl.
func NewResolver(inner domain.NameResolver, rdb Client, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		inner:   inner,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Open connects to addr and verifies the connection.
func Open(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Key returns the cache key for coords. Coordinates are rounded to six
// decimals, matching the in-memory cache.
func Key(coords domain.Coordinates) string {
	return fmt.Sprintf("%s%.6f,%.6f", keyPrefix, coords.Lon, coords.Lat)
}

func (r *Resolver) ResolveName(ctx context.Context, coords domain.Coordinates) (string, error) {
	key := Key(coords)

	name, err := r.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		r.metrics.NameCache.WithLabelValues("redis", "hit").Inc()
		return name, nil
	case errors.Is(err, redis.Nil):
		r.metrics.NameCache.WithLabelValues("redis", "miss").Inc()
	default:
		r.metrics.NameCache.WithLabelValues("redis", "miss").Inc()
		r.logger.Warn("redis name cache read failed", "key", key, "error", err)
	}

	name, err = r.inner.ResolveName(ctx, coords)
	if err != nil || name == "" {
		return name, err
	}
	if err := r.rdb.Set(ctx, key, name, r.ttl).Err(); err != nil {
		r.logger.Warn("redis name cache write failed", "key", key, "error", err)
	}
	return name, nil
}
