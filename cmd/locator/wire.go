package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/geo-cascade-service/internal/adapter/mapbox"
	"github.com/couchcryptid/geo-cascade-service/internal/adapter/opendatasoft"
	"github.com/couchcryptid/geo-cascade-service/internal/adapter/openweather"
	"github.com/couchcryptid/geo-cascade-service/internal/adapter/rediscache"
	"github.com/couchcryptid/geo-cascade-service/internal/cascade"
	"github.com/couchcryptid/geo-cascade-service/internal/config"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

// buildDataService assembles the hierarchy client and the name lookup chain
// (memory LRU, then Redis when configured, then the provider API). The
// returned cleanup releases the Redis connection.
func buildDataService(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*domain.DataService, func(), error) {
	cleanup := func() {}
	hierarchy := opendatasoft.NewClient(cfg.DataURL, cfg.DataTimeout, logger)

	var names domain.NameResolver
	switch cfg.NameProvider {
	case config.NameProviderOpenWeather:
		names = openweather.NewClient(cfg.OpenWeatherURL, cfg.OpenWeatherKey, cfg.DataTimeout, logger, metrics)
	case config.NameProviderMapbox:
		names = mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
	default:
		logger.Info("name lookup disabled, markers will not resolve")
		return domain.NewDataService(hierarchy, nil, hierarchy), cleanup, nil
	}

	if cfg.RedisAddr != "" {
		rdb, err := rediscache.Open(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, cleanup, fmt.Errorf("name cache: %w", err)
		}
		cleanup = func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis close error", "error", err)
			}
		}
		names = rediscache.NewResolver(names, rdb, cfg.RedisTTL, logger, metrics)
		logger.Info("redis name cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
	}
	names = mapbox.NewCachedResolver(names, cfg.NameCacheSize, metrics)

	logger.Info("name lookup enabled", "provider", cfg.NameProvider, "cache_size", cfg.NameCacheSize)
	return domain.NewDataService(hierarchy, names, hierarchy), cleanup, nil
}

func cascadeOptions(cfg *config.Config) cascade.Options {
	return cascade.Options{
		FlyToZoom:       cfg.FlyToZoom,
		MarkerColor:     cfg.MarkerColor,
		WeatherLinkBase: cfg.WeatherLinkBase,
		RefreshResolved: cfg.RefreshResolved,
	}
}
