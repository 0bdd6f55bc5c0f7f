package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Name providers accepted by NAME_PROVIDER.
const (
	NameProviderAuto        = "auto"
	NameProviderOpenWeather = "openweather"
	NameProviderMapbox      = "mapbox"
	NameProviderNone        = "none"
)

const defaultDataURL = "https://public.opendatasoft.com/api/explore/v2.1/catalog/datasets/georef-spain-municipio/records"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Hierarchy data service.
	DataURL     string
	DataTimeout time.Duration

	// Coordinate-to-name resolution. NameProvider is resolved from "auto"
	// to a concrete provider during Load.
	NameProvider   string
	OpenWeatherKey string
	OpenWeatherURL string
	MapboxToken    string
	MapboxTimeout  time.Duration
	NameCacheSize  int

	// Optional shared name cache.
	RedisAddr string
	RedisDB   int
	RedisTTL  time.Duration

	// MapSync over Kafka, disabled when no brokers are configured.
	KafkaBrokers  []string
	KafkaMapTopic string

	// Cascade behaviour.
	FlyToZoom       int
	MarkerColor     string
	WeatherLinkBase string
	RefreshResolved bool

	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	dataTimeout, err := parsePositiveDuration("DATA_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	redisTTL, err := parsePositiveDuration("REDIS_TTL", "1h")
	if err != nil {
		return nil, err
	}
	idleTTL, err := parsePositiveDuration("SESSION_IDLE_TTL", "30m")
	if err != nil {
		return nil, err
	}
	sweepInterval, err := parsePositiveDuration("SESSION_SWEEP_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}

	zoom, err := parseInt("FLY_TO_ZOOM", 14)
	if err != nil {
		return nil, err
	}
	if zoom < 0 || zoom > 22 {
		return nil, errors.New("FLY_TO_ZOOM must be between 0 and 22")
	}
	redisDB, err := parseInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	refreshResolved := true
	if v := os.Getenv("REFRESH_RESOLVED"); v != "" {
		refreshResolved = v == "true"
	}

	var brokers []string
	if v := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataURL:     sharedcfg.EnvOrDefault("DATA_URL", defaultDataURL),
		DataTimeout: dataTimeout,

		NameProvider:   strings.ToLower(sharedcfg.EnvOrDefault("NAME_PROVIDER", NameProviderAuto)),
		OpenWeatherKey: os.Getenv("OPENWEATHER_KEY"),
		OpenWeatherURL: sharedcfg.EnvOrDefault("OPENWEATHER_URL", "https://api.openweathermap.org"),
		MapboxToken:    os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:  mapboxTimeout,
		NameCacheSize:  parseNameCacheSize(),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   redisDB,
		RedisTTL:  redisTTL,

		KafkaBrokers:  brokers,
		KafkaMapTopic: sharedcfg.EnvOrDefault("KAFKA_MAP_TOPIC", "map-commands"),

		FlyToZoom:       zoom,
		MarkerColor:     sharedcfg.EnvOrDefault("MARKER_COLOR", "red"),
		WeatherLinkBase: sharedcfg.EnvOrDefault("WEATHER_LINK_BASE", "/portfolio/projects/weather"),
		RefreshResolved: refreshResolved,

		SessionIdleTTL:       idleTTL,
		SessionSweepInterval: sweepInterval,
	}

	if cfg.NameProvider == NameProviderAuto {
		cfg.NameProvider = autoNameProvider(cfg)
	}
	switch cfg.NameProvider {
	case NameProviderOpenWeather:
		if cfg.OpenWeatherKey == "" {
			return nil, errors.New("NAME_PROVIDER is openweather but OPENWEATHER_KEY is not set")
		}
	case NameProviderMapbox:
		if cfg.MapboxToken == "" {
			return nil, errors.New("NAME_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	case NameProviderNone:
	default:
		return nil, fmt.Errorf("invalid NAME_PROVIDER %q", cfg.NameProvider)
	}
	if cfg.DataURL == "" {
		return nil, errors.New("DATA_URL is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaMapTopic == "" {
		return nil, errors.New("KAFKA_MAP_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether map commands are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// autoNameProvider prefers the weather API, which is what the weather link
// addresses, and falls back to Mapbox reverse geocoding.
func autoNameProvider(cfg *Config) string {
	switch {
	case cfg.OpenWeatherKey != "":
		return NameProviderOpenWeather
	case cfg.MapboxToken != "":
		return NameProviderMapbox
	default:
		return NameProviderNone
	}
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseNameCacheSize() int {
	if s := os.Getenv("NAME_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
