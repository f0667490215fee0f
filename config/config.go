// Package config loads runtime settings for the refresh cache from flags,
// environment variables and an optional YAML file, all through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. REFRESH_CACHE_CACHE_DEFAULT_TTL.
const EnvPrefix = "REFRESH_CACHE"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Config holds application configuration
type Config struct {
	Cache   CacheConfig
	Pages   PagesConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type CacheConfig struct {
	DefaultTTL time.Duration
	Shards     int
	Namespace  string
	Dedupe     bool
}

// PagesConfig controls the two page loaders.
type PagesConfig struct {
	CachedTTL time.Duration
	SimpleTTL time.Duration
	// SimulateLatency adds the artificial data-source delay before each regeneration.
	SimulateLatency bool
}

type LogConfig struct {
	Level  string
	Format string // "console" or "json"
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("cache.default_ttl", "30s")
	v.SetDefault("cache.shards", 4)
	v.SetDefault("cache.namespace", "")
	v.SetDefault("cache.dedupe", true)

	v.SetDefault("pages.cached_ttl", "30s")
	v.SetDefault("pages.simple_ttl", "10s")
	v.SetDefault("pages.simulate_latency", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "refresh_cache")
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Cache: CacheConfig{
			DefaultTTL: v.GetDuration("cache.default_ttl"),
			Shards:     v.GetInt("cache.shards"),
			Namespace:  v.GetString("cache.namespace"),
			Dedupe:     v.GetBool("cache.dedupe"),
		},
		Pages: PagesConfig{
			CachedTTL:       v.GetDuration("pages.cached_ttl"),
			SimpleTTL:       v.GetDuration("pages.simple_ttl"),
			SimulateLatency: v.GetBool("pages.simulate_latency"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("metrics.enabled"),
			Namespace: v.GetString("metrics.namespace"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on settings that would make the cache report nonsense.
func (c Config) Validate() error {
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("%w: cache.default_ttl must be positive, got %s", ErrInvalid, c.Cache.DefaultTTL)
	}
	if c.Cache.Shards <= 0 {
		return fmt.Errorf("%w: cache.shards must be positive, got %d", ErrInvalid, c.Cache.Shards)
	}
	if c.Pages.CachedTTL <= 0 {
		return fmt.Errorf("%w: pages.cached_ttl must be positive, got %s", ErrInvalid, c.Pages.CachedTTL)
	}
	if c.Pages.SimpleTTL <= 0 {
		return fmt.Errorf("%w: pages.simple_ttl must be positive, got %s", ErrInvalid, c.Pages.SimpleTTL)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q (want console or json)", ErrInvalid, c.Log.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("%w: metrics.namespace is required when metrics are enabled", ErrInvalid)
	}
	return nil
}
