// Package config provides configuration management for trackcache.
//
// Configuration is loaded from multiple sources with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (TRACKCACHE_* prefix)
//  3. Configuration file (trackcache.yaml)
//  4. Default values (lowest priority)
//
// Durations of the cache, priming, job and heal settings are whole seconds.
// The Redis timeouts accept Go duration strings ("5s").
//
// Example usage:
//
//	cfg, err := config.Load("/etc/trackcache/trackcache.yaml", config.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/piwi3910/trackcache/internal/cache"
	"github.com/piwi3910/trackcache/internal/content"
	"github.com/piwi3910/trackcache/internal/jobs"
	"github.com/piwi3910/trackcache/internal/priming"
	"github.com/piwi3910/trackcache/internal/provider/genius"
	"github.com/piwi3910/trackcache/internal/provider/spotify"
	"github.com/piwi3910/trackcache/internal/provider/translate"
	"github.com/piwi3910/trackcache/internal/provider/youtube"
	"github.com/piwi3910/trackcache/internal/storage/compression"
	"github.com/piwi3910/trackcache/internal/storage/redis"
)

// Storage backends.
const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds all configuration for trackcache
type Config struct {
	// HTTP listener
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// CORSAllowedOrigins lists browser origins allowed to call the API
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Redis     redis.Config    `mapstructure:"redis" yaml:"redis"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Priming   PrimingConfig   `mapstructure:"priming" yaml:"priming"`
	Jobs      JobsConfig      `mapstructure:"jobs" yaml:"jobs"`
	Heal      HealConfig      `mapstructure:"heal" yaml:"heal"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	// Backend is "redis", "badger" or "memory"
	Backend string `mapstructure:"backend" yaml:"backend"`

	// BadgerDir is the data directory of the embedded backend
	BadgerDir string `mapstructure:"badger_dir" yaml:"badger_dir"`

	// Compression of stored entries
	Compression compression.Config `mapstructure:"compression" yaml:"compression"`
}

// CacheConfig bounds the track cache
type CacheConfig struct {
	// MaxEntries bounds the number of non-favorite entries
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`

	// DefaultTTL is the expiry of non-favorite entries, in seconds
	DefaultTTL int `mapstructure:"default_ttl" yaml:"default_ttl"`

	// EvictionScanWindow is how many least-used keys eviction inspects
	EvictionScanWindow int `mapstructure:"eviction_scan_window" yaml:"eviction_scan_window"`
}

// PrimingConfig configures bulk priming jobs
type PrimingConfig struct {
	// JobTTL is the lifetime of a running job's progress counter, in seconds
	JobTTL int `mapstructure:"job_ttl" yaml:"job_ttl"`

	// JobRetentionSeconds keeps a finished job pollable for this long
	JobRetentionSeconds int `mapstructure:"job_retention_seconds" yaml:"job_retention_seconds"`

	// MaxUnits bounds the tracks accepted per job
	MaxUnits int `mapstructure:"max_units" yaml:"max_units"`
}

// JobsConfig sizes the background worker pool
type JobsConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// TaskTimeout bounds one task run, in seconds
	TaskTimeout int `mapstructure:"task_timeout" yaml:"task_timeout"`
}

// HealConfig tunes self-heal resubmission
type HealConfig struct {
	// Cooldown between resubmissions of the same field, in seconds. 0 disables.
	Cooldown int `mapstructure:"cooldown" yaml:"cooldown"`

	// StaleAfter is the age, in seconds, after which pending lyrics are retried
	StaleAfter int `mapstructure:"stale_after" yaml:"stale_after"`

	// GuardSize bounds the remembered (track, field) pairs
	GuardSize int `mapstructure:"guard_size" yaml:"guard_size"`
}

// ProvidersConfig configures the external lookup clients
type ProvidersConfig struct {
	// HTTPTimeout bounds one outbound request, in seconds
	HTTPTimeout int `mapstructure:"http_timeout" yaml:"http_timeout"`

	Spotify   spotify.Config   `mapstructure:"spotify" yaml:"spotify"`
	Genius    genius.Config    `mapstructure:"genius" yaml:"genius"`
	YouTube   youtube.Config   `mapstructure:"youtube" yaml:"youtube"`
	Translate translate.Config `mapstructure:"translate" yaml:"translate"`
}

// Options are command line overrides
type Options struct {
	ListenAddr     string
	LogLevel       string
	StorageBackend string
}

// Load loads configuration from file and applies command line options
func Load(configPath string, opts Options) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load from config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// Try to find config in standard locations
		v.SetConfigName("trackcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/trackcache")
		v.AddConfigPath("$HOME/.trackcache")

		// Ignore error if config file not found
		_ = v.ReadInConfig()
	}

	// Environment variables override
	v.SetEnvPrefix("TRACKCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Apply command line options
	if opts.ListenAddr != "" {
		v.Set("listen_addr", opts.ListenAddr)
	}
	if opts.LogLevel != "" {
		v.Set("log_level", opts.LogLevel)
	}
	if opts.StorageBackend != "" {
		v.Set("storage.backend", opts.StorageBackend)
	}

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_allowed_origins", []string{"*"})

	// Logging
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// Storage defaults
	v.SetDefault("storage.backend", BackendRedis)
	v.SetDefault("storage.badger_dir", "./data/badger")
	comp := compression.DefaultConfig()
	v.SetDefault("storage.compression.algorithm", string(comp.Algorithm))
	v.SetDefault("storage.compression.level", int(comp.Level))
	v.SetDefault("storage.compression.min_size", comp.MinSize)

	// Redis defaults
	rd := redis.DefaultConfig()
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "")
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.operation_timeout", rd.OperationTimeout)
	v.SetDefault("redis.max_update_retries", rd.MaxUpdateRetries)

	// Cache defaults
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.default_ttl", 10800) // 3h
	v.SetDefault("cache.eviction_scan_window", 10)

	// Priming defaults
	v.SetDefault("priming.job_ttl", 3600)
	v.SetDefault("priming.job_retention_seconds", 60)
	v.SetDefault("priming.max_units", 500)

	// Worker pool defaults
	v.SetDefault("jobs.workers", 8)
	v.SetDefault("jobs.queue_size", 1024)
	v.SetDefault("jobs.task_timeout", 60)

	// Self-heal defaults
	v.SetDefault("heal.cooldown", 30)
	v.SetDefault("heal.stale_after", 120)
	v.SetDefault("heal.guard_size", 4096)

	// Provider defaults
	v.SetDefault("providers.http_timeout", 10)
	sp := spotify.DefaultConfig()
	v.SetDefault("providers.spotify.client_id", "")
	v.SetDefault("providers.spotify.client_secret", "")
	v.SetDefault("providers.spotify.token_url", sp.TokenURL)
	v.SetDefault("providers.spotify.api_base", sp.APIBase)
	v.SetDefault("providers.genius.access_token", "")
	v.SetDefault("providers.genius.api_base", genius.DefaultConfig().APIBase)
	yt := youtube.DefaultConfig()
	v.SetDefault("providers.youtube.api_key", "")
	v.SetDefault("providers.youtube.api_base", yt.APIBase)
	v.SetDefault("providers.youtube.fallback_url", yt.FallbackURL)
	tr := translate.DefaultConfig()
	v.SetDefault("providers.translate.target_language", tr.TargetLanguage)
	v.SetDefault("providers.translate.api_base", tr.APIBase)
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case BackendBadger:
		if c.Storage.BadgerDir == "" {
			return fmt.Errorf("storage.badger_dir is required for the badger backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if _, err := compression.NewCompressor(c.Storage.Compression.Algorithm, c.Storage.Compression.Level); err != nil {
		return fmt.Errorf("invalid storage.compression: %w", err)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log_format %q: must be json or console", c.LogFormat)
	}

	positive := map[string]int{
		"cache.max_entries":             c.Cache.MaxEntries,
		"cache.default_ttl":             c.Cache.DefaultTTL,
		"cache.eviction_scan_window":    c.Cache.EvictionScanWindow,
		"priming.job_ttl":               c.Priming.JobTTL,
		"priming.job_retention_seconds": c.Priming.JobRetentionSeconds,
		"jobs.workers":                  c.Jobs.Workers,
		"jobs.queue_size":               c.Jobs.QueueSize,
		"jobs.task_timeout":             c.Jobs.TaskTimeout,
		"providers.http_timeout":        c.Providers.HTTPTimeout,
	}
	for key, val := range positive {
		if val <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, val)
		}
	}
	if c.Heal.Cooldown < 0 || c.Heal.StaleAfter < 0 || c.Priming.MaxUnits < 0 {
		return fmt.Errorf("heal.cooldown, heal.stale_after and priming.max_units cannot be negative")
	}

	if _, err := language.Parse(c.Providers.Translate.TargetLanguage); err != nil {
		return fmt.Errorf("invalid providers.translate.target_language: %w", err)
	}

	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// CacheSettings returns the coordinator configuration
func (c *Config) CacheSettings() cache.Config {
	return cache.Config{
		MaxEntries:         c.Cache.MaxEntries,
		DefaultTTL:         seconds(c.Cache.DefaultTTL),
		EvictionScanWindow: c.Cache.EvictionScanWindow,
	}
}

// PrimingSettings returns the tracker configuration
func (c *Config) PrimingSettings() priming.Config {
	return priming.Config{
		JobTTL:    seconds(c.Priming.JobTTL),
		Retention: seconds(c.Priming.JobRetentionSeconds),
		MaxUnits:  c.Priming.MaxUnits,
	}
}

// JobsSettings returns the dispatcher configuration
func (c *Config) JobsSettings() jobs.Config {
	return jobs.Config{
		Workers:     c.Jobs.Workers,
		QueueSize:   c.Jobs.QueueSize,
		TaskTimeout: seconds(c.Jobs.TaskTimeout),
	}
}

// ContentSettings returns the orchestrator configuration
func (c *Config) ContentSettings() content.Config {
	return content.Config{
		FallbackVideoURL: c.Providers.YouTube.FallbackURL,
		HealCooldown:     seconds(c.Heal.Cooldown),
		HealStaleAfter:   seconds(c.Heal.StaleAfter),
		GuardSize:        c.Heal.GuardSize,
	}
}

// HTTPTimeout returns the outbound request timeout
func (c *Config) HTTPTimeout() time.Duration {
	return seconds(c.Providers.HTTPTimeout)
}
