package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/storage/compression"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"), Options{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, compression.AlgorithmZstd, cfg.Storage.Compression.Algorithm)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)

	cc := cfg.CacheSettings()
	assert.Equal(t, 100, cc.MaxEntries)
	assert.Equal(t, 3*time.Hour, cc.DefaultTTL)
	assert.Equal(t, 10, cc.EvictionScanWindow)

	pc := cfg.PrimingSettings()
	assert.Equal(t, time.Hour, pc.JobTTL)
	assert.Equal(t, time.Minute, pc.Retention)
	assert.Equal(t, 500, pc.MaxUnits)

	jc := cfg.JobsSettings()
	assert.Equal(t, 8, jc.Workers)
	assert.Equal(t, 60*time.Second, jc.TaskTimeout)

	hc := cfg.ContentSettings()
	assert.Equal(t, 30*time.Second, hc.HealCooldown)
	assert.Equal(t, 2*time.Minute, hc.HealStaleAfter)
	assert.Equal(t, "https://www.youtube.com/embed/dQw4w9WgXcQ", hc.FallbackVideoURL)

	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, "en", cfg.Providers.Translate.TargetLanguage)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
storage:
  backend: badger
  badger_dir: /tmp/trackcache
  compression:
    algorithm: lz4
redis:
  read_timeout: 750ms
cache:
  max_entries: 250
  default_ttl: 60
priming:
  job_retention_seconds: 5
providers:
  translate:
    target_language: fr
`)

	cfg, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/trackcache", cfg.Storage.BadgerDir)
	assert.Equal(t, compression.AlgorithmLZ4, cfg.Storage.Compression.Algorithm)
	assert.Equal(t, 750*time.Millisecond, cfg.Redis.ReadTimeout)
	assert.Equal(t, 250, cfg.CacheSettings().MaxEntries)
	assert.Equal(t, time.Minute, cfg.CacheSettings().DefaultTTL)
	assert.Equal(t, 5*time.Second, cfg.PrimingSettings().Retention)
	assert.Equal(t, "fr", cfg.Providers.Translate.TargetLanguage)
}

func TestLoadOptionsOverrideFile(t *testing.T) {
	path := writeConfig(t, "listen_addr: \":9090\"\nlog_level: warn\n")

	cfg, err := Load(path, Options{
		ListenAddr:     ":7070",
		LogLevel:       "debug",
		StorageBackend: BackendMemory,
	})
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("TRACKCACHE_CACHE_MAX_ENTRIES", "42")
	t.Setenv("TRACKCACHE_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(writeConfig(t, "{}\n"), Options{})
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Cache.MaxEntries)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown backend",
			body:    "storage:\n  backend: etcd\n",
			wantErr: "unknown storage backend",
		},
		{
			name:    "badger without dir",
			body:    "storage:\n  backend: badger\n  badger_dir: \"\"\n",
			wantErr: "storage.badger_dir is required",
		},
		{
			name:    "unknown compression",
			body:    "storage:\n  compression:\n    algorithm: brotli\n",
			wantErr: "invalid storage.compression",
		},
		{
			name:    "bad log level",
			body:    "log_level: loud\n",
			wantErr: "invalid log_level",
		},
		{
			name:    "bad log format",
			body:    "log_format: xml\n",
			wantErr: "invalid log_format",
		},
		{
			name:    "zero max entries",
			body:    "cache:\n  max_entries: 0\n",
			wantErr: "cache.max_entries must be positive",
		},
		{
			name:    "zero workers",
			body:    "jobs:\n  workers: 0\n",
			wantErr: "jobs.workers must be positive",
		},
		{
			name:    "negative cooldown",
			body:    "heal:\n  cooldown: -1\n",
			wantErr: "cannot be negative",
		},
		{
			name:    "bad target language",
			body:    "providers:\n  translate:\n    target_language: \"not a tag!\"\n",
			wantErr: "invalid providers.translate.target_language",
		},
		{
			name: "memory backend needs nothing else",
			body: "storage:\n  backend: memory\nredis:\n  addr: \"\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), Options{})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
