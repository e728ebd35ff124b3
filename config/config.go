// Package config loads the typed connection and sync-behavior profile the
// rest of the module runs with, the way artpromedia-email's and
// fenilsonani-email-server's services load their YAML-tagged config
// structs via gopkg.in/yaml.v3 rather than flags or env vars alone.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheLoadingMode controls whether a SyncEngine trusts a usable cached
// SyncState or always re-derives it from the server.
type CacheLoadingMode string

const (
	CacheLoadingCachedIsOK   CacheLoadingMode = "cached-is-ok"
	CacheLoadingForceReload  CacheLoadingMode = "force-reload"
)

// PartFetchingMode controls whether part bodies are requested with IMAP
// literal syntax or the BINARY extension (RFC 3516).
type PartFetchingMode string

const (
	PartFetchingIMAP   PartFetchingMode = "imap"
	PartFetchingBINARY PartFetchingMode = "binary"
)

// Server describes one IMAP endpoint to connect to.
type Server struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TLS       bool   `yaml:"tls"`
	Username  string `yaml:"username"`
	AuthMech  string `yaml:"auth_mechanism"`
}

// Sync holds the reconciliation- and fetch-batching-related knobs named in
// the configuration-options list: delayed-fetch batching, the NOOP/IDLE
// keepalive period, and the two mode switches.
type Sync struct {
	// DelayedFetchPart batches BODY.PEEK requests arriving within this
	// window into a single command instead of one round trip each.
	DelayedFetchPart time.Duration `yaml:"delayed_fetch_part"`
	// NoopPeriod is how often KeepMailboxOpen sends NOOP (or renews IDLE)
	// to detect a half-open connection.
	NoopPeriod time.Duration `yaml:"noop_period"`

	CacheLoadingMode CacheLoadingMode `yaml:"cache_loading_mode"`
	PartFetchingMode PartFetchingMode `yaml:"part_fetching_mode"`
}

// Cache selects and configures a cache.Cache backend.
type Cache struct {
	Backend string `yaml:"backend"` // "memory", "sqlite", "redis"
	Path    string `yaml:"path"`    // sqlite file path
	RedisURL string `yaml:"redis_url"`
}

// Config is the top-level, YAML-loadable configuration.
type Config struct {
	Server Server `yaml:"server"`
	Sync   Sync   `yaml:"sync"`
	Cache  Cache  `yaml:"cache"`
}

// Default returns the documented defaults: a 50ms fetch-batching window and
// cached-is-ok/IMAP-mode syncing, matching the configuration-options list.
func Default() Config {
	return Config{
		Sync: Sync{
			DelayedFetchPart: 50 * time.Millisecond,
			NoopPeriod:       29 * time.Minute,
			CacheLoadingMode: CacheLoadingCachedIsOK,
			PartFetchingMode: PartFetchingIMAP,
		},
		Cache: Cache{Backend: "memory"},
	}
}

// Load reads and parses a YAML config file, applying Default() for any
// field the file doesn't set.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the config is internally consistent enough to dial
// and sync with.
func (c Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("config: server.host is required")
	}
	if c.Server.Port == 0 {
		return fmt.Errorf("config: server.port is required")
	}
	switch c.Sync.CacheLoadingMode {
	case CacheLoadingCachedIsOK, CacheLoadingForceReload, "":
	default:
		return fmt.Errorf("config: unknown cache_loading_mode %q", c.Sync.CacheLoadingMode)
	}
	switch c.Sync.PartFetchingMode {
	case PartFetchingIMAP, PartFetchingBINARY, "":
	default:
		return fmt.Errorf("config: unknown part_fetching_mode %q", c.Sync.PartFetchingMode)
	}
	switch c.Cache.Backend {
	case "memory", "sqlite", "redis", "":
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}
	return nil
}
