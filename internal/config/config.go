// Package config loads confcore's runtime configuration from the
// environment. The crypto and identity secrets are validated at load time
// so a bad deploy fails at startup rather than on the first request.
package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	Host string `env:"CONFCORE_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"CONFCORE_PORT" envDefault:"8080"`

	DatabaseURL   string `env:"DATABASE_URL,required"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// TokenPepper is mixed into every team/admin token's HMAC hash. At
	// least 32 bytes so the pepper itself isn't the weak link.
	TokenPepper string `env:"TOKEN_PEPPER,required"`

	// AdminOverrideToken, if set, is accepted as a global admin bearer
	// ahead of every other resolution step (step 1 of the identity
	// resolver's precedence order). Intended for break-glass and local
	// development, not routine use.
	AdminOverrideToken string `env:"ADMIN_TOKEN"`

	// EncryptionKeyID/EncryptionKey name and hold the active AEAD key, a
	// base64-encoded 32-byte secret. EncryptionKeysRetired holds
	// decrypt-only keys as "id=base64key" pairs, kept around until every
	// envelope written under them has been re-keyed.
	EncryptionKeyID       string   `env:"ENCRYPTION_KEY_ID" envDefault:"active"`
	EncryptionKey         string   `env:"ENCRYPTION_KEY,required"`
	EncryptionKeysRetired []string `env:"ENCRYPTION_KEYS_RETIRED" envSeparator:","`

	// SensitiveKeys overrides the default sensitive-key heuristic used to
	// decide which config leaves get encrypted at rest.
	SensitiveKeys []string `env:"SENSITIVE_KEYS" envSeparator:","`

	// SweepIntervalSeconds controls how often the background worker scans
	// for expired/inactive tokens to revoke.
	SweepIntervalSeconds int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`

	// MaxTreeDepth bounds org -> unit -> team lineage depth.
	MaxTreeDepth int `env:"MAX_TREE_DEPTH" envDefault:"32"`

	// TouchFlushIntervalSeconds controls how often coalesced token
	// last_used_at writes are flushed to storage.
	TouchFlushIntervalSeconds int `env:"TOUCH_FLUSH_INTERVAL_SECONDS" envDefault:"30"`
}

// Load reads and validates configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}

	if len(cfg.TokenPepper) < 32 {
		return nil, fmt.Errorf("TOKEN_PEPPER must be at least 32 bytes, got %d", len(cfg.TokenPepper))
	}

	raw, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be base64-encoded: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(raw))
	}

	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RetiredKeys parses EncryptionKeysRetired's "id=base64key" pairs into a map
// suitable for crypto.NewManager.
func (c *Config) RetiredKeys() (map[string]string, error) {
	out := make(map[string]string, len(c.EncryptionKeysRetired))
	for _, pair := range c.EncryptionKeysRetired {
		if pair == "" {
			continue
		}
		idx := -1
		for i := 0; i < len(pair); i++ {
			if pair[i] == '=' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("ENCRYPTION_KEYS_RETIRED entry %q must be of the form id=base64key", pair)
		}
		out[pair[:idx]] = pair[idx+1:]
	}
	return out, nil
}
