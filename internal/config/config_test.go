package config

import (
	"encoding/base64"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/confcore")
	t.Setenv("TOKEN_PEPPER", "01234567890123456789012345678901")
	t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default migrations dir",
			check:  func(c *Config) bool { return c.MigrationsDir == "migrations" },
			expect: "migrations",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default encryption key id",
			check:  func(c *Config) bool { return c.EncryptionKeyID == "active" },
			expect: "active",
		},
		{
			name:   "default sweep interval",
			check:  func(c *Config) bool { return c.SweepIntervalSeconds == 300 },
			expect: "300",
		},
		{
			name:   "default max tree depth",
			check:  func(c *Config) bool { return c.MaxTreeDepth == 32 },
			expect: "32",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestLoadRejectsShortTokenPepper(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_PEPPER", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short TOKEN_PEPPER, got nil")
	}
}

func TestLoadRejectsMalformedEncryptionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENCRYPTION_KEY", "not-base64!!")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed ENCRYPTION_KEY, got nil")
	}
}

func TestLoadRejectsWrongLengthEncryptionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for wrong-length ENCRYPTION_KEY, got nil")
	}
}

func TestRetiredKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENCRYPTION_KEYS_RETIRED", "k1=aGVsbG8=,k2=d29ybGQ=")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	retired, err := cfg.RetiredKeys()
	if err != nil {
		t.Fatalf("RetiredKeys() error: %v", err)
	}
	if retired["k1"] != "aGVsbG8=" || retired["k2"] != "d29ybGQ=" {
		t.Errorf("unexpected retired keys: %+v", retired)
	}
}

func TestRetiredKeysRejectsMalformedEntry(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENCRYPTION_KEYS_RETIRED", "not-a-pair")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if _, err := cfg.RetiredKeys(); err == nil {
		t.Fatal("expected error for malformed retired key entry, got nil")
	}
}
