package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
[server]
port = 8088
mode = "release"

[chat]
edit_window = "12h"
presence_window = "2m"
audit_sink = "none"

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 8088, cfg.Server.Port)
		assert.Equal(t, "release", cfg.Server.Mode)
		assert.Equal(t, 12*time.Hour, cfg.Chat.EditWindow)
		assert.Equal(t, 2*time.Minute, cfg.Chat.PresenceWindow)
		assert.Equal(t, "none", cfg.Chat.AuditSink)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

		// untouched sections keep their defaults
		assert.Equal(t, 10*time.Second, cfg.Chat.TypingTTL)
		assert.Equal(t, "5432", cfg.Postgres.Port)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "[postgres]\nhost = \"db.internal\"\n")
		t.Setenv("CHAT_POSTGRES_HOST", "db.from.env")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "db.from.env", cfg.Postgres.Host)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})

	t.Run("invalid audit sink is rejected", func(t *testing.T) {
		path := writeConfig(t, "[chat]\naudit_sink = \"s3\"\n")
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "unknown audit sink")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"empty secret", func(c *Config) { c.JWT.Secret = "" }, true},
		{"no workers", func(c *Config) { c.WorkerPool.Size = 0 }, true},
		{"zero edit window", func(c *Config) { c.Chat.EditWindow = 0 }, true},
		{"zero typing ttl", func(c *Config) { c.Chat.TypingTTL = 0 }, true},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := Default()
	assert.Equal(t,
		"host=127.0.0.1 port=5432 user=postgres password=postgres dbname=chat sslmode=disable",
		cfg.PostgresDSN(),
	)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr())
}
