package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PMDASH_POLL_INTERVAL", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PMDASH_POLL_INTERVAL", "500ms")
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.PollInterval)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080"},
			Database: DatabaseConfig{Driver: "postgres", Host: "localhost"},
			Auth:     AuthConfig{JWTSecret: "secret"},
			Storage:  StorageConfig{Driver: "local", LocalDir: "uploads"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		cfg := base()
		cfg.Auth.JWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Driver = "s3"
		assert.Error(t, cfg.Validate())
	})

	t.Run("memory database needs no host", func(t *testing.T) {
		cfg := base()
		cfg.Database = DatabaseConfig{Driver: "memory"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown database driver", func(t *testing.T) {
		cfg := base()
		cfg.Database.Driver = "mysql"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Driver = "ftp"
		assert.Error(t, cfg.Validate())
	})
}
