package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:        "development",
		Port:       "8080",
		JWTSecret:  "secure-secret-at-least-32-chars-long",
		DBDriver:   "postgres",
		DBPassword: "secure-password",
		DBSSLMode:  "require",
		ChangeFeed: ChangeFeedRedis,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateChangeFeed(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"redis", func(c *Config) { c.ChangeFeed = ChangeFeedRedis }, false},
		{"local in development", func(c *Config) { c.ChangeFeed = ChangeFeedLocal }, false},
		{"postgres on postgres", func(c *Config) { c.ChangeFeed = ChangeFeedPostgres }, false},
		{"postgres on sqlite", func(c *Config) {
			c.ChangeFeed = ChangeFeedPostgres
			c.DBDriver = "sqlite"
		}, true},
		{"unknown", func(c *Config) { c.ChangeFeed = "kafka" }, true},
		{"local in production", func(c *Config) {
			c.Env = "production"
			c.ChangeFeed = ChangeFeedLocal
		}, true},
		{"sqlite in production", func(c *Config) {
			c.Env = "production"
			c.DBDriver = "sqlite"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateProductionSecret(t *testing.T) {
	c := validConfig()
	c.Env = "production"
	c.JWTSecret = defaultJWTSecret
	assert.Error(t, c.Validate())

	c.JWTSecret = "short"
	assert.Error(t, c.Validate())
}

func TestConfig_ShouldAutoMigrate(t *testing.T) {
	c := validConfig()
	assert.True(t, c.ShouldAutoMigrate())

	c.Env = "production"
	assert.False(t, c.ShouldAutoMigrate())

	c.DBAutoMigrate = true
	assert.True(t, c.ShouldAutoMigrate())
}

func TestLoadConfig_EnvOverridesAndNormalization(t *testing.T) {
	defer viper.Reset()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("CHANGE_FEED", "local")
	t.Setenv("CONNECTIONS_CACHE_TTL_SECONDS", "15")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, ChangeFeedLocal, c.ChangeFeed)
	assert.Equal(t, 15, c.ConnectionsCacheTTLSeconds)
	assert.Equal(t, 25, c.DBMaxOpenConns)
}

func TestLoadConfig_MissingProductionProfile(t *testing.T) {
	defer viper.Reset()
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")

	_, err := LoadConfig()
	assert.Error(t, err)
}
