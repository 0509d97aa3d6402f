package database_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/database"
)

func TestConnectionString(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.Password = "p@ss word"

	dsn := cfg.ConnectionString()

	parsed, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	assert.Equal(t, "localhost", parsed.ConnConfig.Host)
	assert.Equal(t, uint16(5432), parsed.ConnConfig.Port)
	assert.Equal(t, "utm", parsed.ConnConfig.Database)
	assert.Equal(t, "p@ss word", parsed.ConnConfig.Password)
	assert.Equal(t, 5*time.Second, parsed.ConnConfig.ConnectTimeout)
}

func TestRedacted(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.Password = "secret"

	assert.NotContains(t, cfg.Redacted(), "secret")
	assert.True(t, strings.HasPrefix(cfg.Redacted(), "postgres://utm:"))
	assert.Equal(t, "secret", cfg.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*database.Config)
		ok     bool
	}{
		{"defaults", func(*database.Config) {}, true},
		{"missing host", func(c *database.Config) { c.Host = "" }, false},
		{"bad port", func(c *database.Config) { c.Port = 0 }, false},
		{"missing name", func(c *database.Config) { c.Database = "" }, false},
		{"no connections", func(c *database.Config) { c.MaxOpenConns = 0 }, false},
		{"idle above open", func(c *database.Config) { c.MaxIdleConns = 20 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := database.DefaultConfig()
			tt.mutate(&cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.Host = ""
	_, err := database.Connect(context.Background(), cfg)
	assert.Error(t, err)
}
