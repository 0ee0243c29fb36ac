package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSQLiteDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "test.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4242", cfg.HTTPPort)
	assert.Equal(t, 20*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, 8*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 168*time.Hour, cfg.SourceCacheTTL)
	assert.Equal(t, 50, cfg.ConsensusBaseline)
	assert.Equal(t, 15, cfg.ConsensusRetractionCeiling)
	assert.Equal(t, 6, cfg.IEEEMaxAuthors)
	assert.False(t, cfg.S3Enabled())
}

func TestLoadPostgresRequiresHost(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid sqlite", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"zero verify timeout", func(c *Config) { c.VerifyTimeout = 0 }, true},
		{"zero ieee authors", func(c *Config) { c.IEEEMaxAuthors = 0 }, true},
		{"postgres complete", func(c *Config) {
			c.DBDriver, c.DBHost, c.DBUser, c.DBName = "postgres", "localhost", "ref", "ref"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				DBDriver:       "sqlite",
				DBSQLitePath:   "x.db",
				VerifyTimeout:  time.Second,
				SourceTimeout:  time.Second,
				IEEEMaxAuthors: 6,
			}
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSourceNames(t *testing.T) {
	c := &Config{EnabledSources: " doi_exists, ,retraction,"}
	assert.Equal(t, []string{"doi_exists", "retraction"}, c.SourceNames())
}

func TestDSN(t *testing.T) {
	c := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "refs", DBPort: 5433}
	assert.Equal(t, "host=db user=u password=p dbname=refs port=5433 sslmode=disable", c.DSN())
}
