package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("testdata/example-config.yaml")
	require.NoError(t, err)

	require.Len(t, config.SQLServers, 2)
	primary := config.SQLServers["primary"]
	assert.Equal(t, "sql-prod-01", primary.Server)
	assert.Equal(t, 1433, primary.Port)
	assert.Equal(t, []string{"LegacyArchive"}, primary.SkipDatabases)

	// Port defaults are applied per server.
	reporting := config.SQLServers["reporting"]
	assert.Equal(t, 1433, reporting.Port)

	assert.Equal(t, "warehouse.internal", config.PostgreSQL.Host)
	assert.Equal(t, 5*time.Second, config.Sync.DialTimeout, "dial timeout defaults when unset")
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SQLServers: map[string]ServerConfig{
				"primary": {Server: "sqlprod01", Username: "sa"},
			},
			PostgreSQL: PostgresConfig{Host: "localhost", Database: "warehouse"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no servers", func(c *Config) { c.SQLServers = nil }, "at least one entry"},
		{"missing server host", func(c *Config) {
			c.SQLServers["primary"] = ServerConfig{Username: "sa"}
		}, "server is required"},
		{"missing username", func(c *Config) {
			c.SQLServers["primary"] = ServerConfig{Server: "sqlprod01"}
		}, "username is required"},
		{"missing postgres host", func(c *Config) { c.PostgreSQL.Host = "" }, "postgresql.host is required"},
		{"missing postgres database", func(c *Config) { c.PostgreSQL.Database = "" }, "postgresql.database is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	config := &Config{
		SQLServers: map[string]ServerConfig{
			"primary": {Server: "sqlprod01", Username: "sa"},
		},
		PostgreSQL: PostgresConfig{Host: "localhost", Database: "warehouse"},
	}
	require.NoError(t, config.Validate())

	assert.Equal(t, 1433, config.SQLServers["primary"].Port)
	assert.Equal(t, 5432, config.PostgreSQL.Port)
	assert.Equal(t, 5*time.Second, config.Sync.DialTimeout)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
}

func TestPostgresConfigDSN(t *testing.T) {
	p := PostgresConfig{
		Host:     "warehouse.internal",
		Port:     5432,
		Username: "ferry",
		Password: "secret",
		Database: "warehouse",
	}
	assert.Equal(t,
		"host=warehouse.internal port=5432 user=ferry password=secret dbname=warehouse sslmode=disable",
		p.DSN())

	p.SSLMode = "require"
	assert.Contains(t, p.DSN(), "sslmode=require")
}
