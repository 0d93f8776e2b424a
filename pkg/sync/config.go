package sync

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete sync configuration.
type Config struct {
	Version    string                  `yaml:"version"`
	SQLServers map[string]ServerConfig `yaml:"sqlservers"`
	PostgreSQL PostgresConfig          `yaml:"postgresql"`
	Sync       SyncConfig              `yaml:"sync"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// ServerConfig defines one SQL Server source instance.
type ServerConfig struct {
	Server        string   `yaml:"server"`
	Port          int      `yaml:"port"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	SkipDatabases []string `yaml:"skip_databases,omitempty"`
}

// PostgresConfig defines the warehouse destination.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode,omitempty"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.Username, p.Password, p.Database, sslMode)
}

// SyncConfig tunes sync behavior.
type SyncConfig struct {
	// DialTimeout guards source connection attempts.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NewLogger builds a slog logger honoring the configured level and
// format.
func (l LoggingConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if len(c.SQLServers) == 0 {
		return fmt.Errorf("at least one entry under sqlservers is required")
	}
	for name, server := range c.SQLServers {
		if server.Server == "" {
			return fmt.Errorf("sqlservers.%s.server is required", name)
		}
		if server.Username == "" {
			return fmt.Errorf("sqlservers.%s.username is required", name)
		}
		if server.Port == 0 {
			server.Port = 1433
			c.SQLServers[name] = server
		}
	}

	if c.PostgreSQL.Host == "" {
		return fmt.Errorf("postgresql.host is required")
	}
	if c.PostgreSQL.Database == "" {
		return fmt.Errorf("postgresql.database is required")
	}
	if c.PostgreSQL.Port == 0 {
		c.PostgreSQL.Port = 5432
	}

	if c.Sync.DialTimeout == 0 {
		c.Sync.DialTimeout = 5 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}
