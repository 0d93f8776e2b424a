// Package source reads databases, table metadata and rows from a SQL
// Server instance. Connections are opened per database and closed as soon
// as the caller is done with them; nothing is pooled across tables.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
)

// Config holds the connection settings for one SQL Server instance.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	// DialTimeout guards the initial TCP connect.
	DialTimeout time.Duration
}

// systemDatabases are never offered for sync.
var systemDatabases = []string{
	"master", "tempdb", "model", "msdb",
	"distribution", "ReportServer", "ReportServerTempDB",
}

// Client discovers databases on a SQL Server and opens per-database
// connections for reading.
type Client struct {
	config Config
}

// NewClient returns a client for the given server config.
func NewClient(config Config) *Client {
	if config.Port == 0 {
		config.Port = 1433
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	return &Client{config: config}
}

// dsn builds a sqlserver:// connection URL. Encryption is disabled and the
// server certificate trusted, matching how the upstream instances are
// deployed.
func (c *Client) dsn(database string) string {
	query := url.Values{}
	query.Add("encrypt", "disable")
	query.Add("TrustServerCertificate", "true")
	query.Add("dial timeout", strconv.Itoa(int(c.config.DialTimeout/time.Second)))
	if database != "" {
		query.Add("database", database)
	}

	connURL := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.config.Username, c.config.Password),
		Host:     net.JoinHostPort(c.config.Server, strconv.Itoa(c.config.Port)),
		RawQuery: query.Encode(),
	}
	return connURL.String()
}

// Connect opens a connection scoped to one database. An empty database
// connects to the server default (master).
func (c *Client) Connect(ctx context.Context, database string) (*Conn, error) {
	db, err := sql.Open("sqlserver", c.dsn(database))
	if err != nil {
		return nil, fmt.Errorf("opening connection to %s: %w", c.config.Server, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s/%s: %w", c.config.Server, database, err)
	}
	return &Conn{db: db, server: c.config.Server, database: database}, nil
}

// ListDatabases returns all online user databases on the server, excluding
// the system databases.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	conn, err := c.Connect(ctx, "")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	placeholders := make([]string, len(systemDatabases))
	args := make([]any, len(systemDatabases))
	for i, name := range systemDatabases {
		placeholders[i] = fmt.Sprintf("@p%d", i+1)
		args[i] = name
	}
	query := fmt.Sprintf(`
		SELECT name FROM sys.databases
		WHERE state = 0 AND name NOT IN (%s)
		ORDER BY name`, strings.Join(placeholders, ", "))

	rows, err := conn.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing databases on %s: %w", c.config.Server, err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		databases = append(databases, name)
	}
	return databases, rows.Err()
}

// DatabaseStatus is the result of a per-database health probe.
type DatabaseStatus struct {
	Database string
	Up       bool
	Error    string
}

// CheckDatabases probes every non-skipped user database with a trivial
// query and reports up/down per database.
func (c *Client) CheckDatabases(ctx context.Context, skip []string) ([]DatabaseStatus, error) {
	databases, err := c.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	var statuses []DatabaseStatus
	for _, name := range databases {
		if contains(skip, name) {
			continue
		}
		status := DatabaseStatus{Database: name, Up: true}
		conn, err := c.Connect(ctx, name)
		if err != nil {
			status.Up = false
			status.Error = err.Error()
			statuses = append(statuses, status)
			continue
		}
		var one int
		if err := conn.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			status.Up = false
			status.Error = err.Error()
		}
		conn.Close()
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
