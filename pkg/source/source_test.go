package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientDSN(t *testing.T) {
	client := NewClient(Config{
		Server:      "sql-prod-01",
		Port:        1433,
		Username:    "sync_user",
		Password:    "s3cret",
		DialTimeout: 10 * time.Second,
	})

	dsn := client.dsn("sales")
	assert.True(t, strings.HasPrefix(dsn, "sqlserver://"), dsn)
	assert.Contains(t, dsn, "sync_user:s3cret@sql-prod-01:1433")
	assert.Contains(t, dsn, "database=sales")
	assert.Contains(t, dsn, "encrypt=disable")
	assert.Contains(t, dsn, "TrustServerCertificate=true")
	assert.Contains(t, dsn, "dial+timeout=10")
}

func TestClientDSNNoDatabase(t *testing.T) {
	client := NewClient(Config{Server: "sqlprod01", Username: "sa", Password: "pw"})
	assert.NotContains(t, client.dsn(""), "database=")
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{Server: "sqlprod01", Username: "sa"})
	assert.Equal(t, 1433, client.config.Port)
	assert.Equal(t, 5*time.Second, client.config.DialTimeout)
}

func TestContains(t *testing.T) {
	skip := []string{"LegacyArchive", "Scratch"}
	assert.True(t, contains(skip, "legacyarchive"))
	assert.True(t, contains(skip, "Scratch"))
	assert.False(t, contains(skip, "sales"))
	assert.False(t, contains(nil, "sales"))
}

func TestQuoteName(t *testing.T) {
	assert.Equal(t, "[orders]", quoteName("orders"))
	assert.Equal(t, "[odd]]name]", quoteName("odd]name"))
	assert.Equal(t, "[dbo].[orders]", qualified("dbo", "orders"))
}
