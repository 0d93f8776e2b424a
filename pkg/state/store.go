// Package state persists sync progress in the warehouse: per-database
// sync status, per-table cursors, and the durable schedule table. It is
// the system of record for resumability; a crash mid-sync leaves the
// previous cursor intact and the next run re-fetches from the last
// committed point.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warebase/ferry/pkg/table"
)

// SyncKind distinguishes the two timestamp fields on a database status
// row.
type SyncKind int

const (
	KindFull SyncKind = iota
	KindIncremental
)

func (k SyncKind) String() string {
	if k == KindFull {
		return "full"
	}
	return "incremental"
}

// DatabaseStatus is one row of sync_database_status. A database with no
// row is "new" and eligible for full sync.
type DatabaseStatus struct {
	ServerName          string
	DatabaseName        string
	LastFullSync        *time.Time
	LastIncrementalSync *time.Time
	SyncStatus          string
}

// Store persists sync state in the warehouse database.
type Store struct {
	db *sql.DB
}

// NewStore returns a store backed by the given warehouse connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTables creates the state tables if they do not exist. It is run
// once at the start of every sync pass.
func (s *Store) CreateTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_database_status (
			server_name VARCHAR(100),
			database_name VARCHAR(100),
			last_full_sync TIMESTAMP,
			last_incremental_sync TIMESTAMP,
			sync_status VARCHAR(20),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (server_name, database_name)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_table_status (
			server_name VARCHAR(100),
			database_name VARCHAR(100),
			schema_name VARCHAR(100),
			table_name VARCHAR(100),
			last_pk_value VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (server_name, database_name, schema_name, table_name)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_schedules (
			id VARCHAR(36) PRIMARY KEY,
			server_name VARCHAR(100) NOT NULL,
			database_name VARCHAR(100),
			trigger_kind VARCHAR(20) NOT NULL,
			interval_minutes INTEGER,
			daily_at VARCHAR(5),
			last_fired_at TIMESTAMP,
			cancelled_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating state tables: %w", err)
		}
	}
	return nil
}

// GetDatabaseStatus returns the status row for a database, or nil if the
// database has never been synced.
func (s *Store) GetDatabaseStatus(ctx context.Context, server, database string) (*DatabaseStatus, error) {
	status := &DatabaseStatus{ServerName: server, DatabaseName: database}
	var lastFull, lastIncr sql.NullTime
	var syncStatus sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT last_full_sync, last_incremental_sync, sync_status
		FROM sync_database_status
		WHERE server_name = $1 AND database_name = $2`,
		server, database).Scan(&lastFull, &lastIncr, &syncStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading database status for %s/%s: %w", server, database, err)
	}
	if lastFull.Valid {
		status.LastFullSync = &lastFull.Time
	}
	if lastIncr.Valid {
		status.LastIncrementalSync = &lastIncr.Time
	}
	status.SyncStatus = syncStatus.String
	return status, nil
}

// MarkDatabaseSynced upserts the database status row, updating only the
// timestamp matching kind and leaving the other untouched.
func (s *Store) MarkDatabaseSynced(ctx context.Context, server, database string, kind SyncKind, status string) error {
	var query string
	if kind == KindFull {
		query = `
		INSERT INTO sync_database_status (server_name, database_name, last_full_sync, sync_status, updated_at)
		VALUES ($1, $2, $3, $4, $3)
		ON CONFLICT (server_name, database_name)
		DO UPDATE SET
			last_full_sync = EXCLUDED.last_full_sync,
			sync_status = EXCLUDED.sync_status,
			updated_at = EXCLUDED.updated_at`
	} else {
		query = `
		INSERT INTO sync_database_status (server_name, database_name, last_incremental_sync, sync_status, updated_at)
		VALUES ($1, $2, $3, $4, $3)
		ON CONFLICT (server_name, database_name)
		DO UPDATE SET
			last_incremental_sync = EXCLUDED.last_incremental_sync,
			sync_status = EXCLUDED.sync_status,
			updated_at = EXCLUDED.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, query, server, database, time.Now(), status); err != nil {
		return fmt.Errorf("marking %s/%s %s-synced: %w", server, database, kind, err)
	}
	return nil
}

// GetCursor returns the stored cursor value for a table. The second
// return is false when no cursor exists yet.
func (s *Store) GetCursor(ctx context.Context, target table.Target) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT last_pk_value
		FROM sync_table_status
		WHERE server_name = $1 AND database_name = $2 AND schema_name = $3 AND table_name = $4`,
		target.ServerName, target.DatabaseName, target.SchemaName, target.TableName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cursor for %s: %w", target, err)
	}
	return value.String, value.Valid, nil
}

// AdvanceCursor upserts the cursor for a table. Advancing to the same
// value twice is a no-op in effect. Callers only advance to a value
// observed in a successfully loaded row batch.
func (s *Store) AdvanceCursor(ctx context.Context, target table.Target, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_table_status (server_name, database_name, schema_name, table_name, last_pk_value, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (server_name, database_name, schema_name, table_name)
		DO UPDATE SET
			last_pk_value = EXCLUDED.last_pk_value,
			updated_at = EXCLUDED.updated_at`,
		target.ServerName, target.DatabaseName, target.SchemaName, target.TableName, value, time.Now())
	if err != nil {
		return fmt.Errorf("advancing cursor for %s: %w", target, err)
	}
	return nil
}
