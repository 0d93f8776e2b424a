// Package loader writes row batches into the PostgreSQL warehouse. It
// owns destination-side DDL (schemas and tables), bulk loading via COPY,
// and the row counting used by consistency checks.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/warebase/ferry/pkg/table"
)

// LoadMode selects between destructive reload and append-only loading.
type LoadMode int

const (
	// ModeReplace drops and recreates the destination table before
	// loading. Used by full syncs and incremental bootstraps.
	ModeReplace LoadMode = iota
	// ModeAppend inserts rows into the existing table.
	ModeAppend
)

func (m LoadMode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "append"
}

// ColumnDef is one destination column with its PostgreSQL type.
type ColumnDef struct {
	Name string
	Type string
}

// Loader loads rows into PostgreSQL.
type Loader struct {
	db *sql.DB
}

// New opens a connection to the warehouse.
func New(dsn string) (*Loader, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to warehouse: %w", err)
	}
	return &Loader{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests and by components
// sharing the warehouse connection.
func NewWithDB(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// DB exposes the underlying warehouse connection for components that
// persist their own tables (state store, monitor).
func (l *Loader) DB() *sql.DB {
	return l.db
}

// Close releases the warehouse connection.
func (l *Loader) Close() error {
	return l.db.Close()
}

// SanitizeIdentifier strips every character that is not alphanumeric,
// underscore or hyphen. It is applied to schema, table and column names
// derived from source metadata before they are used as identifiers.
func SanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '_' || c == '-':
			b.WriteRune(c)
		}
	}
	return b.String()
}

// SchemaName derives the destination schema for a (server, database)
// pair: sanitized server name joined to the database name, with hyphens
// and spaces folded to underscores.
func SchemaName(server, database string) string {
	name := SanitizeIdentifier(server) + "_" + database
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return SanitizeIdentifier(name)
}

// TableName derives the destination table for a source (schema, table)
// pair.
func TableName(schema, tbl string) string {
	return SanitizeIdentifier(schema + "_" + tbl)
}

// EnsureSchema creates the destination schema if it does not exist.
func (l *Loader) EnsureSchema(ctx context.Context, schema string) error {
	query := "CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating schema %s: %w", schema, err)
	}
	return nil
}

// EnsureTable creates the destination table if it does not exist. Existing
// tables are never altered; schema drift after first creation is not
// reconciled.
func (l *Loader) EnsureTable(ctx context.Context, schema, tbl string, columns []ColumnDef) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = pq.QuoteIdentifier(SanitizeIdentifier(col.Name)) + " " + col.Type
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)",
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(tbl), strings.Join(defs, ", "))
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table %s.%s: %w", schema, tbl, err)
	}
	return nil
}

// DropTable drops the destination table if it exists.
func (l *Loader) DropTable(ctx context.Context, schema, tbl string) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s",
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(tbl))
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("dropping table %s.%s: %w", schema, tbl, err)
	}
	return nil
}

// TableExists reports whether the destination table exists.
func (l *Loader) TableExists(ctx context.Context, schema, tbl string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schema, tbl).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s.%s: %w", schema, tbl, err)
	}
	return exists, nil
}

// Load bulk-loads a row batch. ModeReplace drops and recreates the table
// first; ModeAppend requires the table to exist already. The batch is
// written with COPY inside a single transaction.
func (l *Loader) Load(ctx context.Context, schema, tbl string, rows *table.Rows, columns []ColumnDef, mode LoadMode) error {
	if err := l.EnsureSchema(ctx, schema); err != nil {
		return err
	}
	if mode == ModeReplace {
		if err := l.DropTable(ctx, schema, tbl); err != nil {
			return err
		}
	}
	if err := l.EnsureTable(ctx, schema, tbl, columns); err != nil {
		return err
	}
	if rows.Len() == 0 {
		return nil
	}

	sanitized := make([]string, len(rows.Columns))
	for i, c := range rows.Columns {
		sanitized[i] = SanitizeIdentifier(c)
	}

	txn, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, pq.CopyInSchema(schema, tbl, sanitized...))
	if err != nil {
		return fmt.Errorf("preparing copy into %s.%s: %w", schema, tbl, err)
	}
	for _, row := range rows.Values {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("copying row into %s.%s: %w", schema, tbl, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy into %s.%s: %w", schema, tbl, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing copy into %s.%s: %w", schema, tbl, err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing load into %s.%s: %w", schema, tbl, err)
	}
	return nil
}

// Count returns the destination row count.
func (l *Loader) Count(ctx context.Context, schema, tbl string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s",
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(tbl))
	if err := l.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s.%s: %w", schema, tbl, err)
	}
	return count, nil
}

// ReadAll reads the entire destination table. Used by the hash-dedup sync
// to compute existing row hashes.
func (l *Loader) ReadAll(ctx context.Context, schema, tbl string) (*table.Rows, error) {
	query := fmt.Sprintf("SELECT * FROM %s.%s",
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(tbl))
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading %s.%s: %w", schema, tbl, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &table.Rows{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		result.Values = append(result.Values, values)
	}
	return result, rows.Err()
}
