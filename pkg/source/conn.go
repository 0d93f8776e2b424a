package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/warebase/ferry/pkg/table"
)

// Conn is a connection scoped to one database on one server.
type Conn struct {
	db       *sql.DB
	server   string
	database string
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	return c.db.Close()
}

// quoteName wraps a SQL Server identifier in brackets.
func quoteName(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func qualified(schema, tbl string) string {
	return quoteName(schema) + "." + quoteName(tbl)
}

// ListTables returns all base tables in the database as (schema, table)
// targets. Views are excluded.
func (c *Conn) ListTables(ctx context.Context) ([]table.Target, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA, TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("listing tables in %s: %w", c.database, err)
	}
	defer rows.Close()

	var targets []table.Target
	for rows.Next() {
		t := table.Target{ServerName: c.server, DatabaseName: c.database}
		if err := rows.Scan(&t.SchemaName, &t.TableName); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// TableInfo reads column metadata and primary key information for one
// table.
func (c *Conn) TableInfo(ctx context.Context, schema, tbl string) (*table.Info, error) {
	info := &table.Info{
		Target: table.Target{
			ServerName:   c.server,
			DatabaseName: c.database,
			SchemaName:   schema,
			TableName:    tbl,
		},
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, schema, tbl)
	if err != nil {
		return nil, fmt.Errorf("reading columns for %s.%s: %w", schema, tbl, err)
	}
	defer rows.Close()
	for rows.Next() {
		var col table.Column
		if err := rows.Scan(&col.Name, &col.Type, &col.OrdinalPosition); err != nil {
			return nil, err
		}
		col.Type = strings.ToLower(col.Type)
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pk, err := c.PrimaryKeyColumns(ctx, schema, tbl)
	if err != nil {
		// A failed PK probe is not fatal; the strategy selector falls
		// through to the next rung.
		pk = nil
	}
	info.PrimaryKey = pk
	return info, nil
}

// PrimaryKeyColumns returns the primary key columns in ordinal order.
func (c *Conn) PrimaryKeyColumns(ctx context.Context, schema, tbl string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		  AND CONSTRAINT_NAME LIKE 'PK_%'
		ORDER BY ORDINAL_POSITION`, schema, tbl)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// TimestampColumns returns datetime-family column names ordered by name.
func (c *Conn) TimestampColumns(ctx context.Context, schema, tbl string) ([]string, error) {
	return c.columnsOfTypes(ctx, schema, tbl,
		[]string{"datetime", "datetime2", "smalldatetime", "timestamp"})
}

// UniqueIDColumns returns GUID and integer column names ordered by name.
func (c *Conn) UniqueIDColumns(ctx context.Context, schema, tbl string) ([]string, error) {
	return c.columnsOfTypes(ctx, schema, tbl,
		[]string{"uniqueidentifier", "int", "bigint"})
}

func (c *Conn) columnsOfTypes(ctx context.Context, schema, tbl string, types []string) ([]string, error) {
	placeholders := make([]string, len(types))
	args := []any{schema, tbl}
	for i, t := range types {
		placeholders[i] = fmt.Sprintf("@p%d", i+3)
		args = append(args, t)
	}
	query := fmt.Sprintf(`
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		  AND DATA_TYPE IN (%s)
		ORDER BY COLUMN_NAME`, strings.Join(placeholders, ", "))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// RowCount returns the current row count of a table.
func (c *Conn) RowCount(ctx context.Context, schema, tbl string) (int64, error) {
	var count int64
	query := "SELECT COUNT_BIG(*) FROM " + qualified(schema, tbl)
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s.%s: %w", schema, tbl, err)
	}
	return count, nil
}

// CountAfter returns how many rows have a cursor column value strictly
// greater than the stored cursor. It is the cheap existence probe run
// before an incremental read.
func (c *Conn) CountAfter(ctx context.Context, schema, tbl, column, cursor string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s WHERE %s > @p1",
		qualified(schema, tbl), quoteName(column))
	if err := c.db.QueryRowContext(ctx, query, cursor).Scan(&count); err != nil {
		return 0, fmt.Errorf("probing %s.%s after cursor: %w", schema, tbl, err)
	}
	return count, nil
}

// ReadAll reads the entire table into memory.
func (c *Conn) ReadAll(ctx context.Context, schema, tbl string) (*table.Rows, error) {
	query := "SELECT * FROM " + qualified(schema, tbl)
	return c.read(ctx, query)
}

// ReadAfter reads all rows with a cursor column value strictly greater
// than the stored cursor.
func (c *Conn) ReadAfter(ctx context.Context, schema, tbl, column, cursor string) (*table.Rows, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s > @p1",
		qualified(schema, tbl), quoteName(column))
	return c.read(ctx, query, cursor)
}

func (c *Conn) read(ctx context.Context, query string, args ...any) (*table.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
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
