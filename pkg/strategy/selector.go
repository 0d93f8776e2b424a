// Package strategy inspects a source table's metadata and chooses how to
// sync it incrementally.
package strategy

import (
	"context"
)

// Method is the chosen incremental sync method.
type Method int

const (
	// MethodPrimaryKey uses the first primary key column as the cursor.
	MethodPrimaryKey Method = iota
	// MethodTimestamp uses a datetime-family column as the cursor.
	MethodTimestamp
	// MethodUniqueID uses a GUID or integer column as the cursor.
	MethodUniqueID
	// MethodHashDedup means no monotonic column exists; every run
	// re-reads the table and dedups by content hash.
	MethodHashDedup
)

func (m Method) String() string {
	switch m {
	case MethodPrimaryKey:
		return "primary_key"
	case MethodTimestamp:
		return "timestamp"
	case MethodUniqueID:
		return "unique_id"
	case MethodHashDedup:
		return "hash_dedup"
	default:
		return "unknown"
	}
}

// HasCursor reports whether the method tracks a cursor column.
func (m Method) HasCursor() bool {
	return m != MethodHashDedup
}

// Strategy is the selector's decision for one table.
type Strategy struct {
	Method Method
	// Column is the cursor column, empty for MethodHashDedup.
	Column string
}

// Prober supplies the read-only metadata probes the selector needs. It is
// implemented by the source connection.
type Prober interface {
	// PrimaryKeyColumns returns the primary key columns in ordinal
	// order, or empty if the table has no primary key.
	PrimaryKeyColumns(ctx context.Context, schema, tbl string) ([]string, error)
	// TimestampColumns returns datetime-family columns ordered by name.
	TimestampColumns(ctx context.Context, schema, tbl string) ([]string, error)
	// UniqueIDColumns returns GUID and integer columns ordered by name.
	UniqueIDColumns(ctx context.Context, schema, tbl string) ([]string, error)
}

// Select chooses the sync strategy for a table. Precedence: primary key,
// then timestamp column, then unique-identifier column, then hash dedup.
// Probe failures degrade to the next rung rather than failing the table.
func Select(ctx context.Context, prober Prober, schema, tbl string) Strategy {
	if pk, err := prober.PrimaryKeyColumns(ctx, schema, tbl); err == nil && len(pk) > 0 {
		return Strategy{Method: MethodPrimaryKey, Column: pk[0]}
	}
	if cols, err := prober.TimestampColumns(ctx, schema, tbl); err == nil && len(cols) > 0 {
		return Strategy{Method: MethodTimestamp, Column: cols[0]}
	}
	if cols, err := prober.UniqueIDColumns(ctx, schema, tbl); err == nil && len(cols) > 0 {
		return Strategy{Method: MethodUniqueID, Column: cols[0]}
	}
	return Strategy{Method: MethodHashDedup}
}
