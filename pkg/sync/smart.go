package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/warebase/ferry/pkg/loader"
	"github.com/warebase/ferry/pkg/table"
)

// smartSyncTable handles tables with no usable cursor column: it re-reads
// the whole source table every run and appends only rows whose content
// hash is absent from the destination. Re-running with unchanged data
// inserts nothing; the cost is an O(n) full-table comparison per run.
func (r *Runner) smartSyncTable(ctx context.Context, logger *slog.Logger, conn SourceConn, t table.Target, sourceCount int64) tableResult {
	start := time.Now()
	schemaName := loader.SchemaName(t.ServerName, t.DatabaseName)
	tableName := loader.TableName(t.SchemaName, t.TableName)

	fail := func(st TableState, err error) tableResult {
		logger.Error("smart sync failed", "table", t.String(), "state", st.String(), "error", err)
		r.recordFailure(ctx, t, "INCREMENTAL", time.Since(start), err)
		return tableResult{state: TableStateFailed, err: err}
	}

	// READING_SOURCE
	rows, err := conn.ReadAll(ctx, t.SchemaName, t.TableName)
	if err != nil {
		return fail(TableStateReadingSource, err)
	}
	info, err := conn.TableInfo(ctx, t.SchemaName, t.TableName)
	if err != nil {
		info = nil
	}
	defs := r.columnDefs(info, rows)

	exists, err := r.dest.TableExists(ctx, schemaName, tableName)
	if err != nil {
		return fail(TableStateLoadingDestination, err)
	}

	toInsert := rows
	if exists {
		existing, err := r.dest.ReadAll(ctx, schemaName, tableName)
		if err != nil {
			return fail(TableStateLoadingDestination, err)
		}
		if existing.Len() > 0 {
			toInsert = diffByHash(logger, t, rows, existing)
			if toInsert == nil {
				// No comparable columns; nothing safe to insert.
				r.recordSuccess(ctx, t, "INCREMENTAL", sourceCount, int64(existing.Len()), 0, time.Since(start))
				return tableResult{state: TableStateSucceeded}
			}
		}
	}

	// LOADING_DESTINATION
	if err := r.dest.Load(ctx, schemaName, tableName, toInsert, defs, loader.ModeAppend); err != nil {
		return fail(TableStateLoadingDestination, err)
	}

	// VALIDATING
	targetCount, err := r.dest.Count(ctx, schemaName, tableName)
	if err != nil {
		return fail(TableStateValidating, err)
	}
	duration := time.Since(start)
	r.recordSuccess(ctx, t, "INCREMENTAL", sourceCount, targetCount, int64(toInsert.Len()), duration)
	r.monitor.CheckConsistency(ctx, monitorTarget(t), sourceCount, targetCount)

	logger.Info("smart sync complete", "table", t.String(), "rows_inserted", toInsert.Len(), "duration", duration)
	return tableResult{
		state:         TableStateSucceeded,
		rowsProcessed: int64(rows.Len()),
		rowsInserted:  int64(toInsert.Len()),
	}
}

// diffByHash returns the source rows whose content hash, computed over
// the column set common to both sides, is not present in the destination.
// Returns nil when the two sides share no columns.
func diffByHash(logger *slog.Logger, t table.Target, source, existing *table.Rows) *table.Rows {
	srcIdx, destIdx := commonColumnIndices(source.Columns, existing.Columns, loader.SanitizeIdentifier)
	if len(srcIdx) == 0 {
		logger.Warn("no common columns for comparison", "table", t.String())
		return nil
	}

	seen := make(map[rowHash]struct{}, existing.Len())
	for _, row := range existing.Values {
		seen[hashRow(row, destIdx)] = struct{}{}
	}

	result := &table.Rows{Columns: source.Columns}
	for _, row := range source.Values {
		if _, ok := seen[hashRow(row, srcIdx)]; !ok {
			result.Values = append(result.Values, row)
		}
	}
	return result
}
