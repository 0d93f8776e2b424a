package monitor

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSink stores monitoring records in the warehouse database.
type PostgresSink struct {
	db *sql.DB
}

var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink returns a sink over the warehouse connection, creating
// the monitoring tables if needed.
func NewPostgresSink(ctx context.Context, db *sql.DB) (*PostgresSink, error) {
	s := &PostgresSink{db: db}
	if err := s.createTables(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS migration_metrics (
			id SERIAL PRIMARY KEY,
			server_name VARCHAR(100),
			database_name VARCHAR(100),
			schema_name VARCHAR(100),
			table_name VARCHAR(100),
			sync_type VARCHAR(20),
			source_row_count BIGINT,
			target_row_count BIGINT,
			rows_processed BIGINT,
			rows_inserted BIGINT,
			sync_duration_seconds DECIMAL(10,2),
			sync_status VARCHAR(20),
			error_message TEXT,
			data_consistency_status VARCHAR(20),
			data_consistency_percentage DECIMAL(5,2),
			sync_timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sync_summary (
			id SERIAL PRIMARY KEY,
			sync_session_id VARCHAR(50),
			server_name VARCHAR(100),
			database_name VARCHAR(100),
			total_tables INTEGER,
			successful_syncs INTEGER,
			failed_syncs INTEGER,
			skipped_tables INTEGER,
			total_rows_processed BIGINT,
			total_rows_inserted BIGINT,
			sync_start_time TIMESTAMP,
			sync_end_time TIMESTAMP,
			total_duration_seconds DECIMAL(10,2),
			overall_status VARCHAR(20),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS data_consistency_checks (
			id SERIAL PRIMARY KEY,
			server_name VARCHAR(100),
			database_name VARCHAR(100),
			schema_name VARCHAR(100),
			table_name VARCHAR(100),
			source_row_count BIGINT,
			target_row_count BIGINT,
			missing_rows BIGINT,
			extra_rows BIGINT,
			consistency_percentage DECIMAL(5,2),
			status VARCHAR(20),
			details TEXT,
			check_timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id SERIAL PRIMARY KEY,
			alert_type VARCHAR(50),
			severity VARCHAR(20),
			server_name VARCHAR(100),
			database_name VARCHAR(100),
			schema_name VARCHAR(100),
			table_name VARCHAR(100),
			message TEXT,
			alert_timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			resolved BOOLEAN DEFAULT FALSE,
			resolved_at TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating monitoring tables: %w", err)
		}
	}
	return nil
}

func (s *PostgresSink) RecordMetric(ctx context.Context, m Metric) error {
	record := Check(m.SourceCount, m.TargetCount)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO migration_metrics
		(server_name, database_name, schema_name, table_name, sync_type,
		 source_row_count, target_row_count, rows_processed, rows_inserted,
		 sync_duration_seconds, sync_status, error_message,
		 data_consistency_status, data_consistency_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ServerName, m.DatabaseName, m.SchemaName, m.TableName, m.SyncType,
		m.SourceCount, m.TargetCount, m.RowsProcessed, m.RowsInserted,
		m.Duration.Seconds(), m.Status, nullIfEmpty(m.Error),
		record.Status, record.ConsistencyPercentage)
	return err
}

func (s *PostgresSink) RecordSummary(ctx context.Context, sum Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_summary
		(sync_session_id, server_name, database_name, total_tables,
		 successful_syncs, failed_syncs, skipped_tables,
		 total_rows_processed, total_rows_inserted,
		 sync_start_time, sync_end_time, total_duration_seconds, overall_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sum.SessionID, sum.ServerName, sum.DatabaseName, sum.TotalTables,
		sum.SuccessfulSyncs, sum.FailedSyncs, sum.SkippedTables,
		sum.TotalRowsProcessed, sum.TotalRowsInserted,
		sum.StartTime, sum.EndTime, sum.EndTime.Sub(sum.StartTime).Seconds(),
		sum.OverallStatus)
	return err
}

func (s *PostgresSink) RecordConsistency(ctx context.Context, target Target, r ConsistencyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_consistency_checks
		(server_name, database_name, schema_name, table_name,
		 source_row_count, target_row_count, missing_rows, extra_rows,
		 consistency_percentage, status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		target.ServerName, target.DatabaseName, target.SchemaName, target.TableName,
		r.SourceCount, r.TargetCount, r.MissingRows, r.ExtraRows,
		r.ConsistencyPercentage, r.Status, r.Details())
	return err
}

func (s *PostgresSink) RecordAlert(ctx context.Context, a Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
		(alert_type, severity, server_name, database_name, schema_name, table_name, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.Type, a.Severity, a.ServerName, a.DatabaseName, a.SchemaName, a.TableName, a.Message)
	return err
}

// Overview is the 7-day aggregate used by dashboards.
type Overview struct {
	TotalServers      int
	TotalDatabases    int
	TotalTables       int
	TotalRowsMigrated int64
	SuccessfulSyncs   int
	FailedSyncs       int
	AvgSyncDuration   float64
	AvgConsistency    float64
}

// DashboardOverview aggregates the last seven days of metrics.
func (s *PostgresSink) DashboardOverview(ctx context.Context) (*Overview, error) {
	var o Overview
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT server_name),
			COUNT(DISTINCT database_name),
			COUNT(DISTINCT table_name),
			COALESCE(SUM(rows_inserted), 0),
			COUNT(*) FILTER (WHERE sync_status = 'SUCCESS'),
			COUNT(*) FILTER (WHERE sync_status = 'FAILED'),
			COALESCE(AVG(sync_duration_seconds), 0),
			COALESCE(AVG(data_consistency_percentage), 0)
		FROM migration_metrics
		WHERE sync_timestamp >= CURRENT_DATE - INTERVAL '7 days'`).Scan(
		&o.TotalServers, &o.TotalDatabases, &o.TotalTables, &o.TotalRowsMigrated,
		&o.SuccessfulSyncs, &o.FailedSyncs, &o.AvgSyncDuration, &o.AvgConsistency)
	if err != nil {
		return nil, fmt.Errorf("reading dashboard overview: %w", err)
	}
	return &o, nil
}

// UnresolvedAlerts returns unresolved alerts, newest first.
func (s *PostgresSink) UnresolvedAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_type, severity, server_name, database_name, schema_name, table_name, message
		FROM alerts
		WHERE NOT resolved
		ORDER BY alert_timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.Type, &a.Severity, &a.ServerName, &a.DatabaseName,
			&a.SchemaName, &a.TableName, &a.Message); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
