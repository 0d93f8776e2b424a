// Package monitor records sync metrics, session summaries, consistency
// checks and alerts. Recording is best effort: a failing sink is logged
// and never blocks or aborts the sync.
package monitor

import (
	"context"
	"log/slog"
	"time"
)

// Severity tiers for alerts.
const (
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Alert types.
const (
	AlertSyncFailure     = "SYNC_FAILURE"
	AlertDataConsistency = "DATA_CONSISTENCY"
	AlertSessionFailures = "SESSION_FAILURES"
	AlertSessionFailure  = "SESSION_FAILURE"
	AlertConfigError     = "CONFIG_ERROR"
)

// Metric is one table-level sync outcome.
type Metric struct {
	ServerName    string
	DatabaseName  string
	SchemaName    string
	TableName     string
	SyncType      string // FULL or INCREMENTAL
	SourceCount   int64
	TargetCount   int64
	RowsProcessed int64
	RowsInserted  int64
	Duration      time.Duration
	Status        string // SUCCESS or FAILED
	Error         string
}

// Summary is one session-level outcome covering a whole server pass.
type Summary struct {
	SessionID          string
	ServerName         string
	DatabaseName       string
	TotalTables        int
	SuccessfulSyncs    int
	FailedSyncs        int
	SkippedTables      int
	TotalRowsProcessed int64
	TotalRowsInserted  int64
	StartTime          time.Time
	EndTime            time.Time
	OverallStatus      string // SUCCESS, PARTIAL or FAILED
}

// Alert is a stored, queryable alert row.
type Alert struct {
	Type         string
	Severity     string
	ServerName   string
	DatabaseName string
	SchemaName   string
	TableName    string
	Message      string
}

// Sink stores monitoring records. Implementations must tolerate being
// called after partial failures of earlier calls.
type Sink interface {
	RecordMetric(ctx context.Context, m Metric) error
	RecordSummary(ctx context.Context, s Summary) error
	RecordConsistency(ctx context.Context, target Target, record ConsistencyRecord) error
	RecordAlert(ctx context.Context, a Alert) error
}

// Target identifies the table a consistency record belongs to. It mirrors
// table.Target without importing it, keeping the sink interface flat.
type Target struct {
	ServerName   string
	DatabaseName string
	SchemaName   string
	TableName    string
}

// NoopSink discards everything. It is the default when monitoring is not
// configured.
type NoopSink struct{}

var _ Sink = (*NoopSink)(nil)

func (s *NoopSink) RecordMetric(context.Context, Metric) error   { return nil }
func (s *NoopSink) RecordSummary(context.Context, Summary) error { return nil }
func (s *NoopSink) RecordConsistency(context.Context, Target, ConsistencyRecord) error {
	return nil
}
func (s *NoopSink) RecordAlert(context.Context, Alert) error { return nil }

// Monitor wraps a sink with best-effort semantics and derives alerts from
// consistency results.
type Monitor struct {
	sink   Sink
	logger *slog.Logger
}

// New returns a monitor over the given sink.
func New(sink Sink, logger *slog.Logger) *Monitor {
	if sink == nil {
		sink = &NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{sink: sink, logger: logger}
}

// LogMetric records a table-level sync outcome.
func (m *Monitor) LogMetric(ctx context.Context, metric Metric) {
	if err := m.sink.RecordMetric(ctx, metric); err != nil {
		m.logger.Warn("failed to record sync metric", "table", metric.TableName, "error", err)
	}
}

// LogSummary records a session summary.
func (m *Monitor) LogSummary(ctx context.Context, summary Summary) {
	if err := m.sink.RecordSummary(ctx, summary); err != nil {
		m.logger.Warn("failed to record sync summary", "session", summary.SessionID, "error", err)
	}
}

// LogAlert records an alert.
func (m *Monitor) LogAlert(ctx context.Context, alert Alert) {
	if err := m.sink.RecordAlert(ctx, alert); err != nil {
		m.logger.Warn("failed to record alert", "type", alert.Type, "error", err)
	}
}

// CheckConsistency compares source and target row counts, records the
// result, and raises an alert when the counts differ. Severity is HIGH
// below 95% consistency, MEDIUM otherwise.
func (m *Monitor) CheckConsistency(ctx context.Context, target Target, sourceCount, targetCount int64) ConsistencyRecord {
	record := Check(sourceCount, targetCount)
	if err := m.sink.RecordConsistency(ctx, target, record); err != nil {
		m.logger.Warn("failed to record consistency check", "table", target.TableName, "error", err)
	}
	if record.Status == StatusInconsistent {
		severity := SeverityMedium
		if record.ConsistencyPercentage < 95 {
			severity = SeverityHigh
		}
		m.LogAlert(ctx, Alert{
			Type:         AlertDataConsistency,
			Severity:     severity,
			ServerName:   target.ServerName,
			DatabaseName: target.DatabaseName,
			SchemaName:   target.SchemaName,
			TableName:    target.TableName,
			Message:      record.Details(),
		})
	}
	return record
}
