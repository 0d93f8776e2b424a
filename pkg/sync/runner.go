// Package sync orchestrates full and incremental synchronization of SQL
// Server databases into the PostgreSQL warehouse.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warebase/ferry/pkg/loader"
	"github.com/warebase/ferry/pkg/monitor"
	"github.com/warebase/ferry/pkg/source"
	"github.com/warebase/ferry/pkg/state"
	"github.com/warebase/ferry/pkg/strategy"
	"github.com/warebase/ferry/pkg/table"
	"github.com/warebase/ferry/pkg/typeconv"
)

// SourceConn is the per-database source surface the executor reads from.
// Implemented by source.Conn.
type SourceConn interface {
	strategy.Prober
	ListTables(ctx context.Context) ([]table.Target, error)
	TableInfo(ctx context.Context, schema, tbl string) (*table.Info, error)
	RowCount(ctx context.Context, schema, tbl string) (int64, error)
	CountAfter(ctx context.Context, schema, tbl, column, cursor string) (int64, error)
	ReadAll(ctx context.Context, schema, tbl string) (*table.Rows, error)
	ReadAfter(ctx context.Context, schema, tbl, column, cursor string) (*table.Rows, error)
	Close() error
}

// SourceClient discovers databases and opens per-database connections.
type SourceClient interface {
	ListDatabases(ctx context.Context) ([]string, error)
	Connect(ctx context.Context, database string) (SourceConn, error)
}

// Destination is the warehouse surface the executor loads into.
// Implemented by loader.Loader.
type Destination interface {
	EnsureSchema(ctx context.Context, schema string) error
	Load(ctx context.Context, schema, tbl string, rows *table.Rows, columns []loader.ColumnDef, mode loader.LoadMode) error
	Count(ctx context.Context, schema, tbl string) (int64, error)
	TableExists(ctx context.Context, schema, tbl string) (bool, error)
	ReadAll(ctx context.Context, schema, tbl string) (*table.Rows, error)
	DropTable(ctx context.Context, schema, tbl string) error
}

// StateStore persists database status and table cursors. Implemented by
// state.Store.
type StateStore interface {
	CreateTables(ctx context.Context) error
	GetDatabaseStatus(ctx context.Context, server, database string) (*state.DatabaseStatus, error)
	MarkDatabaseSynced(ctx context.Context, server, database string, kind state.SyncKind, status string) error
	GetCursor(ctx context.Context, target table.Target) (string, bool, error)
	AdvanceCursor(ctx context.Context, target table.Target, value string) error
}

// Scope narrows a run to one server, one database, or one table.
type Scope struct {
	Server   string
	Database string
	Table    string
}

// systemTableDenylist lists source tables that are never synced, beyond
// the blanket sys-schema skip.
var systemTableDenylist = map[string]struct{}{
	"sys.trace_xe_event_map":  {},
	"sys.trace_xe_action_map": {},
}

// Runner executes sync passes. One Runner handles one invocation;
// databases and tables are processed strictly sequentially.
type Runner struct {
	config *Config

	dest    Destination
	store   StateStore
	monitor *monitor.Monitor
	mapper  typeconv.Mapper
	logger  *slog.Logger

	// newSource builds the per-server source client. Swapped in tests.
	newSource func(conf ServerConfig, dialTimeout time.Duration) SourceClient

	warehouse *loader.Loader
}

// NewRunner creates a runner for the given configuration. Connections are
// opened lazily when Run is called.
func NewRunner(config *Config) *Runner {
	return &Runner{
		config: config,
		mapper: typeconv.GetTypeMapper(),
		logger: slog.Default(),
		newSource: func(conf ServerConfig, dialTimeout time.Duration) SourceClient {
			return sqlServerClient{source.NewClient(source.Config{
				Server:      conf.Server,
				Port:        conf.Port,
				Username:    conf.Username,
				Password:    conf.Password,
				DialTimeout: dialTimeout,
			})}
		},
	}
}

// sqlServerClient adapts source.Client to the SourceClient interface.
type sqlServerClient struct {
	client *source.Client
}

func (c sqlServerClient) ListDatabases(ctx context.Context) ([]string, error) {
	return c.client.ListDatabases(ctx)
}

func (c sqlServerClient) Connect(ctx context.Context, database string) (SourceConn, error) {
	return c.client.Connect(ctx, database)
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Close releases the warehouse connection if the runner opened one.
func (r *Runner) Close() error {
	if r.warehouse != nil {
		return r.warehouse.Close()
	}
	return nil
}

// initialize opens the warehouse connection and wires the default store
// and monitor. Pieces injected before Run (by tests) are left alone.
func (r *Runner) initialize(ctx context.Context) error {
	if r.dest == nil {
		wh, err := loader.New(r.config.PostgreSQL.DSN())
		if err != nil {
			return err
		}
		r.warehouse = wh
		r.dest = wh
	}
	if r.store == nil {
		if r.warehouse == nil {
			return fmt.Errorf("no state store configured")
		}
		r.store = state.NewStore(r.warehouse.DB())
	}
	if err := r.store.CreateTables(ctx); err != nil {
		return err
	}
	if r.monitor == nil {
		if r.warehouse == nil {
			r.monitor = monitor.New(&monitor.NoopSink{}, r.logger)
		} else {
			sink, err := monitor.NewPostgresSink(ctx, r.warehouse.DB())
			if err != nil {
				return err
			}
			r.monitor = monitor.New(sink, r.logger)
		}
	}
	return nil
}

// Run executes one sync pass over every configured server (or the one
// named in scope). It never returns an error: top-level failures are
// logged, recorded as a CRITICAL alert, and surfaced as a FAILED summary
// with failed_syncs=1 and zeroed counts.
func (r *Runner) Run(ctx context.Context, scope Scope) *Summary {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	total := &Summary{}
	if err := r.initialize(ctx); err != nil {
		logger.Error("sync setup failed", "error", err)
		if r.monitor != nil {
			r.monitor.LogAlert(ctx, monitor.Alert{
				Type:     monitor.AlertSessionFailure,
				Severity: monitor.SeverityCritical,
				Message:  fmt.Sprintf("Sync setup failed: %v", err),
			})
		}
		total.FailedSyncs = 1
		return total
	}

	servers := r.config.SQLServers
	if scope.Server != "" {
		conf, ok := servers[scope.Server]
		if !ok {
			logger.Error("unknown server", "server", scope.Server)
			r.monitor.LogAlert(ctx, monitor.Alert{
				Type:     monitor.AlertConfigError,
				Severity: monitor.SeverityHigh,
				Message:  fmt.Sprintf("Unknown server %q", scope.Server),
			})
			total.FailedSyncs = 1
			return total
		}
		servers = map[string]ServerConfig{scope.Server: conf}
	}
	if len(servers) == 0 {
		logger.Error("no SQL servers configured")
		r.monitor.LogAlert(ctx, monitor.Alert{
			Type:     monitor.AlertConfigError,
			Severity: monitor.SeverityHigh,
			Message:  "No SQL servers configured",
		})
		total.FailedSyncs = 1
		return total
	}

	logger.Info("starting hybrid sync", "servers", len(servers))
	for name, conf := range servers {
		logger.Info("processing SQL Server", "server", name)
		summary := r.processServer(ctx, logger, name, conf, scope)
		total.add(summary)
	}
	logger.Info("hybrid sync complete",
		"databases", total.Databases,
		"tables", total.Tables,
		"successful_syncs", total.SuccessfulSyncs,
		"failed_syncs", total.FailedSyncs,
		"rows_inserted", total.RowsInserted,
	)
	return total
}

// processServer runs one server's database list. Any error that escapes
// the per-table handling is caught here and converted into a FAILED
// session summary.
func (r *Runner) processServer(ctx context.Context, logger *slog.Logger, name string, conf ServerConfig, scope Scope) Summary {
	start := time.Now()
	sessionID := fmt.Sprintf("%s_%s", conf.Server, start.Format("20060102_150405"))

	summary, err := r.processServerDatabases(ctx, logger, conf, scope)
	end := time.Now()

	if err != nil {
		logger.Error("server sync failed", "server", name, "error", err)
		r.monitor.LogSummary(ctx, monitor.Summary{
			SessionID:     sessionID,
			ServerName:    conf.Server,
			DatabaseName:  "ALL",
			FailedSyncs:   1,
			StartTime:     start,
			EndTime:       end,
			OverallStatus: StatusFailed,
		})
		r.monitor.LogAlert(ctx, monitor.Alert{
			Type:         monitor.AlertSessionFailure,
			Severity:     monitor.SeverityHigh,
			ServerName:   conf.Server,
			DatabaseName: "ALL",
			Message:      fmt.Sprintf("Session failed completely: %v", err),
		})
		return Summary{FailedSyncs: 1}
	}

	r.monitor.LogSummary(ctx, monitor.Summary{
		SessionID:          sessionID,
		ServerName:         conf.Server,
		DatabaseName:       "ALL",
		TotalTables:        summary.Tables,
		SuccessfulSyncs:    summary.SuccessfulSyncs,
		FailedSyncs:        summary.FailedSyncs,
		SkippedTables:      summary.SkippedTables,
		TotalRowsProcessed: summary.RowsProcessed,
		TotalRowsInserted:  summary.RowsInserted,
		StartTime:          start,
		EndTime:            end,
		OverallStatus:      summary.OverallStatus(),
	})

	if summary.FailedSyncs > 0 {
		severity := monitor.SeverityHigh
		if summary.SuccessfulSyncs > 0 {
			severity = monitor.SeverityMedium
		}
		r.monitor.LogAlert(ctx, monitor.Alert{
			Type:         monitor.AlertSessionFailures,
			Severity:     severity,
			ServerName:   conf.Server,
			DatabaseName: "ALL",
			Message: fmt.Sprintf("Session completed with %d failed syncs out of %d total tables",
				summary.FailedSyncs, summary.Tables),
		})
	}

	logger.Info("session complete",
		"server", name,
		"successful_syncs", summary.SuccessfulSyncs,
		"failed_syncs", summary.FailedSyncs,
		"rows_inserted", summary.RowsInserted,
		"duration", end.Sub(start),
	)
	return summary
}

func (r *Runner) processServerDatabases(ctx context.Context, logger *slog.Logger, conf ServerConfig, scope Scope) (Summary, error) {
	var summary Summary

	client := r.newSource(conf, r.config.Sync.DialTimeout)

	var databases []string
	if scope.Database != "" {
		databases = []string{scope.Database}
	} else {
		var err error
		databases, err = client.ListDatabases(ctx)
		if err != nil {
			return summary, fmt.Errorf("listing databases: %w", err)
		}
	}
	if len(databases) == 0 {
		logger.Warn("no user databases found", "server", conf.Server)
		return summary, nil
	}
	logger.Info("found databases", "server", conf.Server, "count", len(databases))

	for _, dbName := range databases {
		if containsFold(conf.SkipDatabases, dbName) {
			logger.Info("skipping database", "database", dbName)
			continue
		}
		summary.Databases++

		schemaName := loader.SchemaName(conf.Server, dbName)
		r.cleanupSystemTables(ctx, logger, schemaName)

		status, err := r.store.GetDatabaseStatus(ctx, conf.Server, dbName)
		if err != nil {
			return summary, fmt.Errorf("reading sync status for %s: %w", dbName, err)
		}

		conn, err := client.Connect(ctx, dbName)
		if err != nil {
			logger.Error("could not connect to database", "database", dbName, "error", err)
			summary.FailedSyncs++
			continue
		}

		var dbSummary Summary
		var kind state.SyncKind
		if status == nil {
			logger.Info("new database discovered, running full sync", "database", dbName)
			kind = state.KindFull
			dbSummary = r.fullSyncDatabase(ctx, logger, conn, dbName, scope.Table)
		} else {
			logger.Info("existing database, running incremental sync", "database", dbName)
			kind = state.KindIncremental
			dbSummary = r.incrementalSyncDatabase(ctx, logger, conn, dbName, scope.Table)
		}
		conn.Close()

		if err := r.store.MarkDatabaseSynced(ctx, conf.Server, dbName, kind, "COMPLETED"); err != nil {
			return summary, err
		}
		summary.add(dbSummary)
	}
	return summary, nil
}

// shouldSkipTable classifies system tables that are never read or loaded.
func shouldSkipTable(schema, tbl string) bool {
	if strings.EqualFold(schema, "sys") {
		return true
	}
	_, denied := systemTableDenylist[strings.ToLower(schema+"."+tbl)]
	return denied
}

// cleanupSystemTables drops destination tables that earlier runs created
// from system tables. Best effort.
func (r *Runner) cleanupSystemTables(ctx context.Context, logger *slog.Logger, schemaName string) {
	for _, tbl := range []string{"sys_trace_xe_event_map", "sys_trace_xe_action_map"} {
		if err := r.dest.DropTable(ctx, schemaName, tbl); err != nil {
			logger.Warn("could not clean up system table", "schema", schemaName, "table", tbl, "error", err)
		}
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// columnDefs derives destination column definitions for a row batch.
// Declared source types are mapped through the type table; columns
// without metadata fall back to sample-value inference.
func (r *Runner) columnDefs(info *table.Info, rows *table.Rows) []loader.ColumnDef {
	defs := make([]loader.ColumnDef, len(rows.Columns))
	for i, name := range rows.Columns {
		if info != nil {
			if col := info.Column(name); col != nil {
				defs[i] = loader.ColumnDef{Name: name, Type: r.mapper.MapType(col.Type)}
				continue
			}
		}
		var samples []any
		for _, row := range rows.Values {
			if row[i] != nil {
				samples = append(samples, row[i])
				if len(samples) >= 10 {
					break
				}
			}
		}
		defs[i] = loader.ColumnDef{Name: name, Type: r.mapper.InferType(samples)}
	}
	return defs
}
