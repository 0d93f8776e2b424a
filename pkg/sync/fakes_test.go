package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/warebase/ferry/pkg/loader"
	"github.com/warebase/ferry/pkg/monitor"
	"github.com/warebase/ferry/pkg/state"
	"github.com/warebase/ferry/pkg/table"
)

// fakeTableData is one source table's canned metadata and contents.
type fakeTableData struct {
	target  table.Target
	info    *table.Info
	pk      []string
	ts      []string
	uid     []string
	rows    *table.Rows
	readErr error
}

// fakeConn serves canned tables in place of a SQL Server connection.
type fakeConn struct {
	tables  []*fakeTableData
	listErr error
	closed  bool
}

func (c *fakeConn) find(schema, tbl string) *fakeTableData {
	for _, td := range c.tables {
		if td.target.SchemaName == schema && td.target.TableName == tbl {
			return td
		}
	}
	return nil
}

func (c *fakeConn) ListTables(context.Context) ([]table.Target, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	targets := make([]table.Target, len(c.tables))
	for i, td := range c.tables {
		targets[i] = td.target
	}
	return targets, nil
}

func (c *fakeConn) TableInfo(_ context.Context, schema, tbl string) (*table.Info, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return nil, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	if td.info == nil {
		return nil, fmt.Errorf("no metadata for %s.%s", schema, tbl)
	}
	return td.info, nil
}

func (c *fakeConn) PrimaryKeyColumns(_ context.Context, schema, tbl string) ([]string, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return nil, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	return td.pk, nil
}

func (c *fakeConn) TimestampColumns(_ context.Context, schema, tbl string) ([]string, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return nil, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	return td.ts, nil
}

func (c *fakeConn) UniqueIDColumns(_ context.Context, schema, tbl string) ([]string, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return nil, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	return td.uid, nil
}

func (c *fakeConn) RowCount(_ context.Context, schema, tbl string) (int64, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return 0, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	return int64(td.rows.Len()), nil
}

func (c *fakeConn) CountAfter(_ context.Context, schema, tbl, column, cursor string) (int64, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return 0, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	var count int64
	idx := td.rows.ColumnIndex(column)
	for _, row := range td.rows.Values {
		if row[idx] != nil && table.CompareValues(table.RenderValue(row[idx]), cursor) > 0 {
			count++
		}
	}
	return count, nil
}

func (c *fakeConn) ReadAll(_ context.Context, schema, tbl string) (*table.Rows, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return nil, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	if td.readErr != nil {
		return nil, td.readErr
	}
	return copyRows(td.rows), nil
}

func (c *fakeConn) ReadAfter(_ context.Context, schema, tbl, column, cursor string) (*table.Rows, error) {
	td := c.find(schema, tbl)
	if td == nil {
		return nil, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	if td.readErr != nil {
		return nil, td.readErr
	}
	result := &table.Rows{Columns: td.rows.Columns}
	idx := td.rows.ColumnIndex(column)
	for _, row := range td.rows.Values {
		if row[idx] != nil && table.CompareValues(table.RenderValue(row[idx]), cursor) > 0 {
			result.Values = append(result.Values, row)
		}
	}
	return result, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func copyRows(r *table.Rows) *table.Rows {
	out := &table.Rows{Columns: append([]string(nil), r.Columns...)}
	for _, row := range r.Values {
		out.Values = append(out.Values, append([]any(nil), row...))
	}
	return out
}

// fakeClient serves canned databases in place of a SQL Server client.
type fakeClient struct {
	databases  []string
	conns      map[string]*fakeConn
	listErr    error
	connectErr error
}

func (c *fakeClient) ListDatabases(context.Context) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.databases, nil
}

func (c *fakeClient) Connect(_ context.Context, database string) (SourceConn, error) {
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	conn, ok := c.conns[database]
	if !ok {
		return nil, fmt.Errorf("no such database %s", database)
	}
	return conn, nil
}

// memDest is an in-memory warehouse.
type memDest struct {
	tables  map[string]*table.Rows
	dropped []string
	loadErr error
}

func newMemDest() *memDest {
	return &memDest{tables: map[string]*table.Rows{}}
}

func destKey(schema, tbl string) string { return schema + "." + tbl }

func (d *memDest) EnsureSchema(context.Context, string) error { return nil }

func (d *memDest) Load(_ context.Context, schema, tbl string, rows *table.Rows, _ []loader.ColumnDef, mode loader.LoadMode) error {
	if d.loadErr != nil {
		return d.loadErr
	}
	key := destKey(schema, tbl)
	if mode == loader.ModeReplace {
		d.tables[key] = copyRows(rows)
		return nil
	}
	existing, ok := d.tables[key]
	if !ok {
		d.tables[key] = copyRows(rows)
		return nil
	}
	existing.Values = append(existing.Values, copyRows(rows).Values...)
	return nil
}

func (d *memDest) Count(_ context.Context, schema, tbl string) (int64, error) {
	rows, ok := d.tables[destKey(schema, tbl)]
	if !ok {
		return 0, nil
	}
	return int64(rows.Len()), nil
}

func (d *memDest) TableExists(_ context.Context, schema, tbl string) (bool, error) {
	_, ok := d.tables[destKey(schema, tbl)]
	return ok, nil
}

func (d *memDest) ReadAll(_ context.Context, schema, tbl string) (*table.Rows, error) {
	rows, ok := d.tables[destKey(schema, tbl)]
	if !ok {
		return nil, fmt.Errorf("no such table %s.%s", schema, tbl)
	}
	return copyRows(rows), nil
}

func (d *memDest) DropTable(_ context.Context, schema, tbl string) error {
	d.dropped = append(d.dropped, destKey(schema, tbl))
	delete(d.tables, destKey(schema, tbl))
	return nil
}

// memStore is an in-memory sync state store.
type memStore struct {
	statuses map[string]*state.DatabaseStatus
	cursors  map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		statuses: map[string]*state.DatabaseStatus{},
		cursors:  map[string]string{},
	}
}

func statusKey(server, database string) string { return server + "/" + database }

func (s *memStore) CreateTables(context.Context) error { return nil }

func (s *memStore) GetDatabaseStatus(_ context.Context, server, database string) (*state.DatabaseStatus, error) {
	return s.statuses[statusKey(server, database)], nil
}

func (s *memStore) MarkDatabaseSynced(_ context.Context, server, database string, kind state.SyncKind, status string) error {
	st := s.statuses[statusKey(server, database)]
	if st == nil {
		st = &state.DatabaseStatus{ServerName: server, DatabaseName: database}
		s.statuses[statusKey(server, database)] = st
	}
	now := time.Now()
	if kind == state.KindFull {
		st.LastFullSync = &now
	} else {
		st.LastIncrementalSync = &now
	}
	st.SyncStatus = status
	return nil
}

func (s *memStore) GetCursor(_ context.Context, target table.Target) (string, bool, error) {
	cursor, ok := s.cursors[target.String()]
	return cursor, ok, nil
}

func (s *memStore) AdvanceCursor(_ context.Context, target table.Target, value string) error {
	s.cursors[target.String()] = value
	return nil
}

// recordSink captures monitor records for assertions.
type recordSink struct {
	metrics   []monitor.Metric
	summaries []monitor.Summary
	alerts    []monitor.Alert
}

func (s *recordSink) RecordMetric(_ context.Context, m monitor.Metric) error {
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *recordSink) RecordSummary(_ context.Context, sum monitor.Summary) error {
	s.summaries = append(s.summaries, sum)
	return nil
}

func (s *recordSink) RecordConsistency(context.Context, monitor.Target, monitor.ConsistencyRecord) error {
	return nil
}

func (s *recordSink) RecordAlert(_ context.Context, a monitor.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *recordSink) alertsOfType(alertType string) []monitor.Alert {
	var out []monitor.Alert
	for _, a := range s.alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

func testConfig() *Config {
	config := &Config{
		SQLServers: map[string]ServerConfig{
			"primary": {Server: "sqlprod01", Port: 1433, Username: "sa", Password: "pw"},
		},
		PostgreSQL: PostgresConfig{Host: "localhost", Port: 5432, Username: "ferry", Database: "warehouse"},
		Sync:       SyncConfig{DialTimeout: time.Second},
	}
	return config
}

// newTestRunner wires a runner around in-memory fakes.
func newTestRunner(client SourceClient, dest Destination, store StateStore, sink monitor.Sink) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner(testConfig())
	r.logger = logger
	r.dest = dest
	r.store = store
	r.monitor = monitor.New(sink, logger)
	r.newSource = func(ServerConfig, time.Duration) SourceClient { return client }
	return r
}
