package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records everything in memory for assertions.
type captureSink struct {
	metrics       []Metric
	summaries     []Summary
	consistencies []ConsistencyRecord
	alerts        []Alert
}

func (s *captureSink) RecordMetric(_ context.Context, m Metric) error {
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *captureSink) RecordSummary(_ context.Context, sum Summary) error {
	s.summaries = append(s.summaries, sum)
	return nil
}

func (s *captureSink) RecordConsistency(_ context.Context, _ Target, r ConsistencyRecord) error {
	s.consistencies = append(s.consistencies, r)
	return nil
}

func (s *captureSink) RecordAlert(_ context.Context, a Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

func TestCheckConsistencyMatchingCounts(t *testing.T) {
	sink := &captureSink{}
	m := New(sink, nil)

	record := m.CheckConsistency(context.Background(), Target{TableName: "orders"}, 100, 100)
	assert.Equal(t, StatusConsistent, record.Status)
	assert.Len(t, sink.consistencies, 1)
	assert.Empty(t, sink.alerts, "matching counts must not alert")
}

func TestCheckConsistencySeverity(t *testing.T) {
	tests := []struct {
		name         string
		source       int64
		target       int64
		wantSeverity string
	}{
		{"small drift is medium", 100, 96, SeverityMedium},
		{"below 95 percent is high", 100, 80, SeverityHigh},
		{"boundary 95 percent is medium", 100, 95, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			m := New(sink, nil)
			m.CheckConsistency(context.Background(), Target{TableName: "orders"}, tt.source, tt.target)
			require.Len(t, sink.alerts, 1)
			alert := sink.alerts[0]
			assert.Equal(t, AlertDataConsistency, alert.Type)
			assert.Equal(t, tt.wantSeverity, alert.Severity)
		})
	}
}

func TestNewDefaultsToNoopSink(t *testing.T) {
	m := New(nil, nil)
	// Must not panic with no sink configured.
	m.LogMetric(context.Background(), Metric{TableName: "t"})
	m.LogAlert(context.Background(), Alert{Type: AlertSyncFailure})
}
