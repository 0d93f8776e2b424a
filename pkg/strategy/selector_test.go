package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeProber returns canned probe results. A nil error with a nil slice
// models "probed fine, found nothing".
type fakeProber struct {
	pk, ts, uid          []string
	pkErr, tsErr, uidErr error
}

func (p *fakeProber) PrimaryKeyColumns(context.Context, string, string) ([]string, error) {
	return p.pk, p.pkErr
}

func (p *fakeProber) TimestampColumns(context.Context, string, string) ([]string, error) {
	return p.ts, p.tsErr
}

func (p *fakeProber) UniqueIDColumns(context.Context, string, string) ([]string, error) {
	return p.uid, p.uidErr
}

func TestSelect(t *testing.T) {
	probeErr := errors.New("probe failed")

	tests := []struct {
		name       string
		prober     *fakeProber
		wantMethod Method
		wantColumn string
	}{
		{
			name:       "primary key wins over everything",
			prober:     &fakeProber{pk: []string{"id"}, ts: []string{"updated_at"}, uid: []string{"guid"}},
			wantMethod: MethodPrimaryKey,
			wantColumn: "id",
		},
		{
			name:       "first pk column of a composite key",
			prober:     &fakeProber{pk: []string{"tenant_id", "order_id"}},
			wantMethod: MethodPrimaryKey,
			wantColumn: "tenant_id",
		},
		{
			name:       "timestamp when no primary key",
			prober:     &fakeProber{ts: []string{"created_at", "updated_at"}, uid: []string{"guid"}},
			wantMethod: MethodTimestamp,
			wantColumn: "created_at",
		},
		{
			name:       "unique id when no pk or timestamp",
			prober:     &fakeProber{uid: []string{"row_guid"}},
			wantMethod: MethodUniqueID,
			wantColumn: "row_guid",
		},
		{
			name:       "hash dedup when nothing usable",
			prober:     &fakeProber{},
			wantMethod: MethodHashDedup,
		},
		{
			name:       "pk probe error degrades to timestamp",
			prober:     &fakeProber{pkErr: probeErr, ts: []string{"updated_at"}},
			wantMethod: MethodTimestamp,
			wantColumn: "updated_at",
		},
		{
			name:       "all probes error degrades to hash dedup",
			prober:     &fakeProber{pkErr: probeErr, tsErr: probeErr, uidErr: probeErr},
			wantMethod: MethodHashDedup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(context.Background(), tt.prober, "dbo", "orders")
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantColumn, got.Column)
		})
	}
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "primary_key", MethodPrimaryKey.String())
	assert.Equal(t, "timestamp", MethodTimestamp.String())
	assert.Equal(t, "unique_id", MethodUniqueID.String())
	assert.Equal(t, "hash_dedup", MethodHashDedup.String())
}

func TestMethodHasCursor(t *testing.T) {
	assert.True(t, MethodPrimaryKey.HasCursor())
	assert.True(t, MethodTimestamp.HasCursor())
	assert.True(t, MethodUniqueID.HasCursor())
	assert.False(t, MethodHashDedup.HasCursor())
}
