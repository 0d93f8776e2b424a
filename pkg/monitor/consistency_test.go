package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		source      int64
		target      int64
		wantStatus  string
		wantPercent float64
		wantMissing int64
		wantExtra   int64
	}{
		{"exact match", 100, 100, StatusConsistent, 100.0, 0, 0},
		{"missing rows", 100, 80, StatusInconsistent, 80.0, 20, 0},
		{"extra rows", 100, 120, StatusInconsistent, 120.0, 0, 20},
		{"both empty", 0, 0, StatusConsistent, 0.0, 0, 0},
		{"empty source nonempty target", 0, 5, StatusInconsistent, 0.0, 0, 5},
		{"single row missing", 1, 0, StatusInconsistent, 0.0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Check(tt.source, tt.target)
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.InDelta(t, tt.wantPercent, r.ConsistencyPercentage, 0.001)
			assert.Equal(t, tt.wantMissing, r.MissingRows)
			assert.Equal(t, tt.wantExtra, r.ExtraRows)
		})
	}
}

func TestCheckDetails(t *testing.T) {
	r := Check(100, 80)
	assert.Contains(t, r.Details(), "Missing: 20")
	assert.Contains(t, r.Details(), "Extra: 0")
}
