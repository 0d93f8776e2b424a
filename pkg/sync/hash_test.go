package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warebase/ferry/pkg/loader"
)

func TestHashRowDeterministic(t *testing.T) {
	row := []any{int64(1), "alice", 3.14}
	indices := []int{0, 1, 2}
	assert.Equal(t, hashRow(row, indices), hashRow(row, indices))
}

func TestHashRowDistinguishesValues(t *testing.T) {
	indices := []int{0, 1}
	a := hashRow([]any{"x", "y"}, indices)
	b := hashRow([]any{"x", "z"}, indices)
	assert.NotEqual(t, a, b)

	// The separator keeps adjacent values from bleeding into each other.
	c := hashRow([]any{"ab", "c"}, indices)
	d := hashRow([]any{"a", "bc"}, indices)
	assert.NotEqual(t, c, d)
}

func TestHashRowNullEqualsEmptyString(t *testing.T) {
	indices := []int{0, 1}
	withNull := hashRow([]any{"x", nil}, indices)
	withEmpty := hashRow([]any{"x", ""}, indices)
	assert.Equal(t, withNull, withEmpty)
}

func TestHashRowTimestampRendering(t *testing.T) {
	// The same instant in different zones must hash identically.
	indices := []int{0}
	utc := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*3600))
	assert.Equal(t, hashRow([]any{utc}, indices), hashRow([]any{est}, indices))
}

func TestCommonColumnIndices(t *testing.T) {
	source := []string{"ID", "Name", "Created At"}
	dest := []string{"createdat", "id", "name", "loaded_at"}

	srcIdx, destIdx := commonColumnIndices(source, dest, loader.SanitizeIdentifier)
	assert.Equal(t, len(srcIdx), len(destIdx))
	assert.Len(t, srcIdx, 3, "all three source columns exist on both sides after sanitization")

	// Pairs must point at the same logical column on both sides.
	for i := range srcIdx {
		got := loader.SanitizeIdentifier(source[srcIdx[i]])
		want := loader.SanitizeIdentifier(dest[destIdx[i]])
		assert.True(t, strings.EqualFold(got, want), "pair %d: %q vs %q", i, got, want)
	}
}

func TestCommonColumnIndicesOrderIndependent(t *testing.T) {
	rowA := []any{int64(1), "alice"}
	rowB := []any{"alice", int64(1)}

	srcIdxA, _ := commonColumnIndices([]string{"id", "name"}, []string{"name", "id"}, loader.SanitizeIdentifier)
	srcIdxB, _ := commonColumnIndices([]string{"name", "id"}, []string{"name", "id"}, loader.SanitizeIdentifier)

	assert.Equal(t, hashRow(rowA, srcIdxA), hashRow(rowB, srcIdxB),
		"hash must not depend on physical column order")
}

func TestCommonColumnIndicesDisjoint(t *testing.T) {
	srcIdx, destIdx := commonColumnIndices([]string{"a", "b"}, []string{"c", "d"}, loader.SanitizeIdentifier)
	assert.Empty(t, srcIdx)
	assert.Empty(t, destIdx)
}
