package sync

import (
	"crypto/sha256"
	"sort"
	"strings"
	"time"

	"github.com/warebase/ferry/pkg/table"
)

// rowHash is a deterministic digest of one row over a fixed column set.
type rowHash [sha256.Size]byte

// hashRow computes a SHA-256 digest over the row's values at the given
// column indices, in the order given. NULL renders as the empty string,
// so a NULL and an empty string hash identically; that matches the
// upstream dedup behavior and is deliberately not "fixed" here.
func hashRow(row []any, indices []int) rowHash {
	h := sha256.New()
	for _, idx := range indices {
		var rendered string
		if row[idx] != nil {
			rendered = renderForHash(row[idx])
		}
		h.Write([]byte(rendered))
		h.Write([]byte{0x1f})
	}
	var sum rowHash
	copy(sum[:], h.Sum(nil))
	return sum
}

// renderForHash gives each value a canonical string form. Timestamps use
// a fixed layout so the rendering does not depend on driver formatting.
func renderForHash(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format("2006-01-02T15:04:05.999999999")
	case []byte:
		return string(val)
	default:
		return table.RenderValue(val)
	}
}

// commonColumnIndices intersects the source and destination column sets,
// comparing names case-insensitively after identifier sanitization (the
// loader sanitizes column names on create, the source does not). It
// returns positionally aligned index slices into each side, ordered by
// the shared canonical name, so hashing is independent of column order on
// either side.
func commonColumnIndices(source, dest []string, sanitize func(string) string) (srcIdx, destIdx []int) {
	canon := func(name string) string {
		return strings.ToLower(sanitize(name))
	}
	destByName := make(map[string]int, len(dest))
	for i, c := range dest {
		destByName[canon(c)] = i
	}

	type pair struct {
		key      string
		src, dst int
	}
	var pairs []pair
	for i, c := range source {
		if j, ok := destByName[canon(c)]; ok {
			pairs = append(pairs, pair{key: canon(c), src: i, dst: j})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	for _, p := range pairs {
		srcIdx = append(srcIdx, p.src)
		destIdx = append(destIdx, p.dst)
	}
	return srcIdx, destIdx
}
