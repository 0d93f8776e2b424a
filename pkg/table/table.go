// Package table contains the shared table identity, column metadata and
// row-batch types passed between the source reader, the destination loader
// and the sync executor.
package table

import (
	"fmt"
	"strings"
	"time"
)

// Target uniquely identifies a synchronizable unit. It is stable across
// runs and is the key for cursor and status rows.
type Target struct {
	ServerName   string
	DatabaseName string
	SchemaName   string
	TableName    string
}

// String returns the fully qualified source name.
func (t Target) String() string {
	return fmt.Sprintf("%s.%s.%s.%s", t.ServerName, t.DatabaseName, t.SchemaName, t.TableName)
}

// Column describes a single source column.
type Column struct {
	Name string
	// Type is the source (SQL Server) data type, lower case, without
	// length or precision, e.g. "int", "nvarchar", "datetime2".
	Type string
	// OrdinalPosition is 1-based, as reported by INFORMATION_SCHEMA.
	OrdinalPosition int
}

// Info holds the metadata probe results for one source table.
type Info struct {
	Target  Target
	Columns []Column
	// PrimaryKey lists the primary key column names in ordinal order.
	// Empty if the table declares no primary key.
	PrimaryKey []string
}

// Column returns the column with the given name, or nil.
func (i *Info) Column(name string) *Column {
	for idx := range i.Columns {
		if strings.EqualFold(i.Columns[idx].Name, name) {
			return &i.Columns[idx]
		}
	}
	return nil
}

// ColumnNames returns all column names in ordinal order.
func (i *Info) ColumnNames() []string {
	names := make([]string, len(i.Columns))
	for idx, c := range i.Columns {
		names[idx] = c.Name
	}
	return names
}

// Rows is a materialized batch of rows read from the source. Values holds
// one slice per row, positionally aligned with Columns.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows in the batch.
func (r *Rows) Len() int {
	return len(r.Values)
}

// ColumnIndex returns the position of the named column, or -1.
func (r *Rows) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// MaxValue returns the maximum value observed in the named column,
// compared in the column's natural string rendering. It is used to advance
// a sync cursor after a batch has been durably loaded. Returns ("", false)
// if the column is missing or the batch is empty.
func (r *Rows) MaxValue(name string) (string, bool) {
	idx := r.ColumnIndex(name)
	if idx < 0 || len(r.Values) == 0 {
		return "", false
	}
	var maxStr string
	found := false
	for _, row := range r.Values {
		if row[idx] == nil {
			continue
		}
		s := RenderValue(row[idx])
		if !found || CompareValues(s, maxStr) > 0 {
			maxStr = s
			found = true
		}
	}
	return maxStr, found
}

// RenderValue converts a driver value to the string form used for cursor
// storage. Timestamps render without a zone suffix so the source database
// can convert the stored cursor back when it is passed as a query
// parameter.
func RenderValue(v any) string {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.Format("2006-01-02 15:04:05.9999999")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// CompareValues compares two rendered cursor values. Numeric-looking values
// compare numerically so that "9" < "10"; everything else compares
// lexicographically, which matches timestamp and GUID renderings.
func CompareValues(a, b string) int {
	// Integers compare exactly by digits; going through float64 would
	// collapse 64-bit values above 2^53.
	if isInteger(a) && isInteger(b) {
		return compareIntegers(a, b)
	}
	an, aok := parseNumeric(a)
	bn, bok := parseNumeric(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func isInteger(s string) bool {
	digits := strings.TrimPrefix(s, "-")
	if digits == "" {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// compareIntegers compares two integer strings of arbitrary length by
// sign, then magnitude.
func compareIntegers(a, b string) int {
	negA := strings.HasPrefix(a, "-")
	negB := strings.HasPrefix(b, "-")
	am := strings.TrimLeft(strings.TrimPrefix(a, "-"), "0")
	bm := strings.TrimLeft(strings.TrimPrefix(b, "-"), "0")
	if am == "" && bm == "" {
		return 0
	}
	if negA != negB {
		if negA {
			return -1
		}
		return 1
	}
	cmp := strings.Compare(am, bm)
	if len(am) != len(bm) {
		cmp = 1
		if len(am) < len(bm) {
			cmp = -1
		}
	}
	if negA {
		return -cmp
	}
	return cmp
}

func parseNumeric(s string) (float64, bool) {
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, false
	}
	// Reject partial parses like "10-abc".
	if fmt.Sprintf("%g", f) != s && !isPlainNumber(s) {
		return 0, false
	}
	return f, true
}

func isPlainNumber(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '-' && i == 0:
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return true
}
