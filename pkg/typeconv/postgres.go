package typeconv

import (
	"fmt"
	"strings"
	"time"
)

// PostgreSQLTypeMapper maps SQL Server types to PostgreSQL types.
type PostgreSQLTypeMapper struct{}

var _ Mapper = (*PostgreSQLTypeMapper)(nil)

// sampleLimit bounds how many values InferType examines.
const sampleLimit = 10

// sqlServerToPostgres is the explicit declared-type mapping table.
// Keys are lower case base types without length or precision.
var sqlServerToPostgres = map[string]string{
	"bigint":           "BIGINT",
	"int":              "INTEGER",
	"smallint":         "SMALLINT",
	"tinyint":          "SMALLINT",
	"bit":              "BOOLEAN",
	"decimal":          "NUMERIC",
	"numeric":          "NUMERIC",
	"money":            "NUMERIC(19,4)",
	"smallmoney":       "NUMERIC(10,4)",
	"float":            "DOUBLE PRECISION",
	"real":             "REAL",
	"datetime":         "TIMESTAMP",
	"datetime2":        "TIMESTAMP",
	"datetimeoffset":   "TIMESTAMP WITH TIME ZONE",
	"smalldatetime":    "TIMESTAMP",
	"date":             "DATE",
	"time":             "TIME",
	"char":             "CHAR",
	"varchar":          "VARCHAR",
	"text":             "TEXT",
	"nchar":            "CHAR",
	"nvarchar":         "VARCHAR",
	"ntext":            "TEXT",
	"binary":           "BYTEA",
	"varbinary":        "BYTEA",
	"image":            "BYTEA",
	"uniqueidentifier": "UUID",
	"xml":              "XML",
	"sql_variant":      "TEXT",
}

func (m *PostgreSQLTypeMapper) MapType(sourceType string) string {
	base := strings.ToLower(strings.TrimSpace(sourceType))
	var length string
	if idx := strings.Index(base, "("); idx != -1 {
		length = base[idx:]
		base = base[:idx]
	}

	pgType, ok := sqlServerToPostgres[base]
	if !ok {
		// Unknown declared type: better to land it as text than to
		// fail the CREATE TABLE.
		return "TEXT"
	}

	// CHAR/VARCHAR keep their declared length; max becomes unbounded TEXT.
	switch base {
	case "char", "nchar", "varchar", "nvarchar":
		if length == "(max)" {
			return "TEXT"
		}
		if length != "" {
			return pgType + strings.ToUpper(length)
		}
	case "decimal", "numeric":
		if length != "" {
			return pgType + length
		}
	}
	return pgType
}

// InferType inspects up to sampleLimit non-nil sample values and returns
// one of: BIGINT, DOUBLE PRECISION, BOOLEAN, TIMESTAMP, UUID, TEXT.
func (m *PostgreSQLTypeMapper) InferType(samples []any) string {
	seen := 0
	allInt, allFloat, allBool, allTime, allUUID := true, true, true, true, true
	for _, v := range samples {
		if v == nil {
			continue
		}
		if seen >= sampleLimit {
			break
		}
		seen++

		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint32, uint64:
			allFloat, allBool, allTime, allUUID = false, false, false, false
		case float32, float64:
			allInt, allBool, allTime, allUUID = false, false, false, false
		case bool:
			allInt, allFloat, allTime, allUUID = false, false, false, false
		case time.Time:
			allInt, allFloat, allBool, allUUID = false, false, false, false
		default:
			allInt, allFloat, allBool, allTime = false, false, false, false
			if !looksLikeUUID(fmt.Sprintf("%v", v)) {
				allUUID = false
			}
		}
	}

	if seen == 0 {
		return "TEXT"
	}
	switch {
	case allInt:
		return "BIGINT"
	case allFloat:
		return "DOUBLE PRECISION"
	case allBool:
		return "BOOLEAN"
	case allTime:
		return "TIMESTAMP"
	case allUUID:
		return "UUID"
	}
	return "TEXT"
}

// looksLikeUUID reports whether s has the canonical 36-char, 4-dash GUID
// shape. The original sampler used exactly this test.
func looksLikeUUID(s string) bool {
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		return false
	}
	for _, c := range s {
		switch {
		case c == '-':
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
