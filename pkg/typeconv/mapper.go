// Package typeconv maps SQL Server column types to PostgreSQL column
// types, with a bounded sample-value fallback for columns whose declared
// type is unknown.
package typeconv

// Mapper maps source database types to target database types.
type Mapper interface {
	// MapType returns the PostgreSQL type for a declared source type.
	MapType(sourceType string) string
	// InferType returns the PostgreSQL type for a column whose declared
	// type is unavailable, based on up to sampleLimit non-nil values.
	// It always returns one of the closed set of destination types,
	// defaulting to TEXT.
	InferType(samples []any) string
}

// GetTypeMapper returns the mapper for the PostgreSQL destination.
// There is only one destination today, but callers go through this so a
// second warehouse type slots in the same way.
func GetTypeMapper() Mapper {
	return &PostgreSQLTypeMapper{}
}
