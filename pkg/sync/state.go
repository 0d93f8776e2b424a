package sync

// TableState is the per-table sync state machine. A table moves
// PENDING → READING_SOURCE → LOADING_DESTINATION → VALIDATING and ends in
// SUCCEEDED or FAILED. Terminal states are not retried within a run.
type TableState int

const (
	TableStatePending TableState = iota
	TableStateReadingSource
	TableStateLoadingDestination
	TableStateValidating
	TableStateSucceeded
	TableStateFailed
)

func (s TableState) String() string {
	switch s {
	case TableStatePending:
		return "PENDING"
	case TableStateReadingSource:
		return "READING_SOURCE"
	case TableStateLoadingDestination:
		return "LOADING_DESTINATION"
	case TableStateValidating:
		return "VALIDATING"
	case TableStateSucceeded:
		return "SUCCEEDED"
	case TableStateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Overall run statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusPartial = "PARTIAL"
	StatusFailed  = "FAILED"
)

// Summary aggregates one sync pass. The executor owns its lifecycle; it
// is never persisted as-is (the monitor records a session row derived
// from it).
type Summary struct {
	Databases       int
	Tables          int
	SuccessfulSyncs int
	FailedSyncs     int
	SkippedTables   int
	RowsProcessed   int64
	RowsInserted    int64
}

// OverallStatus derives the run status: SUCCESS iff no failures, FAILED
// iff no successes, PARTIAL otherwise.
func (s *Summary) OverallStatus() string {
	switch {
	case s.FailedSyncs == 0:
		return StatusSuccess
	case s.SuccessfulSyncs > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func (s *Summary) add(other Summary) {
	s.Databases += other.Databases
	s.Tables += other.Tables
	s.SuccessfulSyncs += other.SuccessfulSyncs
	s.FailedSyncs += other.FailedSyncs
	s.SkippedTables += other.SkippedTables
	s.RowsProcessed += other.RowsProcessed
	s.RowsInserted += other.RowsInserted
}
