package monitor

import "fmt"

// Consistency statuses.
const (
	StatusConsistent   = "CONSISTENT"
	StatusInconsistent = "INCONSISTENT"
)

// ConsistencyRecord is the derived comparison of source and target row
// counts for one table. It is computed, recorded and discarded; it is not
// stored state.
type ConsistencyRecord struct {
	SourceCount           int64
	TargetCount           int64
	MissingRows           int64
	ExtraRows             int64
	ConsistencyPercentage float64
	Status                string
}

// Check computes the consistency record for a pair of counts. The
// percentage is target/source*100, or 0 when the source is empty.
func Check(sourceCount, targetCount int64) ConsistencyRecord {
	record := ConsistencyRecord{
		SourceCount: sourceCount,
		TargetCount: targetCount,
		MissingRows: max64(0, sourceCount-targetCount),
		ExtraRows:   max64(0, targetCount-sourceCount),
		Status:      StatusConsistent,
	}
	if sourceCount > 0 {
		record.ConsistencyPercentage = float64(targetCount) / float64(sourceCount) * 100
	}
	if sourceCount != targetCount {
		record.Status = StatusInconsistent
	}
	return record
}

// Details renders the record for alert messages.
func (r ConsistencyRecord) Details() string {
	return fmt.Sprintf("Source: %d, Target: %d, Missing: %d, Extra: %d",
		r.SourceCount, r.TargetCount, r.MissingRows, r.ExtraRows)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
