package pipeline

// BatchState is the position of one batch in its lifecycle.
type BatchState int

const (
	BatchPending    BatchState = iota // Fetched, no attempt started
	BatchCalling                      // A transform attempt is running
	BatchRetry                        // The last attempt failed and another will follow
	BatchCommitting                   // Appending output and saving the cursor
	BatchDone                         // Output and cursor are durable
	BatchAborted                      // A stop was requested before an attempt
	BatchFailed                       // Attempts exhausted or a persistence step failed
)

func (s BatchState) String() string {
	switch s {
	case BatchPending:
		return "PENDING"
	case BatchCalling:
		return "CALLING"
	case BatchRetry:
		return "RETRY"
	case BatchCommitting:
		return "COMMITTING"
	case BatchDone:
		return "DONE"
	case BatchAborted:
		return "ABORTED"
	case BatchFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// RunState is the terminal state of a run.
type RunState int

const (
	RunFinished RunState = iota // Every batch committed
	RunFailed                   // A batch failed; the cursor stays at the last commit
	RunAborted                  // A stop was requested between attempts
)

func (s RunState) String() string {
	switch s {
	case RunFinished:
		return "FINISHED"
	case RunFailed:
		return "FAILED"
	case RunAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Progress is reported to Deps.OnBatch on every batch state change.
type Progress struct {
	State      BatchState
	BatchStart int
	BatchEnd   int
	Attempt    int

	// Cursor is the count of committed rows when the event fired.
	Cursor int
	Total  int
}

// Percent returns the committed share of all rows.
func (p Progress) Percent() float64 {
	return percent(p.Cursor, p.Total)
}

func percent(cursor, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(cursor) / float64(total) * 100
}
