package tariff

import "time"

// RunKind identifies which cycle produced a run record.
type RunKind string

const (
	RunIngest RunKind = "ingest"
	RunExport RunKind = "export"
)

// RunStatus is the terminal outcome of a cycle.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunEmpty     RunStatus = "empty"
	RunFailed    RunStatus = "failed"
	RunDisabled  RunStatus = "disabled"
	RunSkipped   RunStatus = "skipped"
)

// Run records one finished ingestion or export cycle.
type Run struct {
	ID            string
	Kind          RunKind
	Date          Date
	Status        RunStatus
	Rows          int
	Targets       []string
	FailedTargets []string
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration returns how long the cycle took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunFilter narrows ListRuns. Zero values mean no filter; Limit <= 0 means DefaultRunLimit.
type RunFilter struct {
	Kind  RunKind
	Limit int
}

// DefaultRunLimit caps ListRuns when no limit is given.
const DefaultRunLimit = 50

// EffectiveLimit returns the limit to apply.
func (f RunFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultRunLimit
	}
	return f.Limit
}
