package persistence

import "time"

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	// RunEmpty is a run whose clip source returned nothing.
	RunEmpty RunStatus = "empty"
)

// RunRecord is one pipeline run in the ledger.
type RunRecord struct {
	ID              string
	JobID           string
	ScopeKind       string
	ScopeID         string
	ScopeName       string
	Amount          int
	TimeFrame       time.Duration
	Status          RunStatus
	Clips           int
	DownloadedBytes int64
	Output          string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Dropped         []DroppedClip
}

type DroppedClip struct {
	Index  int
	Step   string
	Reason string
}
