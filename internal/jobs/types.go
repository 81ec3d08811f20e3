package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether a job in this status will not run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload describes one compilation. The scope is kept by name and
// resolved when the job runs.
type JobPayload struct {
	ScopeKind string `json:"scope_kind"`
	ScopeName string `json:"scope_name"`
	Amount    int    `json:"amount"`
	TimeFrame string `json:"time_frame"`
}

// JobResult is what an Executor reports for a finished job.
type JobResult struct {
	RunID  string `json:"run_id,omitempty"`
	Output string `json:"output,omitempty"`
}

type CompileJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Result    JobResult  `json:"result"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
