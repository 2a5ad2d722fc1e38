package domain

import "time"

// EphemeralStatus represents the live status of an in-flight job.
type EphemeralStatus string

const (
	EphemeralRunning EphemeralStatus = "RUNNING"
	EphemeralSuccess EphemeralStatus = "SUCCESS"
	EphemeralFailed  EphemeralStatus = "FAILED"
)

// EphemeralRun tracks an in-flight job for quick status polling. It lives in
// memory only and is allowed to lose data; the durable store is the source
// of truth.
type EphemeralRun struct {
	RunID      string          `json:"runId"`
	JobID      string          `json:"jobId,omitempty"`
	Status     EphemeralStatus `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	ExitCode   *int            `json:"exitCode,omitempty"`
	Error      string          `json:"error,omitempty"`
	Log        []string        `json:"log,omitempty"`
}

// Finished reports whether the run reached a terminal state.
func (r *EphemeralRun) Finished() bool {
	return r.Status != EphemeralRunning
}
