// Package domain defines the core domain models for the event pipeline.
package domain

// Level represents event severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Valid reports whether l is one of the known severities.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// Source identifies which collaborator produced an event.
type Source string

const (
	SourceAutomation Source = "automation"
	SourceServer     Source = "server"
)

// Event is one observed occurrence within a run.
//
// Seq is assigned exactly once at persistence time and defines total order
// for the run; producers must not set it.
type Event struct {
	ID       string         `json:"id"`
	RunID    string         `json:"runId"`
	JobID    string         `json:"jobId,omitempty"`
	RunnerID string         `json:"runnerId,omitempty"`
	Ts       string         `json:"ts"` // ISO-8601, producer time
	Level    Level          `json:"level"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta,omitempty"`
	Ctx      map[string]any `json:"ctx,omitempty"`
	Raw      string         `json:"raw,omitempty"`
	Source   Source         `json:"source,omitempty"`
	Seq      int64          `json:"seq,omitempty"`
}

// Well-known discriminated event messages. When Message matches one of these
// and meta.type mirrors it, the meta payload has a stricter expected shape.
const (
	MessageRunStart = "run_start"
	MessageRowStep  = "row_step"
	MessageRowEnd   = "row_end"
	MessageRunEnd   = "run_end"
)
