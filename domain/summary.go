package domain

// RunStatus represents the aggregate status of a run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusOK      RunStatus = "ok"
	RunStatusFail    RunStatus = "fail"
)

// RunSummary is the durable, incrementally-maintained aggregate of a run's
// events. One row per run id, mutated on every insert.
type RunSummary struct {
	RunID         string    `json:"runId"`
	FirstTs       string    `json:"firstTs"`
	LastTs        string    `json:"lastTs"`
	TotalEvents   int64     `json:"totalEvents"`
	ErrorCount    int64     `json:"errorCount"`
	WarnCount     int64     `json:"warnCount"`
	Status        RunStatus `json:"status"`
	LatestMessage string    `json:"latestMessage"`
	LastSeq       int64     `json:"lastSeq"`
}

// NextStatus applies the forward-only status rule: running may move to ok or
// fail, ok may still move to fail (a run is failed if any unit in it failed),
// and fail is terminal.
func NextStatus(cur RunStatus, ev *Event) RunStatus {
	if cur == RunStatusFail {
		return RunStatusFail
	}
	switch ev.Message {
	case MessageRowEnd, MessageRunEnd:
		if status, _ := ev.Meta["status"].(string); status == "ok" {
			if cur == RunStatusRunning {
				return RunStatusOK
			}
			return cur
		}
		return RunStatusFail
	}
	return cur
}

// Merge folds one freshly persisted event into the summary. The event's Seq
// must already be assigned.
func (s *RunSummary) Merge(ev *Event) {
	if s.TotalEvents == 0 {
		s.RunID = ev.RunID
		s.FirstTs = ev.Ts
		s.LastTs = ev.Ts
		s.Status = RunStatusRunning
	}
	if ev.Ts < s.FirstTs {
		s.FirstTs = ev.Ts
	}
	if ev.Ts > s.LastTs {
		s.LastTs = ev.Ts
	}
	s.TotalEvents++
	switch ev.Level {
	case LevelError:
		s.ErrorCount++
	case LevelWarn:
		s.WarnCount++
	}
	s.Status = NextStatus(s.Status, ev)
	s.LatestMessage = ev.Message
	if ev.Seq > s.LastSeq {
		s.LastSeq = ev.Seq
	}
}
