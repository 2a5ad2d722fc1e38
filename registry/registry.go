// Package registry tracks in-flight runs in memory for quick status polling.
//
// The registry is a bounded cache, not an audit trail: it may drop runs and
// trim logs, while the durable store keeps the full record.
package registry

import (
	"sync"
	"time"

	"github.com/runforge/runforge/domain"
	"github.com/runforge/runforge/metrics"
)

// Registry is a bounded, time-boxed cache of active and recent runs.
type Registry struct {
	mu    sync.Mutex
	runs  map[string]*domain.EphemeralRun
	order []string // insertion order, oldest first

	maxRuns      int
	maxTailLines int
	completedTTL time.Duration

	now func() time.Time
}

// New creates a Registry bounded to maxRuns entries and maxTailLines log
// lines per run; finished runs are purged completedTTL after completion.
func New(maxRuns, maxTailLines int, completedTTL time.Duration) *Registry {
	return &Registry{
		runs:         make(map[string]*domain.EphemeralRun),
		maxRuns:      maxRuns,
		maxTailLines: maxTailLines,
		completedTTL: completedTTL,
		now:          time.Now,
	}
}

// Add registers a freshly launched run.
func (r *Registry) Add(runID, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	if _, ok := r.runs[runID]; !ok {
		r.order = append(r.order, runID)
	}
	r.runs[runID] = &domain.EphemeralRun{
		RunID:     runID,
		JobID:     jobID,
		Status:    domain.EphemeralRunning,
		StartedAt: r.now(),
	}
	r.evictOverCeiling()
}

// AppendLog appends one tail-log line, trimming the oldest past the cap.
// Lines for unknown runs are dropped.
func (r *Registry) AppendLog(runID, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	run, ok := r.runs[runID]
	if !ok {
		return
	}
	run.Log = append(run.Log, line)
	if len(run.Log) > r.maxTailLines {
		run.Log = run.Log[len(run.Log)-r.maxTailLines:]
	}
}

// Finish marks a run terminal with its exit details.
func (r *Registry) Finish(runID string, status domain.EphemeralStatus, exitCode *int, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	run, ok := r.runs[runID]
	if !ok {
		return
	}
	now := r.now()
	run.Status = status
	run.FinishedAt = &now
	run.ExitCode = exitCode
	run.Error = errMsg
}

// Get returns a copy of the run's record, or nil if unknown or evicted.
func (r *Registry) Get(runID string) *domain.EphemeralRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	run, ok := r.runs[runID]
	if !ok {
		return nil
	}
	cp := *run
	cp.Log = append([]string(nil), run.Log...)
	return &cp
}

// Len returns the number of tracked runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// sweep lazily purges finished runs past the TTL. Called with the lock held
// on every access or mutation; there is no background timer.
func (r *Registry) sweep() {
	cutoff := r.now().Add(-r.completedTTL)
	for id, run := range r.runs {
		if run.Finished() && run.FinishedAt != nil && run.FinishedAt.Before(cutoff) {
			r.remove(id)
			metrics.RegistryEvictions.WithLabelValues("ttl").Inc()
		}
	}
}

// evictOverCeiling enforces the run-count bound: evict the oldest finished
// run first, falling back to the oldest insertion.
func (r *Registry) evictOverCeiling() {
	for len(r.runs) > r.maxRuns {
		victim := ""
		for _, id := range r.order {
			if run, ok := r.runs[id]; ok && run.Finished() {
				victim = id
				break
			}
		}
		if victim == "" {
			victim = r.order[0]
		}
		r.remove(victim)
		metrics.RegistryEvictions.WithLabelValues("ceiling").Inc()
	}
}

func (r *Registry) remove(runID string) {
	delete(r.runs, runID)
	for i, id := range r.order {
		if id == runID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
