// Package sequence assigns per-run sequence numbers.
package sequence

import (
	"context"
	"fmt"
	"sync"
)

// SeqSource answers the highest sequence number already persisted for a run.
// Returns 0 when the run has no events.
type SeqSource interface {
	MaxSeq(ctx context.Context, runID string) (int64, error)
}

// Sequencer hands out strictly increasing sequence numbers per run. All
// assignment, including cold-run seeding from the source, happens under one
// mutex: two concurrent callers can never receive the same or out-of-order
// numbers for a run.
type Sequencer struct {
	mu   sync.Mutex
	src  SeqSource
	last map[string]int64
}

// New creates a Sequencer seeded from src.
func New(src SeqSource) *Sequencer {
	return &Sequencer{
		src:  src,
		last: make(map[string]int64),
	}
}

// Next returns the next sequence number for runID. The first call for a cold
// run seeds the counter from the source; a seed failure propagates so the
// caller never persists an event without a valid sequence.
func (s *Sequencer) Next(ctx context.Context, runID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.last[runID]
	if !ok {
		seeded, err := s.src.MaxSeq(ctx, runID)
		if err != nil {
			return 0, fmt.Errorf("seed sequence for run %s: %w", runID, err)
		}
		last = seeded
	}

	next := last + 1
	s.last[runID] = next
	return next, nil
}

// Forget drops the cached counter for a run. A later reuse of the run id
// re-seeds from storage instead of stale memory.
func (s *Sequencer) Forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, runID)
}

// Reset drops all cached counters.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = make(map[string]int64)
}
