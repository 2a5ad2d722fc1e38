package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/runforge/runforge/domain"
	"github.com/runforge/runforge/metrics"
	"github.com/runforge/runforge/store"
)

// Live wire messages. A subscriber first receives one batch message with
// recent history, then one event message per stored event. Pushed events
// carry no seq: live consumers key off arrival order, history consumers off
// the cursor API.
type LiveMessage struct {
	Type  string         `json:"type"` // "batch" or "event"
	Items []domain.Event `json:"items,omitempty"`
	Event *domain.Event  `json:"event,omitempty"`
	RunID string         `json:"runId"`
}

// Ingest persists one normalized event and fans it out.
//
// The three steps compose deliberately: a sequence or append failure is fatal
// to this insert; a summary failure is logged and swallowed because the
// summary is a derived, reconstructible view; the live push is best-effort.
func (s *Service) Ingest(ctx context.Context, ev *domain.Event) (*domain.Event, error) {
	seq, err := s.seq.Next(ctx, ev.RunID)
	if err != nil {
		return nil, err
	}
	ev.Seq = seq

	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("append event for run %s: %w", ev.RunID, err)
	}

	if err := s.store.MergeSummary(ctx, ev); err != nil {
		metrics.SummaryFailures.Inc()
		s.logger.Warn("summary update failed",
			zap.String("run_id", ev.RunID), zap.Int64("seq", ev.Seq), zap.Error(err))
	}

	metrics.EventsIngested.WithLabelValues(string(ev.Source), string(ev.Level)).Inc()
	s.push(ev)
	return ev, nil
}

// push broadcasts a stored event to the run's room, seq stripped.
func (s *Service) push(ev *domain.Event) {
	cp := *ev
	cp.Seq = 0
	if err := s.hub.BroadcastJSON(ev.RunID, LiveMessage{Type: "event", Event: &cp, RunID: ev.RunID}); err != nil {
		s.logger.Warn("live push failed", zap.String("run_id", ev.RunID), zap.Error(err))
	}
}

// Events returns one history page for a run.
func (s *Service) Events(ctx context.Context, runID string, cursor int64, limit int) (*store.EventPage, error) {
	return s.store.GetEvents(ctx, runID, cursor, limit)
}

// ReplayBatch returns the most recent events for a run, used to give a new
// live subscriber context before the stream starts.
func (s *Service) ReplayBatch(ctx context.Context, runID string) ([]domain.Event, error) {
	page, err := s.store.GetEvents(ctx, runID, 0, s.config.Live.ReplayBatch)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Summaries lists recent run summaries.
func (s *Service) Summaries(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	return s.store.ListRunSummaries(ctx, limit)
}

// PurgeRun deletes a run's history, drops its sequencer state and closes its
// live room. Later pushes to the same run id still reach whoever resubscribes
// but will not reappear in history.
func (s *Service) PurgeRun(ctx context.Context, runID string) error {
	if err := s.store.DeleteRun(ctx, runID); err != nil {
		return err
	}
	s.seq.Forget(runID)
	s.hub.DropRoom(runID)
	return nil
}

// PurgeAll deletes all history and resets sequencer and room state.
func (s *Service) PurgeAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return err
	}
	s.seq.Reset()
	s.hub.DropAll()
	return nil
}

// RunClosed drops the sequencer's cached counter when a run's process exits,
// so a colliding id would re-seed from storage.
func (s *Service) RunClosed(runID string) {
	s.seq.Forget(runID)
}
