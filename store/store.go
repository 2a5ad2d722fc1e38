// Package store provides durable persistence for events and run summaries.
package store

import (
	"context"

	"github.com/runforge/runforge/domain"
)

// EventPage is one page of a backward cursor scan. Items are ordered oldest
// to newest; NextCursor is the resume point for the next older page, nil when
// history is exhausted.
type EventPage struct {
	Items      []domain.Event `json:"items"`
	NextCursor *int64         `json:"nextCursor"`
}

// Store is the durable persistence interface. AppendEvent and MergeSummary
// are deliberately separate operations: an append failure is fatal to the
// insert, a summary failure is not, and the caller composes the two.
type Store interface {
	AppendEvent(ctx context.Context, ev *domain.Event) error
	MergeSummary(ctx context.Context, ev *domain.Event) error
	MaxSeq(ctx context.Context, runID string) (int64, error)
	GetEvents(ctx context.Context, runID string, cursor int64, limit int) (*EventPage, error)
	ListRunSummaries(ctx context.Context, limit int) ([]domain.RunSummary, error)
	DeleteRun(ctx context.Context, runID string) error
	DeleteAll(ctx context.Context) error
	Close() error
}
