package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/runforge/runforge/config"
	"github.com/runforge/runforge/domain"
)

func testConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		DSN:                "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=2000",
		BackoffMs:          []int{1, 2, 5},
		DefaultLimit:       100,
		MaxLimit:           500,
		FallbackScanWindow: 1000,
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(testConfig(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testEvent(runID string, seq int64, message string, level domain.Level) *domain.Event {
	return &domain.Event{
		ID:      fmt.Sprintf("evt_%s_%d", runID, seq),
		RunID:   runID,
		Ts:      fmt.Sprintf("2026-08-30T10:00:%02dZ", seq%60),
		Level:   level,
		Message: message,
		Seq:     seq,
	}
}

func insert(t *testing.T, st *SQLiteStore, ev *domain.Event) {
	t.Helper()
	ctx := context.Background()
	if err := st.AppendEvent(ctx, ev); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if err := st.MergeSummary(ctx, ev); err != nil {
		t.Fatalf("MergeSummary failed: %v", err)
	}
}

func TestAppendAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	ev := testEvent("r1", 1, "run_start", domain.LevelInfo)
	ev.JobID = "j1"
	ev.Meta = map[string]any{"type": "run_start", "taskId": "t1"}
	ev.Ctx = map[string]any{"field": "email"}
	ev.Raw = "raw line"
	ev.Source = domain.SourceAutomation
	insert(t, st, ev)

	page, err := st.GetEvents(ctx, "r1", 0, 1)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 event, got %d", len(page.Items))
	}
	got := page.Items[0]
	if got.ID != ev.ID || got.JobID != "j1" || got.Seq != 1 {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Meta["taskId"] != "t1" || got.Ctx["field"] != "email" {
		t.Fatalf("payloads not round-tripped: %+v", got)
	}
	if page.NextCursor == nil || *page.NextCursor != 1 {
		t.Fatalf("expected full page to set next cursor, got %+v", page.NextCursor)
	}
}

func TestMaxSeq(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	max, err := st.MaxSeq(ctx, "r1")
	if err != nil {
		t.Fatalf("MaxSeq failed: %v", err)
	}
	if max != 0 {
		t.Fatalf("expected 0 for empty run, got %d", max)
	}

	insert(t, st, testEvent("r1", 1, "a", domain.LevelInfo))
	insert(t, st, testEvent("r1", 2, "b", domain.LevelInfo))

	max, err = st.MaxSeq(ctx, "r1")
	if err != nil {
		t.Fatalf("MaxSeq failed: %v", err)
	}
	if max != 2 {
		t.Fatalf("expected 2, got %d", max)
	}
}

func TestGetEventsPaginationWalk(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	const total = 25
	for i := 1; i <= total; i++ {
		insert(t, st, testEvent("r1", int64(i), fmt.Sprintf("m%d", i), domain.LevelInfo))
	}

	seen := map[int64]bool{}
	cursor := int64(0)
	pages := 0
	for {
		page, err := st.GetEvents(ctx, "r1", cursor, 10)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		pages++

		// Oldest to newest within each page.
		for i := 1; i < len(page.Items); i++ {
			if page.Items[i].Seq <= page.Items[i-1].Seq {
				t.Fatalf("page not in ascending seq order: %+v", page.Items)
			}
		}
		for _, ev := range page.Items {
			if seen[ev.Seq] {
				t.Fatalf("seq %d visited twice", ev.Seq)
			}
			seen[ev.Seq] = true
		}

		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	if len(seen) != total {
		t.Fatalf("expected to visit all %d events, saw %d", total, len(seen))
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages (10+10+5), got %d", pages)
	}
}

func TestGetEventsClampsLimit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	insert(t, st, testEvent("r1", 1, "a", domain.LevelInfo))

	// Absurd limits fall back to the configured bounds instead of failing.
	if _, err := st.GetEvents(ctx, "r1", 0, -5); err != nil {
		t.Fatalf("GetEvents with negative limit failed: %v", err)
	}
	if _, err := st.GetEvents(ctx, "r1", 0, 1<<30); err != nil {
		t.Fatalf("GetEvents with huge limit failed: %v", err)
	}
}

func TestSummaryScenario(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	msgs := []struct {
		message string
		meta    map[string]any
	}{
		{"run_start", map[string]any{"type": "run_start"}},
		{"row_step", nil},
		{"row_step", nil},
		{"row_step", nil},
		{"row_end", map[string]any{"type": "row_end", "status": "ok"}},
	}
	for i, m := range msgs {
		ev := testEvent("r1", int64(i+1), m.message, domain.LevelInfo)
		ev.Meta = m.meta
		insert(t, st, ev)
	}

	summaries, err := st.ListRunSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ListRunSummaries failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	sum := summaries[0]
	if sum.RunID != "r1" || sum.TotalEvents != 5 || sum.Status != domain.RunStatusOK || sum.LatestMessage != "row_end" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.LastSeq != 5 {
		t.Fatalf("expected lastSeq 5, got %d", sum.LastSeq)
	}
}

func TestSummaryStatusForwardOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for i, status := range []string{"ok", "fail", "ok"} {
		ev := testEvent("r1", int64(i+1), "row_end", domain.LevelInfo)
		ev.Meta = map[string]any{"type": "row_end", "status": status}
		insert(t, st, ev)
	}

	summaries, err := st.ListRunSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ListRunSummaries failed: %v", err)
	}
	if summaries[0].Status != domain.RunStatusFail {
		t.Fatalf("expected fail, got %s", summaries[0].Status)
	}
}

func TestListRunSummariesOrderedByRecency(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	insert(t, st, testEvent("old", 1, "a", domain.LevelInfo))
	insert(t, st, testEvent("old", 2, "b", domain.LevelInfo))
	insert(t, st, testEvent("new", 3, "c", domain.LevelInfo))

	summaries, err := st.ListRunSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ListRunSummaries failed: %v", err)
	}
	if len(summaries) != 2 || summaries[0].RunID != "new" || summaries[1].RunID != "old" {
		t.Fatalf("unexpected order: %+v", summaries)
	}
}

func TestListRunSummariesFallbackReconstruction(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// Events appended without summary maintenance: the backfill scenario.
	for i := 1; i <= 3; i++ {
		ev := testEvent("r1", int64(i), "row_step", domain.LevelInfo)
		if i == 3 {
			ev.Message = "row_end"
			ev.Meta = map[string]any{"type": "row_end", "status": "fail"}
			ev.Level = domain.LevelError
		}
		if err := st.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	summaries, err := st.ListRunSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ListRunSummaries failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 reconstructed summary, got %d", len(summaries))
	}
	sum := summaries[0]
	if sum.TotalEvents != 3 || sum.Status != domain.RunStatusFail || sum.ErrorCount != 1 {
		t.Fatalf("unexpected reconstructed summary: %+v", sum)
	}
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	insert(t, st, testEvent("r1", 1, "a", domain.LevelInfo))
	insert(t, st, testEvent("r2", 1, "b", domain.LevelInfo))

	if err := st.DeleteRun(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	page, err := st.GetEvents(ctx, "r1", 0, 10)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected r1 events gone, got %d", len(page.Items))
	}

	summaries, err := st.ListRunSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ListRunSummaries failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].RunID != "r2" {
		t.Fatalf("expected only r2 summary, got %+v", summaries)
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	insert(t, st, testEvent("r1", 1, "a", domain.LevelInfo))
	insert(t, st, testEvent("r2", 1, "b", domain.LevelInfo))

	if err := st.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	summaries, err := st.ListRunSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ListRunSummaries failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no summaries, got %+v", summaries)
	}
}
