package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runforge/runforge/config"
	"github.com/runforge/runforge/domain"
)

// SQLiteStore implements Store using SQLite. All writers share one
// connection and tolerate busy/locked contention with bounded retries.
type SQLiteStore struct {
	db *sql.DB

	backoff      []time.Duration
	defaultLimit int
	maxLimit     int
	scanWindow   int
}

// NewSQLiteStore opens the database and runs migrations.
func NewSQLiteStore(cfg config.StoreConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:           db,
		backoff:      cfg.Backoff(),
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		scanWindow:   cfg.FallbackScanWindow,
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			job_id TEXT,
			runner_id TEXT,
			ts TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			meta TEXT,
			ctx TEXT,
			raw TEXT,
			source TEXT,
			seq INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS run_summaries (
			run_id TEXT PRIMARY KEY,
			first_ts TEXT NOT NULL,
			last_ts TEXT NOT NULL,
			total_events INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			warn_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			latest_message TEXT,
			last_seq INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_last_seq ON run_summaries(last_seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendEvent writes one event row. The event's Seq must already be assigned.
// A failure here is fatal to the insert that triggered it.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *domain.Event) error {
	meta, _ := json.Marshal(ev.Meta)
	evctx, _ := json.Marshal(ev.Ctx)
	return withBusyRetry("append event", s.backoff, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO events (event_id, run_id, job_id, runner_id, ts, level, message, meta, ctx, raw, source, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.RunID, nullable(ev.JobID), nullable(ev.RunnerID), ev.Ts, string(ev.Level), ev.Message,
			jsonOrNull(meta), jsonOrNull(evctx), nullable(ev.Raw), nullable(string(ev.Source)), ev.Seq)
		return err
	})
}

// MergeSummary folds one persisted event into the run's summary row,
// inserting it on first sight. The read-modify-write runs in one deferred
// transaction; a concurrent writer surfaces as BUSY on the write upgrade and
// the whole closure is retried, so counts are never lost.
func (s *SQLiteStore) MergeSummary(ctx context.Context, ev *domain.Event) error {
	return withBusyRetry("merge summary", s.backoff, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var sum domain.RunSummary
		var latest sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT run_id, first_ts, last_ts, total_events, error_count, warn_count, status, latest_message, last_seq
			 FROM run_summaries WHERE run_id = ?`, ev.RunID).
			Scan(&sum.RunID, &sum.FirstTs, &sum.LastTs, &sum.TotalEvents, &sum.ErrorCount,
				&sum.WarnCount, &sum.Status, &latest, &sum.LastSeq)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if latest.Valid {
			sum.LatestMessage = latest.String
		}

		sum.Merge(ev)

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO run_summaries
			 (run_id, first_ts, last_ts, total_events, error_count, warn_count, status, latest_message, last_seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, sum.FirstTs, sum.LastTs, sum.TotalEvents, sum.ErrorCount,
			sum.WarnCount, string(sum.Status), sum.LatestMessage, sum.LastSeq); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// MaxSeq returns the highest sequence number persisted for a run, 0 if none.
func (s *SQLiteStore) MaxSeq(ctx context.Context, runID string) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id = ?`, runID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

// GetEvents returns one page of a run's events, scanning backward from cursor
// (0 means latest). Items come back oldest to newest within the page;
// NextCursor is set only when an older page might exist.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, cursor int64, limit int) (*EventPage, error) {
	limit = s.clampLimit(limit)

	query := `SELECT event_id, run_id, job_id, runner_id, ts, level, message, meta, ctx, raw, source, seq
	          FROM events WHERE run_id = ?`
	args := []interface{}{runID}
	if cursor > 0 {
		query += ` AND seq < ?`
		args = append(args, cursor)
	}
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into oldest-to-newest page order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	page := &EventPage{Items: items}
	if len(items) == limit {
		next := items[0].Seq
		page.NextCursor = &next
	}
	return page, nil
}

// ListRunSummaries returns recent run summaries, most recently active first.
// When the summary table is empty it reconstructs summaries from a bounded
// window of recent raw events instead of failing the listing.
func (s *SQLiteStore) ListRunSummaries(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	limit = s.clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, first_ts, last_ts, total_events, error_count, warn_count, status, latest_message, last_seq
		 FROM run_summaries ORDER BY last_seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.RunSummary
	for rows.Next() {
		var sum domain.RunSummary
		var latest sql.NullString
		if err := rows.Scan(&sum.RunID, &sum.FirstTs, &sum.LastTs, &sum.TotalEvents, &sum.ErrorCount,
			&sum.WarnCount, &sum.Status, &latest, &sum.LastSeq); err != nil {
			return nil, err
		}
		if latest.Valid {
			sum.LatestMessage = latest.String
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(summaries) > 0 {
		return summaries, nil
	}
	return s.rebuildSummaries(ctx, limit)
}

// rebuildSummaries derives summaries in memory from the most recent raw
// events. The scan is capped and malformed rows are skipped, so a single bad
// historical row never fails a listing. The reconstruction is not written
// back to the summary table.
func (s *SQLiteStore) rebuildSummaries(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, run_id, job_id, runner_id, ts, level, message, meta, ctx, raw, source, seq
		 FROM events ORDER BY rowid DESC LIMIT ?`, s.scanWindow)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var window []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			continue // skip-and-continue: one bad row must not fail the listing
		}
		window = append(window, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The window was scanned newest-first; merge oldest-first so the
	// forward-only status rule sees events in order.
	byRun := make(map[string]*domain.RunSummary)
	for i := len(window) - 1; i >= 0; i-- {
		ev := &window[i]
		sum, ok := byRun[ev.RunID]
		if !ok {
			sum = &domain.RunSummary{}
			byRun[ev.RunID] = sum
		}
		sum.Merge(ev)
	}

	summaries := make([]domain.RunSummary, 0, len(byRun))
	for _, sum := range byRun {
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastSeq > summaries[j].LastSeq
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// DeleteRun purges one run's events and summary.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	return withBusyRetry("delete run", s.backoff, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE run_id = ?`, runID); err != nil {
			return err
		}
		_, err := s.db.ExecContext(ctx, `DELETE FROM run_summaries WHERE run_id = ?`, runID)
		return err
	})
}

// DeleteAll purges every event and summary.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	return withBusyRetry("delete all", s.backoff, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
			return err
		}
		_, err := s.db.ExecContext(ctx, `DELETE FROM run_summaries`)
		return err
	})
}

func (s *SQLiteStore) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// scanEvent reads one event row. Meta and ctx payloads that fail to decode
// are dropped from the event rather than failing the scan.
func scanEvent(rows *sql.Rows) (*domain.Event, error) {
	var ev domain.Event
	var jobID, runnerID, meta, evctx, raw, source sql.NullString
	if err := rows.Scan(&ev.ID, &ev.RunID, &jobID, &runnerID, &ev.Ts, &ev.Level, &ev.Message,
		&meta, &evctx, &raw, &source, &ev.Seq); err != nil {
		return nil, err
	}
	if jobID.Valid {
		ev.JobID = jobID.String
	}
	if runnerID.Valid {
		ev.RunnerID = runnerID.String
	}
	if meta.Valid {
		_ = json.Unmarshal([]byte(meta.String), &ev.Meta)
	}
	if evctx.Valid {
		_ = json.Unmarshal([]byte(evctx.String), &ev.Ctx)
	}
	if raw.Valid {
		ev.Raw = raw.String
	}
	if source.Valid {
		ev.Source = domain.Source(source.String)
	}
	return &ev, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func jsonOrNull(b []byte) sql.NullString {
	if len(b) == 0 || string(b) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
