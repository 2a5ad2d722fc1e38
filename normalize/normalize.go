// Package normalize turns raw job output and structured submissions into
// canonical events. Normalization is total: any input line produces a
// best-effort event, never an error.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runforge/runforge/domain"
)

// Ambient carries the provenance of the stream a line arrived on. Fields are
// used as fallbacks when the line does not embed its own.
type Ambient struct {
	RunID    string
	JobID    string
	RunnerID string
	Source   domain.Source
}

// runPrefix matches a "[TAG:runId] " prefix on plain text lines.
var runPrefix = regexp.MustCompile(`^\[([A-Za-z][A-Za-z0-9_-]*):([^\]\s]+)\]\s*`)

// Line normalizes one raw output line. The parse ladder is: canonical event
// JSON, then tagged envelope JSON, then plain text.
func Line(raw string, amb Ambient) *domain.Event {
	trimmed := strings.TrimSpace(raw)
	if ev, ok := parseCanonical(trimmed); ok {
		return finish(ev, raw, amb)
	}
	if ev, ok := parseEnvelope(trimmed); ok {
		return finish(ev, raw, amb)
	}
	return finish(parsePlain(trimmed, amb), raw, amb)
}

// Submission normalizes a structured ingest body: either a canonical
// Event-shaped object or a {line, runId?, jobId?, runnerId?} wrapper. Unlike
// Line, an unparseable body is an error so the boundary can reject it.
func Submission(body []byte, amb Ambient) (*domain.Event, error) {
	var probe struct {
		Line     *string `json:"line"`
		RunID    string  `json:"runId"`
		JobID    string  `json:"jobId"`
		RunnerID string  `json:"runnerId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("invalid event body: %w", err)
	}

	if probe.Line != nil {
		if probe.RunID != "" {
			amb.RunID = probe.RunID
		}
		if probe.JobID != "" {
			amb.JobID = probe.JobID
		}
		if probe.RunnerID != "" {
			amb.RunnerID = probe.RunnerID
		}
		return Line(*probe.Line, amb), nil
	}

	var ev domain.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("invalid event body: %w", err)
	}
	if ev.Message == "" {
		return nil, errors.New("invalid event body: message is required")
	}
	return finish(&ev, "", amb), nil
}

// parseCanonical accepts JSON that already validates as an Event shape.
func parseCanonical(raw string) (*domain.Event, bool) {
	if !strings.HasPrefix(raw, "{") {
		return nil, false
	}
	var ev domain.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, false
	}
	if ev.Message == "" {
		return nil, false
	}
	if ev.Level != "" && !ev.Level.Valid() {
		return nil, false
	}
	return &ev, true
}

// parseEnvelope accepts JSON tagged with {"tag":"evt", ...}, extracting known
// fields one by one so a partially well-formed envelope still yields an event.
func parseEnvelope(raw string) (*domain.Event, bool) {
	if !strings.HasPrefix(raw, "{") {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	if tag, _ := m["tag"].(string); tag != "evt" {
		return nil, false
	}

	ev := &domain.Event{
		ID:       str(m, "id"),
		RunID:    str(m, "runId"),
		JobID:    str(m, "jobId"),
		RunnerID: str(m, "runnerId"),
		Ts:       str(m, "ts"),
		Message:  str(m, "message"),
	}
	if lvl := domain.Level(str(m, "level")); lvl.Valid() {
		ev.Level = lvl
	} else {
		ev.Level = inferLevel(ev.Message)
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		ev.Meta = meta
	}
	if ctx, ok := m["ctx"].(map[string]any); ok {
		ev.Ctx = ctx
	}
	return ev, true
}

// str extracts a string field from a decoded JSON object, "" when absent or
// not a string.
func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// parsePlain treats the line as unstructured text.
func parsePlain(raw string, amb Ambient) *domain.Event {
	text := raw
	runID := ""
	if match := runPrefix.FindStringSubmatch(text); match != nil {
		runID = match[2]
		text = text[len(match[0]):]
	}
	return &domain.Event{
		RunID:   runID,
		Level:   inferLevel(text),
		Message: text,
	}
}

// inferLevel classifies free text by substring heuristics.
func inferLevel(text string) domain.Level {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "deprecat"):
		return domain.LevelWarn
	case strings.Contains(lower, "unhandled"), strings.Contains(lower, "error"):
		return domain.LevelError
	case strings.Contains(lower, "debug"):
		return domain.LevelDebug
	}
	return domain.LevelInfo
}

// finish fills ambient fallbacks and generated defaults, and applies the
// side-channel meta normalization. Producer-supplied seq is discarded.
func finish(ev *domain.Event, raw string, amb Ambient) *domain.Event {
	if ev.RunID == "" {
		ev.RunID = amb.RunID
	}
	if ev.JobID == "" {
		ev.JobID = amb.JobID
	}
	if ev.RunnerID == "" {
		ev.RunnerID = amb.RunnerID
	}
	if ev.ID == "" {
		ev.ID = "evt_" + uuid.New().String()[:8]
	}
	if ev.Ts == "" {
		ev.Ts = time.Now().UTC().Format(time.RFC3339)
	}
	if ev.Level == "" {
		ev.Level = inferLevel(ev.Message)
	}
	if ev.Source == "" {
		if amb.Source != "" {
			ev.Source = amb.Source
		} else {
			ev.Source = domain.SourceAutomation
		}
	}
	if ev.Raw == "" && raw != "" {
		ev.Raw = raw
	}
	ev.Seq = 0
	NormalizeMeta(ev.Message, ev.Meta)
	return ev
}
