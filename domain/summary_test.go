package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rowEnd(status string) *Event {
	return &Event{
		RunID:   "r1",
		Ts:      "2026-08-30T10:00:00Z",
		Level:   LevelInfo,
		Message: MessageRowEnd,
		Meta:    map[string]any{"type": MessageRowEnd, "status": status},
	}
}

func TestNextStatusForwardOnly(t *testing.T) {
	assert.Equal(t, RunStatusOK, NextStatus(RunStatusRunning, rowEnd("ok")))
	assert.Equal(t, RunStatusFail, NextStatus(RunStatusRunning, rowEnd("fail")))
	assert.Equal(t, RunStatusFail, NextStatus(RunStatusOK, rowEnd("fail")), "any failed unit fails the run")
	assert.Equal(t, RunStatusFail, NextStatus(RunStatusFail, rowEnd("ok")), "fail is terminal")
}

func TestNextStatusIgnoresOtherMessages(t *testing.T) {
	ev := &Event{Message: MessageRowStep, Level: LevelError}
	assert.Equal(t, RunStatusRunning, NextStatus(RunStatusRunning, ev))
}

func TestMergeScenario(t *testing.T) {
	var sum RunSummary

	events := []*Event{
		{RunID: "r1", Ts: "2026-08-30T10:00:00Z", Level: LevelInfo, Message: MessageRunStart, Seq: 1},
		{RunID: "r1", Ts: "2026-08-30T10:00:01Z", Level: LevelInfo, Message: MessageRowStep, Seq: 2},
		{RunID: "r1", Ts: "2026-08-30T10:00:02Z", Level: LevelWarn, Message: MessageRowStep, Seq: 3},
		{RunID: "r1", Ts: "2026-08-30T10:00:03Z", Level: LevelError, Message: MessageRowStep, Seq: 4},
	}
	end := rowEnd("ok")
	end.Seq = 5
	events = append(events, end)

	for _, ev := range events {
		sum.Merge(ev)
	}

	assert.Equal(t, "r1", sum.RunID)
	assert.Equal(t, int64(5), sum.TotalEvents)
	assert.Equal(t, int64(1), sum.ErrorCount)
	assert.Equal(t, int64(1), sum.WarnCount)
	assert.Equal(t, RunStatusOK, sum.Status)
	assert.Equal(t, MessageRowEnd, sum.LatestMessage)
	assert.Equal(t, int64(5), sum.LastSeq)
	assert.Equal(t, "2026-08-30T10:00:00Z", sum.FirstTs)
	assert.Equal(t, "2026-08-30T10:00:03Z", sum.LastTs)
}

func TestMergeStatusSequence(t *testing.T) {
	var sum RunSummary
	for i, status := range []string{"ok", "fail", "ok"} {
		ev := rowEnd(status)
		ev.Seq = int64(i + 1)
		sum.Merge(ev)
	}
	assert.Equal(t, RunStatusFail, sum.Status)
}
