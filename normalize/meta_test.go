package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidMeta(t *testing.T) {
	cases := []struct {
		name    string
		message string
		meta    map[string]any
		want    bool
	}{
		{"row_step ok", "row_step", map[string]any{"type": "row_step", "row": float64(2), "step": "submit"}, true},
		{"row_step missing row", "row_step", map[string]any{"type": "row_step", "step": "submit"}, false},
		{"row_step wrong row type", "row_step", map[string]any{"type": "row_step", "row": "two"}, false},
		{"row_end ok", "row_end", map[string]any{"type": "row_end", "status": "ok"}, true},
		{"row_end fail", "row_end", map[string]any{"type": "row_end", "status": "fail", "error": "boom"}, true},
		{"row_end bad status", "row_end", map[string]any{"type": "row_end", "status": "done"}, false},
		{"run_start ok", "run_start", map[string]any{"type": "run_start", "taskId": "t1", "totalRows": float64(9)}, true},
		{"run_start bad totalRows", "run_start", map[string]any{"type": "run_start", "totalRows": "nine"}, false},
		{"type mismatch", "row_end", map[string]any{"type": "row_step", "status": "ok"}, false},
		{"unknown message", "user_click", map[string]any{"type": "user_click"}, false},
		{"nil meta", "row_end", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidMeta(tc.message, tc.meta))
		})
	}
}

func TestNormalizeMetaKeepsInvalidAsIs(t *testing.T) {
	meta := map[string]any{"type": "row_step", "row": "two", "extra": true}
	NormalizeMeta("row_step", meta)

	assert.Equal(t, map[string]any{"type": "row_step", "row": "two", "extra": true}, meta)
}

func TestNormalizeMetaCoercesIndexes(t *testing.T) {
	meta := map[string]any{"type": "row_step", "row": float64(7)}
	NormalizeMeta("row_step", meta)

	assert.Equal(t, int64(7), meta["row"])
}
