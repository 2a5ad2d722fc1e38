package normalize

import "github.com/runforge/runforge/domain"

// NormalizeMeta applies the strict shape check for well-known discriminated
// messages when meta.type mirrors the message. On success, numeric indexes
// are coerced to integers; on any mismatch the meta is left exactly as-is.
// Best-effort by design of the pipeline: this never fails the event.
func NormalizeMeta(message string, meta map[string]any) {
	if !ValidMeta(message, meta) {
		return
	}
	for _, key := range []string{"row", "totalRows"} {
		if f, ok := meta[key].(float64); ok && f == float64(int64(f)) {
			meta[key] = int64(f)
		}
	}
}

// ValidMeta reports whether meta satisfies the strict shape for a well-known
// message. Unknown messages, or meta whose type field does not mirror the
// message, are not candidates and report false.
func ValidMeta(message string, meta map[string]any) bool {
	if meta == nil {
		return false
	}
	if typ, _ := meta["type"].(string); typ != message {
		return false
	}

	switch message {
	case domain.MessageRunStart:
		return optString(meta, "taskId") && optNumber(meta, "totalRows")
	case domain.MessageRowStep:
		_, hasRow := meta["row"].(float64)
		_, hasIntRow := meta["row"].(int64)
		return (hasRow || hasIntRow) && optString(meta, "step") && optString(meta, "title")
	case domain.MessageRowEnd:
		return okFailStatus(meta) && optNumber(meta, "row") && optString(meta, "error")
	case domain.MessageRunEnd:
		return okFailStatus(meta)
	}
	return false
}

func okFailStatus(meta map[string]any) bool {
	status, _ := meta["status"].(string)
	return status == "ok" || status == "fail"
}

func optString(meta map[string]any, key string) bool {
	v, present := meta[key]
	if !present {
		return true
	}
	_, ok := v.(string)
	return ok
}

func optNumber(meta map[string]any, key string) bool {
	v, present := meta[key]
	if !present {
		return true
	}
	switch v.(type) {
	case float64, int64:
		return true
	}
	return false
}
