package engine

import (
	"encoding/json"
	"unicode/utf8"
)

const compactionMarker = "…[truncated]"

// CompactResult bounds a raw tool result to maxBytes before it re-enters the
// conversation. JSON payloads are reserialized compactly first; anything
// still over the ceiling is cut at a rune boundary and marked.
func CompactResult(raw []byte, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}

	text := string(raw)
	if json.Valid(raw) {
		var value any
		if err := json.Unmarshal(raw, &value); err == nil {
			if compacted, err := json.Marshal(value); err == nil {
				text = string(compacted)
			}
		}
	}

	if len(text) <= maxBytes {
		return text
	}

	cut := maxBytes - len(compactionMarker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + compactionMarker
}
