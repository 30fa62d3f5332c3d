package parse

import "github.com/tracewire/tracewire/internal/model"

// Completeness thresholds for rating a parsed result.
const (
	highThreshold   = 0.7
	mediumThreshold = 0.4
)

// Score rates a parsed result from field completeness: high when at
// least 70% of fields are non-empty, medium at 40%, low otherwise. A
// result with zero fields scores low.
func Score(fields model.Fields) model.Confidence {
	total := len(fields)
	if total == 0 {
		return model.ConfidenceLow
	}

	filled := 0
	for _, v := range fields {
		if nonEmpty(v) {
			filled++
		}
	}

	completeness := float64(filled) / float64(total)
	switch {
	case completeness >= highThreshold:
		return model.ConfidenceHigh
	case completeness >= mediumThreshold:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// nonEmpty reports whether a field value carries data. Zero values,
// empty strings, false flags and empty collections all count as empty.
func nonEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case []string:
		return len(val) > 0
	case []any:
		return len(val) > 0
	case map[string]string:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
