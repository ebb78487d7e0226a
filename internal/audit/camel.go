package audit

import "strings"

// CamelizeKey converts a snake_case column name to the camelCase field
// name used in the audit model, e.g. "old_record_id" -> "oldRecordId".
// Names without underscores pass through unchanged.
func CamelizeKey(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	parts := strings.Split(key, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// SnakeKey converts a camelCase field name back to the snake_case
// column name, e.g. "oldRecordId" -> "old_record_id". It is the inverse
// of CamelizeKey for the names this module uses.
func SnakeKey(key string) string {
	return toSnakeCase(key)
}

// CamelizeKeys rewrites every key of a snake_case keyed map to
// camelCase, recursing into nested maps (row snapshots inside an audit
// event). Values are not copied.
func CamelizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = CamelizeKeys(nested)
		}
		out[CamelizeKey(k)] = v
	}
	return out
}
