package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/relic/internal/audit"
)

// marshalSnapshot converts a row snapshot to canonical JSON TEXT for
// the record/old_record columns. Canonical serialization keeps stored
// bytes deterministic for a given snapshot.
func marshalSnapshot(row map[string]any) (string, error) {
	if row == nil {
		return "", nil
	}
	data, err := audit.MarshalCanonical(row)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

// unmarshalSnapshot parses a record/old_record column back into a row
// map. An empty or NULL column yields nil (no snapshot).
func unmarshalSnapshot(data string) (map[string]any, error) {
	if data == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return normalizeNumbers(row), nil
}

// normalizeNumbers converts json.Number values to int64 where exact,
// keeping snapshots integer-typed the way they were written. Non-integer
// numbers stay as strings so validation can reject them explicitly.
func normalizeNumbers(row map[string]any) map[string]any {
	for k, v := range row {
		switch val := v.(type) {
		case json.Number:
			if n, err := val.Int64(); err == nil {
				row[k] = n
			} else {
				row[k] = val.String()
			}
		case map[string]any:
			row[k] = normalizeNumbers(val)
		}
	}
	return row
}
