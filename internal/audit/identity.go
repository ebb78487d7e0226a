package audit

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// idNamespace is the fixed application namespace for record identity
// derivation. Changing it would re-identify every record; it is a
// constant of the system, not configuration.
var idNamespace = uuid.MustParse("8c9f6e3a-40f1-5a27-b7d4-1f2a90c35e18")

// Resolve derives the stable identity for the record of the table with
// the given OID whose primary key is keyValues, restricted to
// keyColumns. It is a pure function of its inputs: the serialization is
// canonical JSON and the hash is name-based (UUIDv5), so two processes
// resolving the same record always agree.
//
// Key values are canonicalized to strings before hashing so that a
// caller holding the key as int64 and one holding it as its decimal
// string resolve to the same identity (the capture side reads keys out
// of row snapshots, the query side takes them from user input).
func (r *Registry) Resolve(tableOID int64, keyColumns []string, keyValues map[string]any) (RecordID, error) {
	if _, err := r.LookupOID(tableOID); err != nil {
		return "", err
	}
	if len(keyColumns) == 0 {
		return "", fmt.Errorf("resolve identity: %w: no key columns", ErrMissingKey)
	}

	selected := make(map[string]any, len(keyColumns))
	for _, col := range keyColumns {
		v, ok := keyValues[col]
		if !ok || v == nil {
			return "", fmt.Errorf("resolve identity: %w: %q", ErrMissingKey, col)
		}
		s, err := canonicalKeyValue(v)
		if err != nil {
			return "", fmt.Errorf("resolve identity: column %q: %w", col, err)
		}
		selected[col] = s
	}

	name, err := MarshalCanonical(map[string]any{
		"table_oid":   strconv.FormatInt(tableOID, 10),
		"key_columns": keyColumns,
		"key_values":  selected,
	})
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}

	return RecordID(uuid.NewSHA1(idNamespace, name).String()), nil
}

// ResolveTable is Resolve with the table's current OID and key columns
// taken from the allowlist.
func (r *Registry) ResolveTable(name TableName, keyValues map[string]any) (RecordID, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return r.Resolve(t.OID, t.KeyColumns, keyValues)
}

// canonicalKeyValue renders a key value in its canonical string form.
func canonicalKeyValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		// json.Unmarshal hands integers back as float64; accept exact
		// integers only.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), nil
		}
		return "", fmt.Errorf("non-integer key value %v", val)
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("unsupported key value type %T", v)
	}
}
