package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCamelizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"id", "id"},
		{"post_name", "postName"},
		{"old_record_id", "oldRecordId"},
		{"table_oid", "tableOid"},
		{"created_at", "createdAt"},
		{"prod_id", "prodId"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CamelizeKey(tt.in), tt.in)
	}
}

func TestSnakeKeyInvertsCamelizeKey(t *testing.T) {
	keys := []string{"id", "post_name", "old_record_id", "created_at", "prod_id", "updated_by"}
	for _, k := range keys {
		assert.Equal(t, k, SnakeKey(CamelizeKey(k)), k)
	}
}

func TestCamelizeKeysRecursesIntoSnapshots(t *testing.T) {
	in := map[string]any{
		"record_id":  "abc",
		"table_name": "posts",
		"record": map[string]any{
			"post_name":  "hello",
			"created_by": int64(1),
		},
	}

	out := CamelizeKeys(in)

	assert.Equal(t, "abc", out["recordId"])
	assert.Equal(t, "posts", out["tableName"])
	record, ok := out["record"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "hello", record["postName"])
	assert.Equal(t, int64(1), record["createdBy"])

	// Input must not be mutated.
	assert.Contains(t, in, "record_id")
	assert.Contains(t, in["record"], "post_name")
}
