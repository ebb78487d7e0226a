package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContracts(t *testing.T) *Contracts {
	t.Helper()
	c, err := NewContracts()
	require.NoError(t, err)
	return c
}

func validPostRow() map[string]any {
	return map[string]any{
		"id":        int64(1),
		"postName":  "hello",
		"content":   "first post",
		"createdBy": int64(1),
		"createdAt": "2026-08-01T00:00:00.000000000Z",
	}
}

func TestValidateRowAccepts(t *testing.T) {
	c := newTestContracts(t)

	tests := []struct {
		table TableName
		row   map[string]any
	}{
		{TableUsers, map[string]any{
			"id":        int64(1),
			"name":      "ada",
			"email":     "ada@example.com",
			"createdAt": "2026-08-01T00:00:00.000000000Z",
		}},
		{TablePosts, validPostRow()},
		{TableComments, map[string]any{
			"id":        int64(1),
			"comment":   "nice",
			"postId":    int64(1),
			"createdBy": int64(2),
			"createdAt": "2026-08-01T00:00:00.000000000Z",
		}},
		{TableComments, map[string]any{
			"id":        int64(2),
			"comment":   "edited",
			"postId":    int64(1),
			"createdBy": int64(2),
			"createdAt": "2026-08-01T00:00:00.000000000Z",
			"updatedAt": "2026-08-02T00:00:00.000000000Z",
			"updatedBy": int64(2),
		}},
		{TableProducts, map[string]any{
			"prodId":    int64(1),
			"prodName":  "widget",
			"price":     "9.99",
			"createdAt": "2026-08-01T00:00:00.000000000Z",
		}},
	}

	for _, tt := range tests {
		assert.NoError(t, c.ValidateRow(tt.table, tt.row), "%s", tt.table)
	}
}

func TestValidateRowRejects(t *testing.T) {
	c := newTestContracts(t)

	t.Run("missing required field", func(t *testing.T) {
		row := validPostRow()
		delete(row, "postName")
		assert.Error(t, c.ValidateRow(TablePosts, row))
	})

	t.Run("wrong type", func(t *testing.T) {
		row := validPostRow()
		row["createdBy"] = "not-a-number"
		assert.Error(t, c.ValidateRow(TablePosts, row))
	})

	t.Run("unknown column", func(t *testing.T) {
		// Definitions are closed: a drifted payload is rejected, not
		// silently passed upstream.
		row := validPostRow()
		row["rating"] = int64(5)
		assert.Error(t, c.ValidateRow(TablePosts, row))
	})

	t.Run("unknown table", func(t *testing.T) {
		err := c.ValidateRow("widgets", map[string]any{"id": int64(1)})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownTable)
	})
}

func TestValidateWireEntry(t *testing.T) {
	c := newTestContracts(t)

	event := map[string]any{
		"id":          int64(1),
		"recordId":    "b7e2a0aa-0000-5000-8000-000000000001",
		"op":          "INSERT",
		"ts":          "2026-08-01T00:00:00.000000000Z",
		"tableOid":    int64(16406),
		"tableSchema": "public",
		"tableName":   "posts",
		"record":      validPostRow(),
	}
	assert.NoError(t, c.ValidateWireEntry(event))

	event["op"] = "UPSERT"
	assert.Error(t, c.ValidateWireEntry(event), "operation outside the enum")

	event["op"] = "INSERT"
	event["tableName"] = "widgets"
	assert.Error(t, c.ValidateWireEntry(event), "table outside the allowlist")
}

func TestValidateEntrySnapshotPresence(t *testing.T) {
	c := newTestContracts(t)
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	base := Entry{
		ID:          1,
		Op:          OpInsert,
		TS:          ts,
		TableOID:    16406,
		TableSchema: "public",
		TableName:   TablePosts,
	}

	t.Run("insert needs record only", func(t *testing.T) {
		e := base
		e.Record = validPostRow()
		assert.NoError(t, c.ValidateEntry(e))

		e.Record = nil
		assert.Error(t, c.ValidateEntry(e))

		e.Record = validPostRow()
		e.OldRecord = validPostRow()
		assert.Error(t, c.ValidateEntry(e))
	})

	t.Run("update needs both", func(t *testing.T) {
		e := base
		e.Op = OpUpdate
		e.Record = validPostRow()
		assert.Error(t, c.ValidateEntry(e))

		e.OldRecord = validPostRow()
		assert.NoError(t, c.ValidateEntry(e))
	})

	t.Run("delete needs old record only", func(t *testing.T) {
		e := base
		e.Op = OpDelete
		e.OldRecord = validPostRow()
		assert.NoError(t, c.ValidateEntry(e))

		e.Record = validPostRow()
		assert.Error(t, c.ValidateEntry(e))
	})

	t.Run("truncate carries no snapshots", func(t *testing.T) {
		e := base
		e.Op = OpTruncate
		assert.NoError(t, c.ValidateEntry(e))

		e.Record = validPostRow()
		assert.Error(t, c.ValidateEntry(e))
	})

	t.Run("unknown operation", func(t *testing.T) {
		e := base
		e.Op = "UPSERT"
		assert.Error(t, c.ValidateEntry(e))
	})

	t.Run("snapshot validated against table contract", func(t *testing.T) {
		e := base
		row := validPostRow()
		row["content"] = int64(9)
		e.Record = row
		assert.Error(t, c.ValidateEntry(e))
	})
}
