package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/relic/internal/audit"
)

// createTestStore creates a store backed by a fresh temp database.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	registry := audit.NewRegistry()
	contracts, err := audit.NewContracts()
	if err != nil {
		t.Fatalf("NewContracts() failed: %v", err)
	}

	s, err := Open(path, registry, contracts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testPostRow returns a contract-valid posts row snapshot.
func testPostRow(id int64) map[string]any {
	return map[string]any{
		"id":        id,
		"postName":  "post",
		"content":   "content",
		"createdBy": int64(1),
		"createdAt": "2026-08-01T00:00:00.000000000Z",
	}
}

// testInsertDraft returns an INSERT draft for the posts table.
func testInsertDraft(t *testing.T, s *Store, id int64, ts time.Time) audit.Draft {
	t.Helper()
	recordID, err := s.registry.ResolveTable(audit.TablePosts, map[string]any{"id": id})
	if err != nil {
		t.Fatalf("ResolveTable() failed: %v", err)
	}
	return audit.Draft{
		RecordID:    recordID,
		Op:          audit.OpInsert,
		TS:          ts,
		TableOID:    16406,
		TableSchema: "public",
		TableName:   audit.TablePosts,
		Record:      testPostRow(id),
	}
}
