package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/relic/internal/audit"
)

func TestAppend_AssignsIncreasingSequences(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	var last int64
	for i := int64(1); i <= 5; i++ {
		seq, err := s.Append(ctx, testInsertDraft(t, s, i, ts))
		if err != nil {
			t.Fatalf("Append() %d failed: %v", i, err)
		}
		if seq <= last {
			t.Errorf("sequence %d not greater than previous %d", seq, last)
		}
		last = seq
	}
}

func TestAppend_SequenceSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/test.db"
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	s1 := openAt(t, path)
	seq1, err := s1.Append(ctx, testInsertDraft(t, s1, 1, ts))
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	s1.Close()

	s2 := openAt(t, path)
	defer s2.Close()
	seq2, err := s2.Append(ctx, testInsertDraft(t, s2, 2, ts))
	if err != nil {
		t.Fatalf("Append() after reopen failed: %v", err)
	}
	if seq2 <= seq1 {
		t.Errorf("sequence %d after reopen not greater than %d", seq2, seq1)
	}
}

func TestAppend_RejectsUnknownOperation(t *testing.T) {
	s := createTestStore(t)

	draft := testInsertDraft(t, s, 1, time.Now())
	draft.Op = "UPSERT"

	if _, err := s.Append(context.Background(), draft); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestAppend_RejectsUnknownTableOID(t *testing.T) {
	s := createTestStore(t)

	draft := testInsertDraft(t, s, 1, time.Now())
	draft.TableOID = 999

	if _, err := s.Append(context.Background(), draft); err == nil {
		t.Error("expected error for unknown table OID")
	}
}

func TestAppend_RejectsFloatInSnapshot(t *testing.T) {
	s := createTestStore(t)

	draft := testInsertDraft(t, s, 1, time.Now())
	draft.Record["createdBy"] = 1.5

	if _, err := s.Append(context.Background(), draft); err == nil {
		t.Error("expected error for float in snapshot")
	}
}

func TestAppend_DefaultsTimestamp(t *testing.T) {
	s := createTestStore(t)
	fixed := time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	draft := testInsertDraft(t, s, 1, time.Time{})
	seq, err := s.Append(context.Background(), draft)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	var ts string
	if err := s.db.QueryRow("SELECT ts FROM record_version WHERE id = ?", seq).Scan(&ts); err != nil {
		t.Fatalf("read ts: %v", err)
	}
	if ts != audit.FormatTime(fixed) {
		t.Errorf("ts = %q, expected %q", ts, audit.FormatTime(fixed))
	}
}

func TestAppend_ConcurrentAppendsAllLand(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(id int64) {
			_, err := s.Append(ctx, testInsertDraft(t, s, id, ts))
			errs <- err
		}(int64(i + 1))
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent Append() failed: %v", err)
		}
	}

	last, err := s.LastSequence(ctx)
	if err != nil {
		t.Fatalf("LastSequence() failed: %v", err)
	}
	if last != n {
		t.Errorf("LastSequence() = %d, expected %d", last, n)
	}
}
