package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/relic/internal/audit"
)

// Append durably persists one version entry and returns its assigned
// sequence number. Sequence assignment rides on the ledger table's
// AUTOINCREMENT primary key, so concurrent appends never collide and
// the sequence never reuses a value even after process restarts.
//
// Append does not deduplicate: the capture path must submit exactly one
// draft per observed mutation.
func (s *Store) Append(ctx context.Context, draft audit.Draft) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := s.appendTx(ctx, tx, draft)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append entry: commit: %w", err)
	}
	return seq, nil
}

// appendTx writes the ledger row inside an existing transaction. The
// capture path uses this to pair a tracked-table mutation with its
// ledger append atomically.
func (s *Store) appendTx(ctx context.Context, tx *sql.Tx, draft audit.Draft) (int64, error) {
	if !draft.Op.Valid() {
		return 0, fmt.Errorf("append entry: unknown operation %q", draft.Op)
	}
	if _, err := s.registry.LookupOID(draft.TableOID); err != nil {
		return 0, fmt.Errorf("append entry: %w", err)
	}

	recordJSON, err := marshalSnapshot(draft.Record)
	if err != nil {
		return 0, fmt.Errorf("append entry: %w", err)
	}
	oldRecordJSON, err := marshalSnapshot(draft.OldRecord)
	if err != nil {
		return 0, fmt.Errorf("append entry: %w", err)
	}

	ts := draft.TS
	if ts.IsZero() {
		ts = s.now()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO record_version
		(record_id, old_record_id, op, ts, table_oid, table_schema, table_name, record, old_record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nullableID(draft.RecordID),
		nullableID(draft.OldRecordID),
		string(draft.Op),
		audit.FormatTime(ts),
		draft.TableOID,
		draft.TableSchema,
		string(draft.TableName),
		nullableText(recordJSON),
		nullableText(oldRecordJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("append entry: insert: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append entry: sequence: %w", err)
	}
	return seq, nil
}

func nullableID(id audit.RecordID) any {
	if id == "" {
		return nil
	}
	return string(id)
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
