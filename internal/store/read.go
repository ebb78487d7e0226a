package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/relic/internal/audit"
)

// CorruptEntryError reports a ledger row whose payload no longer
// matches the allowlisted contract for its table. It is never silently
// coerced or dropped: it means the ledger and the schema allowlist have
// diverged.
type CorruptEntryError struct {
	Sequence int64
	Table    audit.TableName
	Err      error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt audit entry %d (table %s): %v", e.Sequence, e.Table, e.Err)
}

func (e *CorruptEntryError) Unwrap() error {
	return e.Err
}

const entryColumns = `id, record_id, old_record_id, op, ts, table_oid, table_schema, table_name, record, old_record`

// ByTable returns entries for one table in insertion order (sequence
// ascending). A limit of 0 returns everything.
func (s *Store) ByTable(ctx context.Context, table audit.TableName, limit int) ([]audit.Entry, error) {
	t, err := s.registry.Lookup(table)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + entryColumns + `
		FROM record_version
		WHERE table_oid = ?
		ORDER BY id ASC
	`
	args := []any{t.OID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryEntries(ctx, query, args...)
}

// ByTimeRange returns entries for one table with ts >= from, sequence
// ascending. Lowering from only ever grows the result set.
func (s *Store) ByTimeRange(ctx context.Context, table audit.TableName, from time.Time) ([]audit.Entry, error) {
	t, err := s.registry.Lookup(table)
	if err != nil {
		return nil, err
	}

	return s.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM record_version
		WHERE table_oid = ? AND ts >= ?
		ORDER BY id ASC
	`, t.OID, audit.FormatTime(from))
}

// ByIdentity returns every entry on a record's lifeline: rows where the
// identity appears on either side of the record_id/old_record_id link,
// sequence ascending. Matching both sides reconstructs the history even
// if the record was re-identified along the way.
func (s *Store) ByIdentity(ctx context.Context, id audit.RecordID) ([]audit.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM record_version
		WHERE record_id = ? OR old_record_id = ?
		ORDER BY id ASC
	`, string(id), string(id))
}

// LastSequence returns the highest sequence number in the ledger, 0 if
// the ledger is empty.
func (s *Store) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM record_version`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last sequence: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	// Return empty slice instead of nil
	if entries == nil {
		entries = []audit.Entry{}
	}

	return entries, nil
}

// scanEntry scans one ledger row and validates it against the table's
// payload contract before handing it upstream.
func (s *Store) scanEntry(rows *sql.Rows) (audit.Entry, error) {
	var (
		e                    audit.Entry
		recordID, oldID      sql.NullString
		op, ts, tableName    string
		recordJSON, oldJSON  sql.NullString
	)

	if err := rows.Scan(
		&e.ID, &recordID, &oldID, &op, &ts,
		&e.TableOID, &e.TableSchema, &tableName,
		&recordJSON, &oldJSON,
	); err != nil {
		return audit.Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.Op = audit.Operation(op)
	e.TableName = audit.TableName(tableName)
	if recordID.Valid {
		e.RecordID = audit.RecordID(recordID.String)
	}
	if oldID.Valid {
		e.OldRecordID = audit.RecordID(oldID.String)
	}

	parsed, err := audit.ParseTime(ts)
	if err != nil {
		return audit.Entry{}, &CorruptEntryError{Sequence: e.ID, Table: e.TableName, Err: err}
	}
	e.TS = parsed

	if e.Record, err = unmarshalSnapshot(recordJSON.String); err != nil {
		return audit.Entry{}, &CorruptEntryError{Sequence: e.ID, Table: e.TableName, Err: err}
	}
	if e.OldRecord, err = unmarshalSnapshot(oldJSON.String); err != nil {
		return audit.Entry{}, &CorruptEntryError{Sequence: e.ID, Table: e.TableName, Err: err}
	}

	if err := s.contracts.ValidateEntry(e); err != nil {
		return audit.Entry{}, &CorruptEntryError{Sequence: e.ID, Table: e.TableName, Err: err}
	}

	return e, nil
}
