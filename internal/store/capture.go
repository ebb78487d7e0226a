package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/relic/internal/audit"
)

// The capture methods realize "every mutation to a tracked table is
// atomically paired with one ledger append": the tracked-table
// statement and the record_version insert run in one transaction, so
// the append happens if and only if the mutation commits.
//
// Row maps cross this API in model shape (camelCase keys); the storage
// layer speaks snake_case column names. The snake_case row returned by
// each method is the authoritative post-statement snapshot as read back
// from the database, which is also what gets published raw on the
// notification channels.

// CaptureInsert inserts a row into a tracked table and appends the
// INSERT version entry.
func (s *Store) CaptureInsert(ctx context.Context, table audit.TableName, row map[string]any) (audit.Entry, map[string]any, error) {
	t, err := s.registry.Lookup(table)
	if err != nil {
		return audit.Entry{}, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture insert: begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := s.now()
	if _, ok := row["createdAt"]; !ok {
		row = cloneRow(row)
		row["createdAt"] = audit.FormatTime(ts)
	}

	cols, vals := snakeColumns(row)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(string(t.Name)),
		strings.Join(quoteAll(cols), ", "),
		placeholders(len(cols)),
	)
	res, err := tx.ExecContext(ctx, query, vals...)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture insert: %w", err)
	}

	key := keyFromRow(t, row)
	if key == nil {
		// Single integer key assigned by the database.
		rowID, err := res.LastInsertId()
		if err != nil {
			return audit.Entry{}, nil, fmt.Errorf("capture insert: row id: %w", err)
		}
		key = map[string]any{t.KeyColumns[0]: rowID}
	}

	snakeRow, err := s.readRowTx(ctx, tx, t, key)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture insert: %w", err)
	}
	camelRow := audit.CamelizeKeys(snakeRow)

	recordID, err := s.registry.Resolve(t.OID, t.KeyColumns, camelRow)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture insert: %w", err)
	}

	draft := audit.Draft{
		RecordID:    recordID,
		Op:          audit.OpInsert,
		TS:          ts,
		TableOID:    t.OID,
		TableSchema: t.Schema,
		TableName:   t.Name,
		Record:      camelRow,
	}
	seq, err := s.appendTx(ctx, tx, draft)
	if err != nil {
		return audit.Entry{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture insert: commit: %w", err)
	}

	return entryFromDraft(seq, draft), snakeRow, nil
}

// CaptureUpdate applies changes to the row identified by key and
// appends the UPDATE version entry linking the before and after
// identities.
func (s *Store) CaptureUpdate(ctx context.Context, table audit.TableName, key, changes map[string]any) (audit.Entry, map[string]any, error) {
	t, err := s.registry.Lookup(table)
	if err != nil {
		return audit.Entry{}, nil, err
	}
	if len(changes) == 0 {
		return audit.Entry{}, nil, fmt.Errorf("capture update: no changes")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: begin tx: %w", err)
	}
	defer tx.Rollback()

	oldSnake, err := s.readRowTx(ctx, tx, t, key)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: %w", err)
	}
	oldCamel := audit.CamelizeKeys(oldSnake)

	setCols, setVals := snakeColumns(changes)
	assignments := make([]string, len(setCols))
	for i, c := range setCols {
		assignments[i] = quoteIdent(c) + " = ?"
	}
	whereClause, whereVals, err := keyPredicate(t, key)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: %w", err)
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s",
		quoteIdent(string(t.Name)),
		strings.Join(assignments, ", "),
		whereClause,
	)
	if _, err := tx.ExecContext(ctx, query, append(setVals, whereVals...)...); err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: %w", err)
	}

	// Re-read under the possibly-changed key.
	newKey := cloneRow(key)
	for kc, v := range changes {
		for _, col := range t.KeyColumns {
			if kc == col {
				newKey[col] = v
			}
		}
	}
	newSnake, err := s.readRowTx(ctx, tx, t, newKey)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: reread: %w", err)
	}
	newCamel := audit.CamelizeKeys(newSnake)

	oldID, err := s.registry.Resolve(t.OID, t.KeyColumns, oldCamel)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: %w", err)
	}
	newID, err := s.registry.Resolve(t.OID, t.KeyColumns, newCamel)
	if err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: %w", err)
	}

	draft := audit.Draft{
		RecordID:    newID,
		OldRecordID: oldID,
		Op:          audit.OpUpdate,
		TS:          s.now(),
		TableOID:    t.OID,
		TableSchema: t.Schema,
		TableName:   t.Name,
		Record:      newCamel,
		OldRecord:   oldCamel,
	}
	seq, err := s.appendTx(ctx, tx, draft)
	if err != nil {
		return audit.Entry{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		return audit.Entry{}, nil, fmt.Errorf("capture update: commit: %w", err)
	}

	return entryFromDraft(seq, draft), newSnake, nil
}

// CaptureDelete removes the row identified by key and appends the
// DELETE version entry. The entry keeps the record's identity on both
// sides of the link so the lifeline stays connected.
func (s *Store) CaptureDelete(ctx context.Context, table audit.TableName, key map[string]any) (audit.Entry, error) {
	t, err := s.registry.Lookup(table)
	if err != nil {
		return audit.Entry{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("capture delete: begin tx: %w", err)
	}
	defer tx.Rollback()

	oldSnake, err := s.readRowTx(ctx, tx, t, key)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("capture delete: %w", err)
	}
	oldCamel := audit.CamelizeKeys(oldSnake)

	whereClause, whereVals, err := keyPredicate(t, key)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("capture delete: %w", err)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(string(t.Name)), whereClause)
	if _, err := tx.ExecContext(ctx, query, whereVals...); err != nil {
		return audit.Entry{}, fmt.Errorf("capture delete: %w", err)
	}

	id, err := s.registry.Resolve(t.OID, t.KeyColumns, oldCamel)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("capture delete: %w", err)
	}

	draft := audit.Draft{
		RecordID:    id,
		OldRecordID: id,
		Op:          audit.OpDelete,
		TS:          s.now(),
		TableOID:    t.OID,
		TableSchema: t.Schema,
		TableName:   t.Name,
		OldRecord:   oldCamel,
	}
	seq, err := s.appendTx(ctx, tx, draft)
	if err != nil {
		return audit.Entry{}, err
	}

	if err := tx.Commit(); err != nil {
		return audit.Entry{}, fmt.Errorf("capture delete: commit: %w", err)
	}

	return entryFromDraft(seq, draft), nil
}

// CaptureTruncate empties a tracked table and appends a single TRUNCATE
// entry carrying the table designator but no identities or snapshots.
func (s *Store) CaptureTruncate(ctx context.Context, table audit.TableName) (audit.Entry, error) {
	t, err := s.registry.Lookup(table)
	if err != nil {
		return audit.Entry{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("capture truncate: begin tx: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s", quoteIdent(string(t.Name)))
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return audit.Entry{}, fmt.Errorf("capture truncate: %w", err)
	}

	draft := audit.Draft{
		Op:          audit.OpTruncate,
		TS:          s.now(),
		TableOID:    t.OID,
		TableSchema: t.Schema,
		TableName:   t.Name,
	}
	seq, err := s.appendTx(ctx, tx, draft)
	if err != nil {
		return audit.Entry{}, err
	}

	if err := tx.Commit(); err != nil {
		return audit.Entry{}, fmt.Errorf("capture truncate: commit: %w", err)
	}

	return entryFromDraft(seq, draft), nil
}

// readRowTx reads one tracked-table row by key within tx, returning it
// as a snake_case keyed map with NULL columns stripped.
func (s *Store) readRowTx(ctx context.Context, tx *sql.Tx, t audit.Table, key map[string]any) (map[string]any, error) {
	whereClause, whereVals, err := keyPredicate(t, key)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", quoteIdent(string(t.Name)), whereClause)
	rows, err := tx.QueryContext(ctx, query, whereVals...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(map[string]any, len(cols))
	for i, c := range cols {
		switch v := vals[i].(type) {
		case nil:
			// NULL columns are omitted keys in snapshots.
		case []byte:
			row[c] = string(v)
		default:
			row[c] = v
		}
	}
	return row, nil
}

// keyPredicate builds the WHERE clause matching a table's key columns.
func keyPredicate(t audit.Table, key map[string]any) (string, []any, error) {
	preds := make([]string, 0, len(t.KeyColumns))
	vals := make([]any, 0, len(t.KeyColumns))
	for _, col := range t.KeyColumns {
		v, ok := key[col]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", audit.ErrMissingKey, col)
		}
		preds = append(preds, quoteIdent(audit.SnakeKey(col))+" = ?")
		vals = append(vals, v)
	}
	return strings.Join(preds, " AND "), vals, nil
}

// keyFromRow extracts the key values from a model-shaped row, or nil if
// any key column is absent (the database will assign it).
func keyFromRow(t audit.Table, row map[string]any) map[string]any {
	key := make(map[string]any, len(t.KeyColumns))
	for _, col := range t.KeyColumns {
		v, ok := row[col]
		if !ok || v == nil {
			return nil
		}
		key[col] = v
	}
	return key
}

// snakeColumns converts a camelCase row map to sorted snake_case
// column/value pairs for statement building.
func snakeColumns(row map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(row))
	byCol := make(map[string]any, len(row))
	for k, v := range row {
		col := audit.SnakeKey(k)
		cols = append(cols, col)
		byCol[col] = v
	}
	sort.Strings(cols)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = byCol[c]
	}
	return cols, vals
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteAll(idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = quoteIdent(id)
	}
	return out
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func entryFromDraft(seq int64, d audit.Draft) audit.Entry {
	return audit.Entry{
		ID:          seq,
		RecordID:    d.RecordID,
		OldRecordID: d.OldRecordID,
		Op:          d.Op,
		TS:          d.TS,
		TableOID:    d.TableOID,
		TableSchema: d.TableSchema,
		TableName:   d.TableName,
		Record:      d.Record,
		OldRecord:   d.OldRecord,
	}
}
