// Package history is the read side of the change ledger: queries over
// tables, time ranges and record lifelines.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/relic/internal/audit"
	"github.com/roach88/relic/internal/store"
)

// ErrNoSuchRecord means an identity resolved cleanly but the ledger has
// never seen it. Since an INSERT always writes at least one entry, zero
// entries means the key never identified a tracked record (stale or
// wrong key), not "record never changed".
var ErrNoSuchRecord = errors.New("no ledger entries for record")

// Engine answers history queries. It holds no mutable state; all
// methods are safe for concurrent use and run fully in parallel with
// appends.
type Engine struct {
	store    *store.Store
	registry *audit.Registry
}

// New builds a query engine over an open store.
func New(st *store.Store, registry *audit.Registry) *Engine {
	return &Engine{store: st, registry: registry}
}

// RecordHistory returns a record's lifeline: every version entry for
// the record identified by keyValues in the named table, in sequence
// order. The identity is resolved with the table's current OID and key
// columns, exactly as the capture side resolves it.
func (e *Engine) RecordHistory(ctx context.Context, table audit.TableName, keyValues map[string]any) ([]audit.Entry, error) {
	t, err := e.registry.Lookup(table)
	if err != nil {
		return nil, err
	}

	id, err := e.registry.Resolve(t.OID, t.KeyColumns, keyValues)
	if err != nil {
		return nil, err
	}

	entries, err := e.store.ByIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrNoSuchRecord, table, keyValues)
	}
	return entries, nil
}

// TableHistory returns entries for one table in insertion order,
// bounded by limit when limit > 0.
func (e *Engine) TableHistory(ctx context.Context, table audit.TableName, limit int) ([]audit.Entry, error) {
	return e.store.ByTable(ctx, table, limit)
}

// TableHistorySince returns entries for one table observed at or after
// from, in sequence order.
func (e *Engine) TableHistorySince(ctx context.Context, table audit.TableName, from time.Time) ([]audit.Entry, error) {
	return e.store.ByTimeRange(ctx, table, from)
}
