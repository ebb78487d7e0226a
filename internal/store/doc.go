// Package store provides SQLite-backed durable storage for the change
// ledger and the tracked application tables it audits.
//
// The ledger (record_version) is append-only:
//   - Append assigns each entry a monotonically increasing sequence
//     via the table's AUTOINCREMENT primary key
//   - nothing in this package updates or deletes a ledger row
//   - every entry read back is validated against the per-table payload
//     contract; a mismatch surfaces as CorruptEntryError
//
// The Capture* methods pair each tracked-table mutation with its ledger
// append inside a single transaction, so an entry exists if and only if
// the mutation committed.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - single writer connection: SQLite allows one writer at a time
//
// Row snapshots are persisted as canonical JSON (see
// internal/audit.MarshalCanonical) with camelCase keys.
package store
