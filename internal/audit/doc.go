// Package audit defines the core model for the change ledger: the
// allowlist of tracked tables, the version entry shape, deterministic
// record identity derivation, and the per-table payload contracts.
//
// # Record identity
//
// A logical record is named by a UUIDv5 derived from
// (table_oid, key_columns, key_values) serialized as canonical JSON.
// The derivation is a pure function: identical inputs produce the
// identical identity across processes and call sites, which is what
// lets an UPDATE's "before" identity match the identity written by the
// preceding INSERT.
//
// # Payload contracts
//
// Every tracked table has a CUE schema. Payloads read back from the
// ledger and payloads arriving on notification channels are unified
// with the schema for their table_name before anything downstream sees
// them; a row that does not match its declared table is rejected, never
// coerced.
package audit
