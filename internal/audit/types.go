package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of mutation a version entry records.
type Operation string

const (
	OpInsert   Operation = "INSERT"
	OpUpdate   Operation = "UPDATE"
	OpDelete   Operation = "DELETE"
	OpTruncate Operation = "TRUNCATE"
)

// Operations lists every valid operation, in the order the backing
// store's CHECK constraint declares them.
var Operations = []Operation{OpInsert, OpUpdate, OpDelete, OpTruncate}

// Valid reports whether op is one of the four known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete, OpTruncate:
		return true
	}
	return false
}

// RecordID is the resolved identity of a logical record: a UUIDv5
// rendered in hyphenated form. The zero value means "no identity"
// (e.g. the old side of an INSERT, or a TRUNCATE entry).
type RecordID string

// TimeFormat is the fixed-width UTC timestamp layout used for the ts
// column. Fixed width keeps lexicographic order equal to time order,
// which the time-range index relies on.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in the ledger's timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a ledger timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Entry is one immutable ledger row: a single observed mutation to a
// tracked table. Field names follow the wire shape delivered on the
// audit_changes channel (camelCase keys).
type Entry struct {
	// ID is the store-assigned sequence number; entries are totally
	// ordered by it.
	ID int64 `json:"id"`

	// RecordID identifies the record after the operation. Empty for
	// TRUNCATE. OldRecordID identifies the record before the operation;
	// set for UPDATE and DELETE only.
	RecordID    RecordID `json:"recordId,omitempty"`
	OldRecordID RecordID `json:"oldRecordId,omitempty"`

	Op Operation `json:"op"`
	TS time.Time `json:"ts"`

	TableOID    int64     `json:"tableOid"`
	TableSchema string    `json:"tableSchema"`
	TableName   TableName `json:"tableName"`

	// Record is the full-row snapshot after the operation (nil for
	// DELETE/TRUNCATE). OldRecord is the snapshot before the operation
	// (nil for INSERT/TRUNCATE). Keys are camelCase column names.
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"oldRecord,omitempty"`
}

// Draft is the writable portion of an Entry. The store assigns ID and,
// when TS is zero, the capture timestamp.
type Draft struct {
	RecordID    RecordID
	OldRecordID RecordID
	Op          Operation
	TS          time.Time
	TableOID    int64
	TableSchema string
	TableName   TableName
	Record      map[string]any
	OldRecord   map[string]any
}

// Wire returns the entry as a snake_case keyed map, the shape the
// storage layer emits on the audit_changes channel before key
// translation. Nested row snapshots are passed through unchanged.
func (e Entry) Wire() map[string]any {
	m := map[string]any{
		"id":           e.ID,
		"op":           string(e.Op),
		"ts":           FormatTime(e.TS),
		"table_oid":    e.TableOID,
		"table_schema": e.TableSchema,
		"table_name":   string(e.TableName),
	}
	if e.RecordID != "" {
		m["record_id"] = string(e.RecordID)
	}
	if e.OldRecordID != "" {
		m["old_record_id"] = string(e.OldRecordID)
	}
	if e.Record != nil {
		m["record"] = e.Record
	}
	if e.OldRecord != nil {
		m["old_record"] = e.OldRecord
	}
	return m
}

// User, Post, Comment and Product are the tracked-table row models.
// Table names and the allowlist are derived from these types; see
// registry.go. JSON tags are the camelCase column names used in row
// snapshots and channel payloads.

type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

type Post struct {
	ID        int64  `json:"id"`
	PostName  string `json:"postName"`
	Content   string `json:"content"`
	CreatedBy int64  `json:"createdBy"`
	CreatedAt string `json:"createdAt"`
}

type Comment struct {
	ID        int64  `json:"id"`
	Comment   string `json:"comment"`
	PostID    int64  `json:"postId"`
	CreatedBy int64  `json:"createdBy"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	UpdatedBy int64  `json:"updatedBy,omitempty"`
}

// Product uses a numeric price column; it is carried as a string to
// keep row snapshots free of floats (canonical JSON forbids them).
type Product struct {
	ProdID    int64  `json:"prodId"`
	ProdName  string `json:"prodName"`
	Price     string `json:"price"`
	CreatedAt string `json:"createdAt"`
}

// DecodeRow converts a camelCase-keyed row map into the typed model for
// its table. Dispatch is an exhaustive switch on the table name; an
// unlisted table is an error, never a structural guess.
func DecodeRow(table TableName, row map[string]any) (any, error) {
	switch table {
	case TableUsers:
		return decodeInto[User](row)
	case TablePosts:
		return decodeInto[Post](row)
	case TableComments:
		return decodeInto[Comment](row)
	case TableProducts:
		return decodeInto[Product](row)
	}
	return nil, fmt.Errorf("decode row: %w: %q", ErrUnknownTable, table)
}

func decodeInto[T any](row map[string]any) (T, error) {
	var v T
	data, err := json.Marshal(row)
	if err != nil {
		return v, fmt.Errorf("decode row: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode row: %w", err)
	}
	return v, nil
}
