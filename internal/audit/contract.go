package audit

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// contractSource declares the payload contract for every tracked table
// plus the version entry envelope. Definitions are closed: a payload
// carrying a column the schema doesn't know is rejected, which is how
// ledger/allowlist divergence gets caught instead of passed upstream.
const contractSource = `
#User: {
	id:        int
	name:      string
	email:     string
	createdAt: string
}

#Post: {
	id:        int
	postName:  string
	content:   string
	createdBy: int
	createdAt: string
}

#Comment: {
	id:         int
	comment:    string
	postId:     int
	createdBy:  int
	createdAt:  string
	updatedAt?: string
	updatedBy?: int
}

#Product: {
	prodId:    int
	prodName:  string
	price:     string
	createdAt: string
}

#Operation: "INSERT" | "UPDATE" | "DELETE" | "TRUNCATE"

#Entry: {
	id:           int
	recordId?:    string
	oldRecordId?: string
	op:           #Operation
	ts:           string
	tableOid:     int
	tableSchema:  string
	tableName:    "users" | "posts" | "comments" | "products"
	record?: {...}
	oldRecord?: {...}
}
`

// Contracts validates row snapshots and version entries against the
// embedded CUE schemas.
type Contracts struct {
	// cue.Context isn't documented as safe for concurrent evaluation;
	// serialize all unification through mu.
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[TableName]cue.Value
	entry   cue.Value
}

// NewContracts compiles the embedded schemas.
func NewContracts() (*Contracts, error) {
	cctx := cuecontext.New()
	root := cctx.CompileString(contractSource)
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile payload contracts: %w", err)
	}

	defs := map[TableName]string{
		TableUsers:    "#User",
		TablePosts:    "#Post",
		TableComments: "#Comment",
		TableProducts: "#Product",
	}
	schemas := make(map[TableName]cue.Value, len(defs))
	for table, def := range defs {
		v := root.LookupPath(cue.ParsePath(def))
		if !v.Exists() {
			return nil, fmt.Errorf("payload contract %s not found", def)
		}
		schemas[table] = v
	}

	entry := root.LookupPath(cue.ParsePath("#Entry"))
	if !entry.Exists() {
		return nil, fmt.Errorf("payload contract #Entry not found")
	}

	return &Contracts{ctx: cctx, schemas: schemas, entry: entry}, nil
}

// ValidateRow unifies a camelCase-keyed row snapshot with the schema
// for its table.
func (c *Contracts) ValidateRow(table TableName, row map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	schema, ok := c.schemas[table]
	if !ok {
		return fmt.Errorf("validate row: %w: %q", ErrUnknownTable, table)
	}
	return c.unify(schema, row, string(table))
}

// ValidateWireEntry validates a camelCase-keyed audit event payload
// against the entry envelope schema. Per-table payload validation of
// the nested snapshots happens in ValidateEntry after decoding.
func (c *Contracts) ValidateWireEntry(event map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unify(c.entry, event, "entry")
}

// ValidateEntry checks a decoded version entry: known operation,
// payload presence matching the operation, and both snapshots against
// the table's contract.
func (c *Contracts) ValidateEntry(e Entry) error {
	if !e.Op.Valid() {
		return fmt.Errorf("validate entry %d: unknown operation %q", e.ID, e.Op)
	}

	switch e.Op {
	case OpInsert:
		if e.Record == nil {
			return fmt.Errorf("validate entry %d: INSERT without record snapshot", e.ID)
		}
		if e.OldRecord != nil {
			return fmt.Errorf("validate entry %d: INSERT with old record snapshot", e.ID)
		}
	case OpUpdate:
		if e.Record == nil || e.OldRecord == nil {
			return fmt.Errorf("validate entry %d: UPDATE requires both snapshots", e.ID)
		}
	case OpDelete:
		if e.OldRecord == nil {
			return fmt.Errorf("validate entry %d: DELETE without old record snapshot", e.ID)
		}
		if e.Record != nil {
			return fmt.Errorf("validate entry %d: DELETE with record snapshot", e.ID)
		}
	case OpTruncate:
		if e.Record != nil || e.OldRecord != nil {
			return fmt.Errorf("validate entry %d: TRUNCATE carries no snapshots", e.ID)
		}
	}

	if e.Record != nil {
		if err := c.ValidateRow(e.TableName, e.Record); err != nil {
			return fmt.Errorf("validate entry %d: record: %w", e.ID, err)
		}
	}
	if e.OldRecord != nil {
		if err := c.ValidateRow(e.TableName, e.OldRecord); err != nil {
			return fmt.Errorf("validate entry %d: old record: %w", e.ID, err)
		}
	}
	return nil
}

func (c *Contracts) unify(schema cue.Value, data map[string]any, what string) error {
	val := c.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("validate %s: encode: %w", what, err)
	}
	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate %s: %w", what, err)
	}
	return nil
}
