package audit

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// TableName is an allowlisted tracked table's name.
type TableName string

// Tracked tables. The names are derived from the model type names at
// init time; the constants exist so call sites don't spell raw strings.
const (
	TableUsers    TableName = "users"
	TablePosts    TableName = "posts"
	TableComments TableName = "comments"
	TableProducts TableName = "products"
)

// Notification channels. Each tracked table with a live insert stream
// gets one channel, plus one channel carrying every version entry.
const (
	ChannelNewPosts     = "new_posts"
	ChannelNewComments  = "new_comments"
	ChannelAuditChanges = "audit_changes"
)

// DefaultSchema is the schema name recorded for tracked tables.
const DefaultSchema = "public"

var (
	// ErrUnknownTable means the table (or OID) is not on the allowlist.
	ErrUnknownTable = errors.New("table not allowlisted for auditing")
	// ErrMissingKey means a required key column had no value.
	ErrMissingKey = errors.New("missing key column value")
)

// Table describes one allowlisted table: where it lives, which columns
// form its primary key (camelCase model names), and which notification
// channel its inserts feed, if any.
type Table struct {
	Name       TableName
	Schema     string
	OID        int64
	KeyColumns []string

	// InsertChannel is empty for tables without a dedicated insert
	// stream (only posts and comments have one).
	InsertChannel string
}

// Registry is the fixed allowlist of audited tables. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	byName map[TableName]Table
	byOID  map[int64]Table
}

// NewRegistry builds the allowlist. Table names come from the model
// type names (Post -> posts) the same way the storage layer derives
// them, so the two can never drift apart.
func NewRegistry() *Registry {
	tables := []Table{
		{
			Name:       tableNameFor(User{}),
			OID:        16402,
			KeyColumns: []string{"id"},
		},
		{
			Name:          tableNameFor(Post{}),
			OID:           16406,
			KeyColumns:    []string{"id"},
			InsertChannel: ChannelNewPosts,
		},
		{
			Name:          tableNameFor(Comment{}),
			OID:           16410,
			KeyColumns:    []string{"id"},
			InsertChannel: ChannelNewComments,
		},
		{
			Name:       tableNameFor(Product{}),
			OID:        16426,
			KeyColumns: []string{"prodId"},
		},
	}

	r := &Registry{
		byName: make(map[TableName]Table, len(tables)),
		byOID:  make(map[int64]Table, len(tables)),
	}
	for _, t := range tables {
		t.Schema = DefaultSchema
		r.byName[t.Name] = t
		r.byOID[t.OID] = t
	}
	return r
}

// Lookup returns the table descriptor for a name.
func (r *Registry) Lookup(name TableName) (Table, error) {
	t, ok := r.byName[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// LookupOID returns the table descriptor for a table OID.
func (r *Registry) LookupOID(oid int64) (Table, error) {
	t, ok := r.byOID[oid]
	if !ok {
		return Table{}, fmt.Errorf("%w: oid %d", ErrUnknownTable, oid)
	}
	return t, nil
}

// Tables returns all allowlisted tables in OID order.
func (r *Registry) Tables() []Table {
	out := make([]Table, 0, len(r.byOID))
	for _, t := range r.byName {
		out = append(out, t)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].OID > out[j].OID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Channels returns every notification channel name.
func (r *Registry) Channels() []string {
	return []string{ChannelNewPosts, ChannelNewComments, ChannelAuditChanges}
}

// TableForChannel maps a per-table insert channel back to its table.
func (r *Registry) TableForChannel(channel string) (Table, bool) {
	for _, t := range r.byName {
		if t.InsertChannel != "" && t.InsertChannel == channel {
			return t, true
		}
	}
	return Table{}, false
}

// tableNameFor derives the table name from a model type name, e.g.
// Post -> posts, Product -> products.
func tableNameFor(model any) TableName {
	name := reflect.TypeOf(model).Name()
	return TableName(inflection.Plural(toSnakeCase(name)))
}

func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
