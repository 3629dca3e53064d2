// Package schema turns a runtime-discovered table structure into the set
// of storage columns, indexes, and DDL that back its cache table.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/smartsuite-tools/ssc/internal/types"
)

// Column is one synthesized storage column.
type Column struct {
	// Slug is the owning field's slug for the field's queryable column,
	// and "" for companion columns (status updated_on, actor-stamp "by").
	Slug    string
	Name    string
	Type    ColumnType
	Indexed bool
}

// TableSchema is the synthesized schema for one upstream table's cache
// table. The column order is stable: structure order, companions directly
// after their owner.
type TableSchema struct {
	UpstreamID  string
	CacheTable  string
	Columns     []Column
	Fingerprint string
}

// CacheTableName derives the storage table name for an upstream table id.
func CacheTableName(upstreamID string) string {
	return "rec_" + SanitizeTableName(upstreamID)
}

// Synthesize maps a table structure to its cache-table schema.
//
// Every cache table carries id, cached_at, and expires_at in addition to
// the synthesized columns; those names are reserved, so a structure field
// that sanitizes to one of them gets dedupe-suffixed.
func Synthesize(upstreamID string, structure []types.Field) *TableSchema {
	used := map[string]bool{
		"id":         true,
		"cached_at":  true,
		"expires_at": true,
	}

	ts := &TableSchema{
		UpstreamID: upstreamID,
		CacheTable: CacheTableName(upstreamID),
	}

	for _, f := range structure {
		san := SanitizeColumnName(f.Slug)
		ct := ColumnTypeFor(f.FieldType)
		idx := indexable(f.Slug, f.FieldType, f.IsPrimary())

		switch normalizeFieldType(f.FieldType) {
		case "firstcreated", "lastupdated":
			// actor-stamp values split into {on, by}; the "_on" column is
			// the one predicates and the index land on
			on := uniqueName(san+"_on", used)
			by := uniqueName(san+"_by", used)
			ts.Columns = append(ts.Columns,
				Column{Slug: f.Slug, Name: on, Type: ColumnText, Indexed: idx},
				Column{Slug: "", Name: by, Type: ColumnText},
			)
		case "status", "statusfield":
			base := uniqueName(san, used)
			updatedOn := uniqueName(base+"_updated_on", used)
			ts.Columns = append(ts.Columns,
				Column{Slug: f.Slug, Name: base, Type: ct, Indexed: idx},
				Column{Slug: "", Name: updatedOn, Type: ColumnText},
			)
		default:
			base := uniqueName(san, used)
			ts.Columns = append(ts.Columns, Column{Slug: f.Slug, Name: base, Type: ct, Indexed: idx})
		}
	}

	ts.Fingerprint = fingerprint(ts)
	return ts
}

// ColumnForSlug returns the queryable column for a field slug, or false
// when the schema has no column for it.
func (ts *TableSchema) ColumnForSlug(slug string) (Column, bool) {
	for _, c := range ts.Columns {
		if c.Slug == slug {
			return c, true
		}
	}
	if slug == "id" {
		return Column{Slug: "id", Name: "id", Type: ColumnText}, true
	}
	return Column{}, false
}

// DDL emits the CREATE TABLE statement for the cache table.
func (ts *TableSchema) DDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", ts.CacheTable)
	b.WriteString("    id TEXT PRIMARY KEY")
	for _, c := range ts.Columns {
		fmt.Fprintf(&b, ",\n    %s %s", c.Name, c.Type)
	}
	b.WriteString(",\n    cached_at DATETIME NOT NULL")
	b.WriteString(",\n    expires_at DATETIME NOT NULL")
	b.WriteString("\n)")
	return b.String()
}

// IndexDDL emits one CREATE INDEX statement per indexed column, at most
// one index per column.
func (ts *TableSchema) IndexDDL() []string {
	var stmts []string
	seen := map[string]bool{}
	for _, c := range ts.Columns {
		if !c.Indexed || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s(%s)",
			ts.CacheTable, c.Name, ts.CacheTable, c.Name))
	}
	return stmts
}

// fingerprint hashes the ordered column spec; a changed structure yields a
// changed fingerprint, a pure record refresh does not.
func fingerprint(ts *TableSchema) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", ts.CacheTable)
	for _, c := range ts.Columns {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%t\n", c.Slug, c.Name, c.Type, c.Indexed)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeFieldType(ft string) string {
	return strings.ToLower(strings.TrimSpace(ft))
}
