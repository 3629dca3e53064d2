package schema

import (
	"strings"
	"testing"

	"github.com/smartsuite-tools/ssc/internal/types"
)

func TestColumnTypeFor(t *testing.T) {
	tests := []struct {
		fieldType string
		expected  ColumnType
	}{
		{"textfield", ColumnText},
		{"TextField", ColumnText},
		{"richtextarea", ColumnText},
		{"statusfield", ColumnText},
		{"duedatefield", ColumnText},
		{"linkedrecordfield", ColumnText},
		{"multipleselectfield", ColumnText},
		{"yesnofield", ColumnInteger},
		{"autonumberfield", ColumnInteger},
		{"comments_count", ColumnInteger},
		{"numberfield", ColumnReal},
		{"currencyfield", ColumnReal},
		{"percentfield", ColumnReal},
		{"ratingfield", ColumnReal},
		{"durationfield", ColumnReal},
		{"no_such_type", ColumnText},
		{"", ColumnText},
	}

	for _, tt := range tests {
		t.Run(tt.fieldType, func(t *testing.T) {
			if got := ColumnTypeFor(tt.fieldType); got != tt.expected {
				t.Errorf("ColumnTypeFor(%q) = %v, want %v", tt.fieldType, got, tt.expected)
			}
		})
	}
}

// Every tag in the taxonomy maps to one of the three storage types.
func TestColumnTypeClosedOverTaxonomy(t *testing.T) {
	for tag := range fieldTypeColumns {
		ct := ColumnTypeFor(tag)
		if ct != ColumnText && ct != ColumnInteger && ct != ColumnReal {
			t.Errorf("ColumnTypeFor(%q) = %v, outside {TEXT, INTEGER, REAL}", tag, ct)
		}
	}
}

func TestSynthesizeColumns(t *testing.T) {
	structure := []types.Field{
		{Slug: "title", Label: "Title", FieldType: "textfield", Params: map[string]any{"primary": true}},
		{Slug: "status", Label: "Status", FieldType: "statusfield"},
		{Slug: "priority", Label: "Priority", FieldType: "numberfield"},
		{Slug: "done", Label: "Done", FieldType: "yesnofield"},
		{Slug: "first_created", Label: "First Created", FieldType: "firstcreated"},
		{Slug: "last_updated", Label: "Last Updated", FieldType: "lastupdated"},
		{Slug: "notes", Label: "Notes", FieldType: "richtextarea"},
	}

	ts := Synthesize("tbl_A", structure)

	if ts.CacheTable != "rec_tbl_A" {
		t.Errorf("CacheTable = %q, want rec_tbl_A", ts.CacheTable)
	}

	wantNames := []string{
		"title",
		"status", "status_updated_on",
		"priority",
		"done",
		"first_created_on", "first_created_by",
		"last_updated_on", "last_updated_by",
		"notes",
	}
	if len(ts.Columns) != len(wantNames) {
		t.Fatalf("got %d columns, want %d: %+v", len(ts.Columns), len(wantNames), ts.Columns)
	}
	for i, name := range wantNames {
		if ts.Columns[i].Name != name {
			t.Errorf("column[%d].Name = %q, want %q", i, ts.Columns[i].Name, name)
		}
	}

	indexed := map[string]bool{}
	for _, c := range ts.Columns {
		if c.Indexed {
			indexed[c.Name] = true
		}
	}
	for _, want := range []string{"title", "status", "priority", "done", "last_updated_on"} {
		if !indexed[want] {
			t.Errorf("column %q should be indexed", want)
		}
	}
	for _, never := range []string{"notes", "first_created_on", "status_updated_on"} {
		if indexed[never] {
			t.Errorf("column %q should not be indexed", never)
		}
	}
}

func TestSynthesizeDeduplicatesNames(t *testing.T) {
	structure := []types.Field{
		{Slug: "Value", FieldType: "textfield"},
		{Slug: "value", FieldType: "textfield"},
		{Slug: "va!lue", FieldType: "textfield"},
		{Slug: "id", FieldType: "textfield"}, // collides with the reserved id column
	}

	ts := Synthesize("t", structure)

	seen := map[string]bool{"id": true, "cached_at": true, "expires_at": true}
	for _, c := range ts.Columns {
		if seen[c.Name] {
			t.Errorf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
	}
	if ts.Columns[3].Name != "id_2" {
		t.Errorf("reserved collision column = %q, want id_2", ts.Columns[3].Name)
	}
}

func TestFingerprintStability(t *testing.T) {
	structure := []types.Field{
		{Slug: "name", FieldType: "textfield"},
		{Slug: "score", FieldType: "numberfield"},
	}

	a := Synthesize("tbl", structure)
	b := Synthesize("tbl", structure)
	if a.Fingerprint != b.Fingerprint {
		t.Error("identical structures produced different fingerprints")
	}

	changed := Synthesize("tbl", append(structure[:1:1], types.Field{Slug: "score", FieldType: "textfield"}))
	if changed.Fingerprint == a.Fingerprint {
		t.Error("changed column type kept the same fingerprint")
	}

	reordered := Synthesize("tbl", []types.Field{structure[1], structure[0]})
	if reordered.Fingerprint == a.Fingerprint {
		t.Error("reordered structure kept the same fingerprint")
	}
}

func TestDDL(t *testing.T) {
	ts := Synthesize("tbl_A", []types.Field{
		{Slug: "name", FieldType: "textfield"},
		{Slug: "priority", FieldType: "numberfield"},
	})

	ddl := ts.DDL()
	for _, want := range []string{
		"CREATE TABLE rec_tbl_A",
		"id TEXT PRIMARY KEY",
		"name TEXT",
		"priority REAL",
		"cached_at DATETIME NOT NULL",
		"expires_at DATETIME NOT NULL",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}

	idx := ts.IndexDDL()
	if len(idx) != 1 {
		t.Fatalf("got %d index statements, want 1: %v", len(idx), idx)
	}
	if !strings.Contains(idx[0], "idx_rec_tbl_A_priority") {
		t.Errorf("unexpected index DDL: %s", idx[0])
	}
}

func TestColumnForSlug(t *testing.T) {
	ts := Synthesize("t", []types.Field{
		{Slug: "status", FieldType: "statusfield"},
		{Slug: "first_created", FieldType: "firstcreated"},
	})

	c, ok := ts.ColumnForSlug("status")
	if !ok || c.Name != "status" {
		t.Errorf("ColumnForSlug(status) = %+v, %v", c, ok)
	}
	c, ok = ts.ColumnForSlug("first_created")
	if !ok || c.Name != "first_created_on" {
		t.Errorf("ColumnForSlug(first_created) = %+v, %v", c, ok)
	}
	c, ok = ts.ColumnForSlug("id")
	if !ok || c.Name != "id" {
		t.Errorf("ColumnForSlug(id) = %+v, %v", c, ok)
	}
	if _, ok := ts.ColumnForSlug("nonexistent"); ok {
		t.Error("ColumnForSlug(nonexistent) should report not found")
	}
}
