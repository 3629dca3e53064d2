package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smartsuite-tools/ssc/internal/storage"
	"github.com/smartsuite-tools/ssc/internal/types"
)

func seededStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	structure := []types.Field{
		{Slug: "title", Label: "Title", FieldType: "textfield", Params: map[string]any{"primary": true}},
		{Slug: "status", Label: "Status", FieldType: "statusfield"},
		{Slug: "priority", Label: "Priority", FieldType: "numberfield"},
		{Slug: "tags", Label: "Tags", FieldType: "multipleselectfield"},
		{Slug: "description", Label: "Description", FieldType: "richtextareafield"},
	}
	records := []types.Record{
		{
			"id": "rec1", "title": "Fix login", "status": "active", "priority": float64(3),
			"tags": []any{"urgent", "bug"},
			"description": map[string]any{
				"data":    map[string]any{"type": "doc"},
				"html":    "<p>Hi</p>",
				"preview": "Hi",
				"yjsData": "AAEC",
			},
		},
		{
			"id": "rec2", "title": "Ship release", "status": "active", "priority": float64(1),
			"tags": []any{"feature"},
		},
		{
			"id": "rec3", "title": "Update docs", "status": "done", "priority": float64(2),
		},
	}
	if _, err := s.StoreRecords(context.Background(), "tbl1", structure, records, nil); err != nil {
		t.Fatalf("StoreRecords: %v", err)
	}
	return s
}

func rowIDs(res *Result) []string {
	ids := make([]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		id, _ := r["id"].(string)
		ids = append(ids, id)
	}
	return ids
}

func TestPredicates(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		build func(*Builder) *Builder
		want  []string
	}{
		{"bare value means equality", func(b *Builder) *Builder {
			return b.Where("status", "active").OrderBy("priority", "asc")
		}, []string{"rec2", "rec1"}},
		{"gte", func(b *Builder) *Builder {
			return b.Where("priority", map[string]any{"gte": float64(2)}).OrderBy("priority", "desc")
		}, []string{"rec1", "rec3"}},
		{"ne", func(b *Builder) *Builder {
			return b.WhereOp("status", "ne", "active")
		}, []string{"rec3"}},
		{"contains", func(b *Builder) *Builder {
			return b.WhereOp("title", "contains", "login")
		}, []string{"rec1"}},
		{"starts_with", func(b *Builder) *Builder {
			return b.WhereOp("title", "starts_with", "Ship")
		}, []string{"rec2"}},
		{"ends_with", func(b *Builder) *Builder {
			return b.WhereOp("title", "ends_with", "docs")
		}, []string{"rec3"}},
		{"in", func(b *Builder) *Builder {
			return b.WhereOp("id", "in", []any{"rec1", "rec3"}).OrderBy("title", "asc")
		}, []string{"rec1", "rec3"}},
		{"not_in", func(b *Builder) *Builder {
			return b.WhereOp("id", "not_in", []any{"rec1", "rec3"})
		}, []string{"rec2"}},
		{"between map bounds", func(b *Builder) *Builder {
			return b.WhereOp("priority", "between", map[string]any{"min": float64(1), "max": float64(2)}).OrderBy("priority", "asc")
		}, []string{"rec2", "rec3"}},
		{"is_empty", func(b *Builder) *Builder {
			return b.WhereOp("tags", "is_empty", nil)
		}, []string{"rec3"}},
		{"is_not_null", func(b *Builder) *Builder {
			return b.WhereOp("description", "is_not_null", nil)
		}, []string{"rec1"}},
		{"predicates are ANDed", func(b *Builder) *Builder {
			return b.Where("status", "active").WhereOp("priority", "lt", float64(2))
		}, []string{"rec2"}},
		{"unknown slug is skipped", func(b *Builder) *Builder {
			return b.Where("nonexistent", "x").Where("status", "active").OrderBy("priority", "asc")
		}, []string{"rec2", "rec1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.build(New(s, "tbl1")).Execute(ctx)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			got := rowIDs(res)
			if len(got) != len(tt.want) {
				t.Fatalf("rows = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("rows = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestJSONArrayMembership(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		op   string
		vals []any
		want []string
	}{
		{"has_any_of", []any{"urgent"}, []string{"rec1"}},
		{"has_any_of", []any{"urgent", "feature"}, []string{"rec1", "rec2"}},
		{"has_all_of", []any{"urgent", "bug"}, []string{"rec1"}},
		{"has_all_of", []any{"urgent", "feature"}, nil},
		{"has_none_of", []any{"urgent"}, []string{"rec2", "rec3"}},
	}
	for _, tt := range tests {
		res, err := New(s, "tbl1").WhereOp("tags", tt.op, tt.vals).OrderBy("id", "asc").Execute(ctx)
		if err != nil {
			t.Fatalf("%s %v: %v", tt.op, tt.vals, err)
		}
		got := rowIDs(res)
		if len(got) != len(tt.want) {
			t.Errorf("%s %v = %v, want %v", tt.op, tt.vals, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("%s %v = %v, want %v", tt.op, tt.vals, got, tt.want)
				break
			}
		}
	}
}

func TestRichDocCollapsesToHTML(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	res, err := New(s, "tbl1").Where("id", "rec1").Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows", len(res.Rows))
	}
	if got := res.Rows[0]["description"]; got != "<p>Hi</p>" {
		t.Errorf("description = %v, want the extracted HTML", got)
	}

	// the stored value keeps the full composite
	var raw string
	if err := s.DB().QueryRow("SELECT description FROM rec_tbl1 WHERE id = 'rec1'").Scan(&raw); err != nil {
		t.Fatalf("raw read: %v", err)
	}
	for _, key := range []string{`"data"`, `"html"`, `"preview"`, `"yjsData"`} {
		if !strings.Contains(raw, key) {
			t.Errorf("stored composite lost %s: %s", key, raw)
		}
	}

	// the tags array comes back decoded
	tags, ok := res.Rows[0]["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Errorf("tags = %#v, want decoded array", res.Rows[0]["tags"])
	}
}

func TestPaginationAndCounts(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	res, err := New(s, "tbl1").OrderBy("priority", "asc").Limit(1).Offset(1).Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := rowIDs(res); len(got) != 1 || got[0] != "rec3" {
		t.Errorf("page = %v, want [rec3]", got)
	}
	if res.Total != 3 || res.Filtered != 3 {
		t.Errorf("counts = (%d total, %d filtered), want (3, 3)", res.Total, res.Filtered)
	}

	// count ignores pagination
	n, err := New(s, "tbl1").Where("status", "active").Limit(1).Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestBuilderIsImmutable(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	base := New(s, "tbl1").Where("status", "active")
	narrowed := base.WhereOp("priority", "gte", float64(3))

	res, err := base.Execute(ctx)
	if err != nil {
		t.Fatalf("base Execute: %v", err)
	}
	if res.Filtered != 2 {
		t.Errorf("base filtered = %d, want 2 (branching mutated the base)", res.Filtered)
	}
	res, err = narrowed.Execute(ctx)
	if err != nil {
		t.Fatalf("narrowed Execute: %v", err)
	}
	if res.Filtered != 1 {
		t.Errorf("narrowed filtered = %d, want 1", res.Filtered)
	}
}

func TestFailureModes(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	if _, err := New(s, "never-populated").Execute(ctx); !errors.Is(err, storage.ErrCacheMiss) {
		t.Errorf("uncached table: %v, want ErrCacheMiss", err)
	}

	if _, err := New(s, "tbl1").WhereOp("status", "fuzzy_match", "x").Execute(ctx); !errors.Is(err, ErrInvalidPredicate) {
		t.Errorf("unknown operator: %v, want ErrInvalidPredicate", err)
	}

	// an op-map needs exactly one operator
	if _, err := New(s, "tbl1").Where("priority", map[string]any{"gte": 1.0, "lte": 2.0}).Execute(ctx); !errors.Is(err, ErrInvalidPredicate) {
		t.Errorf("two-operator map: %v, want ErrInvalidPredicate", err)
	}

	if _, err := New(s, "tbl1").WhereOp("priority", "between", "not-bounds").Execute(ctx); !errors.Is(err, ErrInvalidPredicate) {
		t.Errorf("malformed between: %v, want ErrInvalidPredicate", err)
	}
}

func TestInvalidatedTableMissesOnQuery(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	res, err := New(s, "tbl1").Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Total == 0 {
		t.Fatal("seed store holds no rows")
	}

	if err := s.Invalidate(ctx, types.ScopeSolutions, ""); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := New(s, "tbl1").Execute(ctx); !errors.Is(err, storage.ErrCacheMiss) {
		t.Fatalf("Execute after solutions cascade = %v, want ErrCacheMiss", err)
	}
	if _, err := New(s, "tbl1").Count(ctx); !errors.Is(err, storage.ErrCacheMiss) {
		t.Fatalf("Count after solutions cascade = %v, want ErrCacheMiss", err)
	}
}

func TestFullyExpiredTableReadsAsExpired(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	expired := -time.Second
	structure := []types.Field{{Slug: "title", Label: "Title", FieldType: "textfield"}}
	if _, err := s.StoreRecords(ctx, "tbl2", structure, []types.Record{{"id": "r1", "title": "gone"}}, &expired); err != nil {
		t.Fatalf("StoreRecords: %v", err)
	}

	if _, err := New(s, "tbl2").Execute(ctx); !errors.Is(err, storage.ErrCacheExpired) {
		t.Fatalf("Execute on expired table = %v, want ErrCacheExpired", err)
	}
	if _, err := New(s, "tbl2").Count(ctx); !errors.Is(err, storage.ErrCacheExpired) {
		t.Fatalf("Count on expired table = %v, want ErrCacheExpired", err)
	}

	// an empty but fresh table is valid, not expired
	if _, err := s.StoreRecords(ctx, "tbl3", structure, nil, nil); err != nil {
		t.Fatalf("StoreRecords: %v", err)
	}
	res, err := New(s, "tbl3").Execute(ctx)
	if err != nil {
		t.Fatalf("Execute on empty table: %v", err)
	}
	if len(res.Rows) != 0 || res.Total != 0 {
		t.Errorf("empty table returned %d rows (total %d)", len(res.Rows), res.Total)
	}
}
