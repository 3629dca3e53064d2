package toon

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/smartsuite-tools/ssc/internal/query"
	"github.com/smartsuite-tools/ssc/internal/schema"
	"github.com/smartsuite-tools/ssc/internal/types"
)

func sampleResult() *query.Result {
	structure := []types.Field{
		{Slug: "title", Label: "Title", FieldType: "textfield", Params: map[string]any{"primary": true}},
		{Slug: "status", Label: "Status", FieldType: "statusfield"},
		{Slug: "priority", Label: "Priority", FieldType: "numberfield"},
		{Slug: "tags", Label: "Tags", FieldType: "multipleselectfield"},
	}
	ts := schema.Synthesize("tbl1", structure)
	return &query.Result{
		Schema: ts,
		Rows: []map[string]any{
			{"id": "rec1", "title": "Task 1", "status": "active", "priority": float64(1), "tags": []any{"urgent", "bug"}},
			{"id": "rec3", "title": "Task 3", "status": "active", "priority": float64(2), "tags": nil},
		},
		Total:    3,
		Filtered: 2,
	}
}

func TestTextFormat(t *testing.T) {
	f := New(time.UTC)
	got := f.Text(sampleResult(), []string{"status", "tags"})

	want := strings.Join([]string{
		"2 of 2 filtered (3 total)",
		"records[2]{id|title|status|tags}:",
		"rec1|Task 1|active|urgent, bug",
		"rec3|Task 3|active|",
		"",
	}, "\n")
	if got != want {
		t.Errorf("Text =\n%s\nwant\n%s", got, want)
	}
}

func TestColumnSelection(t *testing.T) {
	f := New(time.UTC)
	res := sampleResult()

	// duplicates elided, unknown slugs skipped, id and title always lead
	got := f.Text(res, []string{"title", "id", "nonexistent", "priority"})
	if !strings.Contains(got, "records[2]{id|title|priority}:") {
		t.Errorf("schema line wrong:\n%s", got)
	}

	// no selection means every column in schema order
	got = f.Text(res, nil)
	if !strings.Contains(got, "records[2]{id|title|status|status_updated_on|priority|tags}:") {
		t.Errorf("full selection schema line wrong:\n%s", got)
	}
}

func TestCellRendering(t *testing.T) {
	f := New(time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{float64(2.5), "2.5"},
		{float64(3), "3"},
		{int64(7), "7"},
		{true, "true"},
		{[]any{"a", "b"}, "a, b"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
		{"2026-08-01T10:30:00Z", "2026-08-01 10:30:00 +0000"},
		{"2026-08-01", "2026-08-01"}, // date-only stays date-only
		{"not 2026-08-01 a date really", "not 2026-08-01 a date really"},
	}
	for _, tt := range tests {
		if got := f.cell(tt.in); got != tt.want {
			t.Errorf("cell(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimestampZone(t *testing.T) {
	loc := time.FixedZone("+02:00", 2*3600)
	f := New(loc)
	if got := f.cell("2026-08-01T10:30:00Z"); got != "2026-08-01 12:30:00 +0200" {
		t.Errorf("zoned timestamp = %q", got)
	}
}

func TestJSONFormat(t *testing.T) {
	f := New(time.UTC)
	b, err := f.JSON(sampleResult(), []string{"status"})
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out struct {
		Count         int              `json:"count"`
		TotalCount    int              `json:"total_count"`
		FilteredCount *int             `json:"filtered_count"`
		Items         []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Count != 2 || out.TotalCount != 3 {
		t.Errorf("counts = %d/%d", out.Count, out.TotalCount)
	}
	if out.FilteredCount == nil || *out.FilteredCount != 2 {
		t.Error("filtered_count missing despite filtering")
	}
	if len(out.Items) != 2 {
		t.Fatalf("items = %d", len(out.Items))
	}
	item := out.Items[0]
	if item["id"] != "rec1" || item["title"] != "Task 1" || item["status"] != "active" {
		t.Errorf("item = %v", item)
	}
	if _, ok := item["priority"]; ok {
		t.Error("unselected key present in item")
	}

	// unfiltered results elide filtered_count
	res := sampleResult()
	res.Filtered = res.Total
	b, _ = f.JSON(res, nil)
	if strings.Contains(string(b), "filtered_count") {
		t.Error("filtered_count present on unfiltered result")
	}
}

func TestFilterField(t *testing.T) {
	f := types.Field{
		Slug:      "status",
		Label:     "Status",
		FieldType: "statusfield",
		Params: map[string]any{
			"required": true,
			"primary":  false,
			"width":    240,
			"help_doc": "pick one",
			"choices": []any{
				map[string]any{"label": "Active", "value": "active", "color": "#00ff00", "icon": "dot"},
				map[string]any{"label": "Done", "value": "done"},
			},
		},
	}

	got := FilterField(f)
	if got["slug"] != "status" || got["field_type"] != "statusfield" {
		t.Errorf("identity keys = %v", got)
	}
	params, ok := got["params"].(map[string]any)
	if !ok {
		t.Fatal("params missing")
	}
	if _, ok := params["width"]; ok {
		t.Error("width survived the whitelist")
	}
	if _, ok := params["help_doc"]; ok {
		t.Error("help_doc survived the whitelist")
	}
	choices, ok := params["choices"].([]map[string]any)
	if !ok || len(choices) != 2 {
		t.Fatalf("choices = %#v", params["choices"])
	}
	if choices[0]["label"] != "Active" || choices[0]["value"] != "active" {
		t.Errorf("choice = %v", choices[0])
	}
	if _, ok := choices[0]["color"]; ok {
		t.Error("choice color survived the whitelist")
	}

	// a field with no whitelisted params has no params key at all
	bare := FilterField(types.Field{Slug: "x", Label: "X", FieldType: "textfield", Params: map[string]any{"width": 10}})
	if _, ok := bare["params"]; ok {
		t.Error("empty params emitted")
	}
}

func TestCollapseRichDocs(t *testing.T) {
	rec := map[string]any{
		"id":    "rec_1",
		"title": "Doc",
		"description": map[string]any{
			"data":    map[string]any{"type": "doc"},
			"html":    "<p>hello</p>",
			"preview": "hello",
		},
		"broken": map[string]any{
			"data": map[string]any{},
			"html": 7,
		},
		"status": map[string]any{"value": "active", "html": "<b>x</b>"},
		"tags":   []any{"a", "b"},
	}

	CollapseRichDocs(rec)

	if rec["description"] != "<p>hello</p>" {
		t.Errorf("description = %#v, want collapsed html", rec["description"])
	}
	if rec["broken"] != "" {
		t.Errorf("non-string html = %#v, want empty string", rec["broken"])
	}
	if _, ok := rec["status"].(map[string]any); !ok {
		t.Errorf("map without data key was collapsed: %#v", rec["status"])
	}
	if _, ok := rec["tags"].([]any); !ok {
		t.Errorf("non-map value touched: %#v", rec["tags"])
	}
	if rec["title"] != "Doc" {
		t.Errorf("scalar touched: %#v", rec["title"])
	}
}

func TestResolveLocation(t *testing.T) {
	tests := []struct {
		in         string
		wantOffset int
		wantErr    bool
	}{
		{"", 0, false},
		{"utc", 0, false},
		{"UTC", 0, false},
		{"+02:00", 2 * 3600, false},
		{"-0500", -5 * 3600, false},
		{"+7", 7 * 3600, false},
		{"nowhere/at-all", 0, true},
		{"+99:00", 0, true},
	}
	for _, tt := range tests {
		loc, err := ResolveLocation(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveLocation(%q) succeeded", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveLocation(%q): %v", tt.in, err)
			continue
		}
		_, offset := time.Now().In(loc).Zone()
		if offset != tt.wantOffset {
			t.Errorf("ResolveLocation(%q) offset = %d, want %d", tt.in, offset, tt.wantOffset)
		}
	}

	if loc, err := ResolveLocation("local"); err != nil || loc != time.Local {
		t.Errorf("local = (%v, %v)", loc, err)
	}
}
