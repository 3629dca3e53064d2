// Package toon renders query results in the compact tabular text
// format consumed downstream: one header line with counts, one schema
// line, then pipe-delimited rows. A JSON rendering with the same
// selection rules is available for callers that want structure.
package toon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smartsuite-tools/ssc/internal/query"
)

// Formatter renders result sets. The location is applied when
// stringifying date-time values; nil means UTC.
type Formatter struct {
	loc *time.Location
}

func New(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{loc: loc}
}

// column is one selected output column: the key the consumer sees and
// the storage column it reads from.
type column struct {
	key  string
	name string
}

// selectColumns resolves the output columns: id, then title, then the
// caller-requested fields in order, duplicates elided. Fields the
// schema does not know are skipped. No fields means every column.
func selectColumns(res *query.Result, fields []string) []column {
	if len(fields) == 0 {
		cols := []column{{key: "id", name: "id"}}
		for _, c := range res.Schema.Columns {
			cols = append(cols, column{key: c.Name, name: c.Name})
		}
		return cols
	}

	ordered := append([]string{"id", "title"}, fields...)
	seen := map[string]bool{}
	var cols []column
	for _, slug := range ordered {
		if seen[slug] {
			continue
		}
		seen[slug] = true
		c, ok := res.Schema.ColumnForSlug(slug)
		if !ok {
			continue
		}
		cols = append(cols, column{key: slug, name: c.Name})
	}
	return cols
}

// Text renders the result as the tabular text format:
//
//	2 of 2 filtered (3 total)
//	records[2]{id|title|status}:
//	rec1|Task 1|active
//	rec3|Task 3|active
func (f *Formatter) Text(res *query.Result, fields []string) string {
	cols := selectColumns(res, fields)

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d filtered (%d total)\n", len(res.Rows), res.Filtered, res.Total)

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.key
	}
	fmt.Fprintf(&b, "records[%d]{%s}:\n", len(res.Rows), strings.Join(names, "|"))

	for _, row := range res.Rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = f.cell(row[c.name])
		}
		b.WriteString(strings.Join(cells, "|"))
		b.WriteByte('\n')
	}
	return b.String()
}

// JSON renders the result as {count, total_count, filtered_count?,
// items}. Items carry only the selected keys. filtered_count is elided
// when no filtering happened.
func (f *Formatter) JSON(res *query.Result, fields []string) ([]byte, error) {
	cols := selectColumns(res, fields)

	items := make([]map[string]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		item := make(map[string]any, len(cols))
		for _, c := range cols {
			item[c.key] = f.jsonValue(row[c.name])
		}
		items = append(items, item)
	}

	out := map[string]any{
		"count":       len(res.Rows),
		"total_count": res.Total,
		"items":       items,
	}
	if res.Filtered != res.Total {
		out["filtered_count"] = res.Filtered
	}
	return json.Marshal(out)
}

// cell renders one value for the text format. Arrays join with ", ",
// mappings render as their JSON text, strings pass through untruncated,
// and timestamp-shaped strings are restated in the formatter's zone.
func (f *Formatter) cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if ts, ok := f.formatTimestamp(t); ok {
			return ts
		}
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = f.cell(e)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// jsonValue applies the same timestamp restatement for the JSON
// rendering, leaving structured values structured.
func (f *Formatter) jsonValue(v any) any {
	if s, ok := v.(string); ok {
		if ts, ok := f.formatTimestamp(s); ok {
			return ts
		}
	}
	return v
}

// formatTimestamp restates a date-time string in the configured zone as
// "YYYY-MM-DD HH:MM:SS ±HHMM". Date-only strings stay date-only; other
// strings are reported untouched.
func (f *Formatter) formatTimestamp(s string) (string, bool) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return "", false
	}
	if len(s) == 10 {
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return s, true
		}
		return "", false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(f.loc).Format("2006-01-02 15:04:05 -0700"), true
		}
	}
	return "", false
}
