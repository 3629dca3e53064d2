// Package query turns structured predicate sets into parameterized SQL
// against a table's cache and returns rows as plain mappings.
//
// Builders are immutable: every refinement returns a copy, so a base
// query can be branched safely. Unknown field slugs are dropped
// silently so predicates written against a drifted structure degrade
// instead of failing; unknown operators are an error.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/smartsuite-tools/ssc/internal/schema"
	"github.com/smartsuite-tools/ssc/internal/storage"
)

// ErrInvalidPredicate indicates an unknown operator or a malformed
// op-map value.
var ErrInvalidPredicate = errors.New("invalid predicate")

type predicate struct {
	slug  string
	op    string
	value any
}

// Builder accumulates predicates, ordering, and pagination for one
// table's cache.
type Builder struct {
	store   *storage.Store
	tableID string
	preds   []predicate
	orderBy string
	desc    bool
	limit   int
	offset  int
}

// Result is one executed query: decoded rows plus the counts the
// formatter renders ("N of M filtered (T total)").
type Result struct {
	Schema   *schema.TableSchema
	Rows     []map[string]any
	Total    int // non-expired rows in the table
	Filtered int // rows matching the predicates, before pagination
}

// New starts a query against one upstream table's cache.
func New(store *storage.Store, tableID string) *Builder {
	return &Builder{store: store, tableID: tableID}
}

func (b *Builder) clone() *Builder {
	c := *b
	c.preds = append([]predicate(nil), b.preds...)
	return &c
}

// Where adds one predicate. A plain value means equality; a
// single-entry map selects an operator ({"gte": 3}).
func (b *Builder) Where(slug string, condition any) *Builder {
	if m, ok := condition.(map[string]any); ok {
		c := b.clone()
		if len(m) != 1 {
			// recorded as-is; Execute rejects it with ErrInvalidPredicate
			c.preds = append(c.preds, predicate{slug: slug, op: "", value: m})
			return c
		}
		for op, v := range m {
			c.preds = append(c.preds, predicate{slug: slug, op: op, value: v})
		}
		return c
	}
	return b.WhereOp(slug, "eq", condition)
}

// WhereOp adds one predicate with an explicit operator.
func (b *Builder) WhereOp(slug, op string, value any) *Builder {
	c := b.clone()
	c.preds = append(c.preds, predicate{slug: slug, op: op, value: value})
	return c
}

// OrderBy sets the single ordering term. Direction is "asc" or "desc",
// any case; anything else means ascending.
func (b *Builder) OrderBy(slug, direction string) *Builder {
	c := b.clone()
	c.orderBy = slug
	c.desc = strings.EqualFold(strings.TrimSpace(direction), "desc")
	return c
}

// Limit caps the number of returned rows. 0 means no cap.
func (b *Builder) Limit(n int) *Builder {
	c := b.clone()
	c.limit = n
	return c
}

// Offset skips the first n matching rows.
func (b *Builder) Offset(n int) *Builder {
	c := b.clone()
	c.offset = n
	return c
}

// Execute runs the query. storage.ErrCacheMiss when the table was never
// populated; storage.ErrCacheExpired when it holds rows but none are
// still valid. Within a valid table expired rows are simply invisible.
func (b *Builder) Execute(ctx context.Context) (*Result, error) {
	ts, err := b.store.SchemaFor(ctx, b.tableID)
	if err != nil {
		return nil, err
	}

	where, args, err := b.whereClause(ts)
	if err != nil {
		return nil, err
	}

	res := &Result{Schema: ts}
	err = b.store.DB().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE expires_at > ?", ts.CacheTable),
		time.Now().UTC()).Scan(&res.Total)
	if err != nil {
		return nil, fmt.Errorf("count cached rows: %w", err)
	}
	if res.Total == 0 {
		if expired, err := b.allExpired(ctx, ts.CacheTable); err != nil {
			return nil, err
		} else if expired {
			return nil, fmt.Errorf("table %s: %w", b.tableID, storage.ErrCacheExpired)
		}
	}
	err = b.store.DB().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ts.CacheTable, where),
		args...).Scan(&res.Filtered)
	if err != nil {
		return nil, fmt.Errorf("count matching rows: %w", err)
	}

	cols := make([]string, 0, len(ts.Columns)+1)
	cols = append(cols, "id")
	for _, c := range ts.Columns {
		cols = append(cols, c.Name)
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(cols, ", "), ts.CacheTable, where)
	if b.orderBy != "" {
		if col, ok := ts.ColumnForSlug(b.orderBy); ok {
			dir := "ASC"
			if b.desc {
				dir = "DESC"
			}
			q += fmt.Sprintf(" ORDER BY %s %s", col.Name, dir)
		}
	}
	if b.limit > 0 || b.offset > 0 {
		limit := b.limit
		if limit <= 0 {
			limit = -1 // sqlite: no limit, offset still applies
		}
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, b.offset)
	}

	rows, err := b.store.DB().QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan cached row: %w", err)
		}
		decodeRow(row)
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan cached rows: %w", err)
	}
	return res, nil
}

// Count returns the number of matching rows, ignoring limit and offset.
func (b *Builder) Count(ctx context.Context) (int, error) {
	ts, err := b.store.SchemaFor(ctx, b.tableID)
	if err != nil {
		return 0, err
	}
	where, args, err := b.whereClause(ts)
	if err != nil {
		return 0, err
	}
	var n int
	err = b.store.DB().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ts.CacheTable, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count matching rows: %w", err)
	}
	if n == 0 {
		if expired, err := b.allExpired(ctx, ts.CacheTable); err != nil {
			return 0, err
		} else if expired {
			return 0, fmt.Errorf("table %s: %w", b.tableID, storage.ErrCacheExpired)
		}
	}
	return n, nil
}

// allExpired reports whether the cache table holds rows but none with a
// future expiry.
func (b *Builder) allExpired(ctx context.Context, cacheTable string) (bool, error) {
	var raw, valid int
	err := b.store.DB().QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*), COUNT(CASE WHEN expires_at > ? THEN 1 END) FROM %s", cacheTable),
		time.Now().UTC()).Scan(&raw, &valid)
	if err != nil {
		return false, fmt.Errorf("check table expiry: %w", err)
	}
	return raw > 0 && valid == 0, nil
}

// whereClause renders the predicates as one AND-joined clause. The
// expiration filter is always present, so expired rows never surface.
func (b *Builder) whereClause(ts *schema.TableSchema) (string, []any, error) {
	clauses := []string{"expires_at > ?"}
	args := []any{time.Now().UTC()}

	for _, p := range b.preds {
		col, ok := ts.ColumnForSlug(p.slug)
		if !ok {
			continue // schema drift tolerance
		}
		clause, cargs, err := predicateSQL(ts.CacheTable, col.Name, p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, cargs...)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func predicateSQL(table, col string, p predicate) (string, []any, error) {
	switch p.op {
	case "eq":
		return col + " = ?", []any{p.value}, nil
	case "ne":
		return col + " != ?", []any{p.value}, nil
	case "gt":
		return col + " > ?", []any{p.value}, nil
	case "gte":
		return col + " >= ?", []any{p.value}, nil
	case "lt":
		return col + " < ?", []any{p.value}, nil
	case "lte":
		return col + " <= ?", []any{p.value}, nil

	case "contains":
		return col + " LIKE ? ESCAPE '\\'", []any{"%" + likeEscape(p.value) + "%"}, nil
	case "starts_with":
		return col + " LIKE ? ESCAPE '\\'", []any{likeEscape(p.value) + "%"}, nil
	case "ends_with":
		return col + " LIKE ? ESCAPE '\\'", []any{"%" + likeEscape(p.value)}, nil

	case "in", "not_in":
		vals, err := valueList(p)
		if err != nil {
			return "", nil, err
		}
		if len(vals) == 0 {
			if p.op == "in" {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		kw := "IN"
		if p.op == "not_in" {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, kw, placeholders(len(vals))), vals, nil

	case "between":
		min, max, err := betweenBounds(p)
		if err != nil {
			return "", nil, err
		}
		return col + " BETWEEN ? AND ?", []any{min, max}, nil

	case "is_null":
		return col + " IS NULL", nil, nil
	case "is_not_null":
		return col + " IS NOT NULL", nil, nil
	case "is_empty":
		return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col), nil, nil
	case "is_not_empty":
		return fmt.Sprintf("NOT (%s IS NULL OR %s = '')", col, col), nil, nil

	case "has_any_of", "has_all_of", "has_none_of":
		return jsonMembershipSQL(table, col, p)

	case "":
		return "", nil, fmt.Errorf("%w: op-map for %q must have exactly one operator", ErrInvalidPredicate, p.slug)
	default:
		return "", nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidPredicate, p.op)
	}
}

// jsonMembershipSQL tests membership in a JSON-array column. A column
// holding anything but a JSON array (including NULL) has no members, so
// has_any_of never matches it and has_none_of always does.
func jsonMembershipSQL(table, col string, p predicate) (string, []any, error) {
	vals, err := valueList(p)
	if err != nil {
		return "", nil, err
	}
	// a NULL or non-JSON value has no members; the CASE keeps json_each
	// from ever seeing malformed input
	qcol := table + "." + col
	exists := func(n int) string {
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(CASE WHEN json_valid(%s) THEN %s ELSE '[]' END) WHERE json_each.value IN (%s))",
			qcol, qcol, placeholders(n))
	}

	switch p.op {
	case "has_any_of":
		if len(vals) == 0 {
			return "1 = 0", nil, nil
		}
		return exists(len(vals)), vals, nil
	case "has_all_of":
		if len(vals) == 0 {
			return "1 = 1", nil, nil
		}
		clauses := make([]string, len(vals))
		for i := range vals {
			clauses[i] = exists(1)
		}
		return "(" + strings.Join(clauses, " AND ") + ")", vals, nil
	default: // has_none_of
		if len(vals) == 0 {
			return "1 = 1", nil, nil
		}
		return "NOT " + exists(len(vals)), vals, nil
	}
}

// valueList coerces a list-valued operator argument.
func valueList(p predicate) ([]any, error) {
	switch t := p.value.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s expects a list, got %T", ErrInvalidPredicate, p.op, p.value)
	}
}

// betweenBounds accepts {min, max} or a two-element list.
func betweenBounds(p predicate) (any, any, error) {
	switch t := p.value.(type) {
	case map[string]any:
		min, okMin := t["min"]
		max, okMax := t["max"]
		if !okMin || !okMax {
			return nil, nil, fmt.Errorf("%w: between expects min and max", ErrInvalidPredicate)
		}
		return min, max, nil
	case []any:
		if len(t) != 2 {
			return nil, nil, fmt.Errorf("%w: between expects two bounds, got %d", ErrInvalidPredicate, len(t))
		}
		return t[0], t[1], nil
	default:
		return nil, nil, fmt.Errorf("%w: between expects {min, max}, got %T", ErrInvalidPredicate, p.value)
	}
}

func likeEscape(v any) string {
	s := fmt.Sprintf("%v", v)
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// decodeRow converts stored JSON-text values back into structured
// values and collapses composite rich-documents to their HTML payload.
// The stored row keeps the full composite; only the returned mapping is
// collapsed.
func decodeRow(row map[string]any) {
	for k, v := range row {
		s, ok := v.(string)
		if !ok || len(s) == 0 {
			continue
		}
		if s[0] != '{' && s[0] != '[' {
			continue
		}
		if !gjson.Valid(s) {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			continue
		}
		if html, ok := richDocHTML(decoded); ok {
			row[k] = html
			continue
		}
		row[k] = decoded
	}
}

// richDocHTML recognizes the composite rich-document shape: a mapping
// carrying both "data" and "html" keys ("preview" and "yjsData" occur
// in the canonical form but are not required). Mappings with an html
// key but no data key are ordinary values and stay untouched.
func richDocHTML(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	if _, hasData := m["data"]; !hasData {
		return "", false
	}
	htmlVal, hasHTML := m["html"]
	if !hasHTML {
		return "", false
	}
	html, _ := htmlVal.(string)
	return html, true
}
