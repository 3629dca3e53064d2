package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smartsuite-tools/ssc/internal/schema"
	"github.com/smartsuite-tools/ssc/internal/types"
)

// StoreRecords materializes the given records as the complete contents of
// the table's cache: existing rows are removed and the new rows inserted
// in one transaction. ttl nil means the table's configured TTL (or the
// default preset). Returns the number of rows written.
func (s *Store) StoreRecords(ctx context.Context, tableID string, structure []types.Field, records []types.Record, ttl *time.Duration) (int, error) {
	ts, err := s.CreateOrReplaceCacheTable(ctx, tableID, structure)
	if err != nil {
		return 0, err
	}

	effective := s.effectiveTTL(ctx, tableID, ttl)
	cachedAt := time.Now().UTC()
	expiresAt := cachedAt.Add(effective)

	cols := make([]string, 0, len(ts.Columns)+3)
	cols = append(cols, "id")
	for _, c := range ts.Columns {
		cols = append(cols, c.Name)
	}
	cols = append(cols, "cached_at", "expires_at")
	insertSQL := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		ts.CacheTable, strings.Join(cols, ", "), placeholders(len(cols)))

	err = s.runInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+ts.CacheTable); err != nil {
			return wrapDBError("clear cache table", err)
		}
		for _, rec := range records {
			vals, err := rowValues(ts, structure, rec)
			if err != nil {
				return err
			}
			args := make([]any, 0, len(cols))
			args = append(args, rec.ID())
			args = append(args, vals...)
			args = append(args, cachedAt, expiresAt)
			if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
				return wrapDBError("insert cached record", err)
			}
		}
		return s.setStatTx(ctx, tx, string(types.ScopeRecords), tableID, fmt.Sprintf("%d", len(records)))
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// rowValues extracts one stored value per schema column from a record,
// in schema column order. Columns with no value stay nil.
func rowValues(ts *schema.TableSchema, structure []types.Field, rec types.Record) ([]any, error) {
	byName := make(map[string]any, len(ts.Columns))

	ci := 0
	for _, f := range structure {
		raw, present := rec[f.Slug]
		ft := strings.ToLower(strings.TrimSpace(f.FieldType))

		// walk the columns this field owns (1 or 2, in synthesis order)
		owned := []schema.Column{ts.Columns[ci]}
		ci++
		if ft == "firstcreated" || ft == "lastupdated" || ft == "status" || ft == "statusfield" {
			owned = append(owned, ts.Columns[ci])
			ci++
		}

		if !present || raw == nil {
			continue
		}

		switch ft {
		case "firstcreated", "lastupdated":
			on, by := splitActorStamp(raw)
			byName[owned[0].Name] = on
			byName[owned[1].Name] = by
		case "status", "statusfield":
			value, updatedOn := splitStatus(raw)
			byName[owned[0].Name] = value
			if updatedOn != nil {
				byName[owned[1].Name] = updatedOn
			}
		case "yesno", "yesnofield":
			byName[owned[0].Name] = boolToInt(raw)
		default:
			v, err := storableValue(raw)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Slug, err)
			}
			byName[owned[0].Name] = v
		}
	}

	out := make([]any, len(ts.Columns))
	for i, c := range ts.Columns {
		out[i] = byName[c.Name]
	}
	return out, nil
}

// storableValue flattens a decoded JSON value into something a single
// column can hold. Collections and mappings (including composite
// rich-documents, which are cached whole) become JSON text.
func storableValue(v any) (any, error) {
	switch v.(type) {
	case string, float64, int, int64, bool:
		return v, nil
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize collection value: %w", err)
		}
		return string(b), nil
	default:
		// unusual scalar; store its JSON form rather than guessing
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize value: %w", err)
		}
		return string(b), nil
	}
}

// splitActorStamp pulls {on, by} out of a firstcreated/lastupdated value.
func splitActorStamp(v any) (on, by any) {
	m, ok := v.(map[string]any)
	if !ok {
		return stringify(v), nil
	}
	if x, ok := m["on"]; ok {
		on = stringify(x)
	}
	if x, ok := m["by"]; ok {
		by = stringify(x)
	}
	return on, by
}

// splitStatus pulls {value, updated_on} out of a status value. A bare
// string is the value with no timestamp.
func splitStatus(v any) (value, updatedOn any) {
	switch t := v.(type) {
	case string:
		return t, nil
	case map[string]any:
		if x, ok := t["value"]; ok {
			value = stringify(x)
		}
		if x, ok := t["updated_on"]; ok {
			updatedOn = stringify(x)
		}
		return value, updatedOn
	default:
		return stringify(v), nil
	}
}

func boolToInt(v any) int {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
	case float64:
		if t != 0 {
			return 1
		}
	case int:
		if t != 0 {
			return 1
		}
	case string:
		switch strings.ToLower(t) {
		case "true", "yes", "1":
			return 1
		}
	}
	return 0
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
