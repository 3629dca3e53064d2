package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smartsuite-tools/ssc/internal/schema"
	"github.com/smartsuite-tools/ssc/internal/types"
)

// CreateOrReplaceCacheTable ensures a cache table exists for the upstream
// table and matches its current structure. When the registered
// fingerprint matches, the existing table (and its rows) is kept so a
// pure record refresh does not drop the cache; otherwise the table is
// dropped and recreated and the registry row replaced, all in one
// transaction.
func (s *Store) CreateOrReplaceCacheTable(ctx context.Context, tableID string, structure []types.Field) (*schema.TableSchema, error) {
	ts := schema.Synthesize(tableID, structure)

	existing, err := s.registeredFingerprint(ctx, tableID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err == nil && existing == ts.Fingerprint {
		s.rememberSchema(ts)
		return ts, nil
	}

	structureJSON, err := json.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("failed to encode structure: %w", err)
	}

	err = s.runInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ts.CacheTable); err != nil {
			return wrapDBError("drop cache table", err)
		}
		if _, err := tx.ExecContext(ctx, ts.DDL()); err != nil {
			return wrapDBError("create cache table", err)
		}
		for _, stmt := range ts.IndexDDL() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return wrapDBError("create cache index", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_table_registry (upstream_id, sql_table_name, fingerprint, structure_json, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(upstream_id) DO UPDATE SET
				sql_table_name = excluded.sql_table_name,
				fingerprint = excluded.fingerprint,
				structure_json = excluded.structure_json,
				created_at = excluded.created_at`,
			tableID, ts.CacheTable, ts.Fingerprint, string(structureJSON), time.Now().UTC())
		return wrapDBError("update cache table registry", err)
	})
	if err != nil {
		return nil, err
	}

	s.rememberSchema(ts)
	return ts, nil
}

// SchemaFor returns the synthesized schema for a cached upstream table,
// reloading it from the registry when this process has not seen the table
// yet. ErrCacheMiss when the table was never populated.
func (s *Store) SchemaFor(ctx context.Context, tableID string) (*schema.TableSchema, error) {
	s.schemaMu.RLock()
	ts, ok := s.schemas[tableID]
	s.schemaMu.RUnlock()
	if ok {
		return ts, nil
	}

	structure, err := s.StructureFor(ctx, tableID)
	if err != nil {
		return nil, err
	}

	ts = schema.Synthesize(tableID, structure)
	s.rememberSchema(ts)
	return ts, nil
}

// StructureFor returns the upstream field structure the table's cache
// was last built from. ErrCacheMiss when the table was never populated.
func (s *Store) StructureFor(ctx context.Context, tableID string) ([]types.Field, error) {
	var structureJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT structure_json FROM cache_table_registry WHERE upstream_id = ?`, tableID).
		Scan(&structureJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", tableID, ErrCacheMiss)
	}
	if err != nil {
		return nil, wrapDBError("load cache table registry", err)
	}
	var structure []types.Field
	if err := json.Unmarshal([]byte(structureJSON), &structure); err != nil {
		return nil, fmt.Errorf("failed to decode registered structure for %s: %w", tableID, err)
	}
	return structure, nil
}

// RegisteredTables returns the upstream ids of every registered cache
// table with its storage table name.
func (s *Store) RegisteredTables(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT upstream_id, sql_table_name FROM cache_table_registry`)
	if err != nil {
		return nil, wrapDBError("list cache table registry", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, wrapDBError("scan cache table registry", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (s *Store) registeredFingerprint(ctx context.Context, tableID string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM cache_table_registry WHERE upstream_id = ?`, tableID).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapDBError("read cache table registry", err)
	}
	return fp, nil
}

func (s *Store) rememberSchema(ts *schema.TableSchema) {
	s.schemaMu.Lock()
	s.schemas[ts.UpstreamID] = ts
	s.schemaMu.Unlock()
}
