package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smartsuite-tools/ssc/internal/types"
)

// Invalidate marks a scope stale, cascading through nested scopes. A
// records cache is dropped and deregistered, not just emptied: the next
// read must miss and refetch rather than see an empty table that looks
// legitimately populated. Each call commits atomically; once it returns,
// Valid reports false for everything it covered.
//
//	records + table id    -> that table's cache only
//	tables + solution id  -> that solution's list + its tables' records
//	tables, no id         -> every table list + every records cache
//	solutions             -> solutions + every table list + every records cache
//	members / teams       -> that scope only
func (s *Store) Invalidate(ctx context.Context, scope types.Scope, id string) error {
	switch scope {
	case types.ScopeRecords:
		if id == "" {
			return fmt.Errorf("invalidating records requires a table id")
		}
		return s.invalidateRecords(ctx, id)
	case types.ScopeTables:
		return s.invalidateTableList(ctx, id)
	case types.ScopeSolutions:
		return s.invalidateSolutions(ctx)
	case types.ScopeMembers:
		return s.clearTable(ctx, "cached_members")
	case types.ScopeTeams:
		return s.clearTable(ctx, "cached_teams")
	default:
		return fmt.Errorf("unknown cache scope: %s", scope)
	}
}

func (s *Store) invalidateRecords(ctx context.Context, tableID string) error {
	registered, err := s.RegisteredTables(ctx)
	if err != nil {
		return err
	}
	sqlTable, ok := registered[tableID]
	if !ok {
		return nil // never cached; nothing to do
	}
	err = s.runInTransaction(ctx, func(tx *sql.Conn) error {
		return s.dropRecordsCacheTx(ctx, tx, tableID, sqlTable)
	})
	if err != nil {
		return err
	}
	s.forgetSchemas(tableID)
	return nil
}

func (s *Store) invalidateTableList(ctx context.Context, solutionID string) error {
	registered, err := s.RegisteredTables(ctx)
	if err != nil {
		return err
	}

	doomed := make(map[string]string)
	if solutionID == "" {
		// global: every records cache goes
		for id, sqlTable := range registered {
			doomed[id] = sqlTable
		}
	} else {
		ids, err := s.tablesOfSolution(ctx, solutionID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if sqlTable, ok := registered[id]; ok {
				doomed[id] = sqlTable
			}
		}
	}

	err = s.runInTransaction(ctx, func(tx *sql.Conn) error {
		var err error
		if solutionID == "" {
			_, err = tx.ExecContext(ctx, "DELETE FROM cached_tables")
		} else {
			_, err = tx.ExecContext(ctx,
				"DELETE FROM cached_tables WHERE list_key = ? OR solution_id = ?", solutionID, solutionID)
		}
		if err != nil {
			return wrapDBError("invalidate table-list cache", err)
		}
		for id, sqlTable := range doomed {
			if err := s.dropRecordsCacheTx(ctx, tx, id, sqlTable); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.forgetSchemas(keysOf(doomed)...)
	return nil
}

func (s *Store) invalidateSolutions(ctx context.Context) error {
	registered, err := s.RegisteredTables(ctx)
	if err != nil {
		return err
	}
	err = s.runInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cached_solutions"); err != nil {
			return wrapDBError("invalidate solutions cache", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM cached_tables"); err != nil {
			return wrapDBError("invalidate table-list cache", err)
		}
		for id, sqlTable := range registered {
			if err := s.dropRecordsCacheTx(ctx, tx, id, sqlTable); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.forgetSchemas(keysOf(registered)...)
	return nil
}

// dropRecordsCacheTx removes one records cache entirely: the table and
// its registry row. SchemaFor misses afterwards.
func (s *Store) dropRecordsCacheTx(ctx context.Context, tx *sql.Conn, tableID, sqlTable string) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlTable); err != nil {
		return wrapDBError("drop records cache", err)
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM cache_table_registry WHERE upstream_id = ?", tableID)
	return wrapDBError("deregister records cache", err)
}

func (s *Store) forgetSchemas(tableIDs ...string) {
	s.schemaMu.Lock()
	for _, id := range tableIDs {
		delete(s.schemas, id)
	}
	s.schemaMu.Unlock()
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (s *Store) clearTable(ctx context.Context, table string) error {
	return s.runInTransaction(ctx, func(tx *sql.Conn) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		return wrapDBError("invalidate "+table, err)
	})
}

// tablesOfSolution returns the upstream table ids cached as belonging to
// a solution, whichever list they arrived through.
func (s *Store) tablesOfSolution(ctx context.Context, solutionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT id FROM cached_tables WHERE solution_id = ? OR list_key = ?`, solutionID, solutionID)
	if err != nil {
		return nil, wrapDBError("read cached tables for solution", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan cached table id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Valid reports whether a scope holds at least one row that has not
// expired. For records the id is the upstream table id; for tables it is
// the list key ("" for the global list).
func (s *Store) Valid(ctx context.Context, scope types.Scope, id string) (bool, error) {
	now := time.Now().UTC()
	var query string
	var args []any

	switch scope {
	case types.ScopeSolutions:
		query, args = `SELECT COUNT(*) FROM cached_solutions WHERE expires_at > ?`, []any{now}
	case types.ScopeTables:
		query, args = `SELECT COUNT(*) FROM cached_tables WHERE list_key = ? AND expires_at > ?`, []any{id, now}
	case types.ScopeMembers:
		query, args = `SELECT COUNT(*) FROM cached_members WHERE expires_at > ?`, []any{now}
	case types.ScopeTeams:
		query, args = `SELECT COUNT(*) FROM cached_teams WHERE expires_at > ?`, []any{now}
	case types.ScopeRecords:
		registered, err := s.RegisteredTables(ctx)
		if err != nil {
			return false, err
		}
		sqlTable, ok := registered[id]
		if !ok {
			return false, nil
		}
		query, args = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE expires_at > ?`, sqlTable), []any{now}
	default:
		return false, fmt.Errorf("unknown cache scope: %s", scope)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, wrapDBError("check cache validity", err)
	}
	return n > 0, nil
}
