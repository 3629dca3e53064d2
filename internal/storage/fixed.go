package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smartsuite-tools/ssc/internal/types"
)

// Fixed-shape caches: solutions, table lists, members, teams. All share
// the records cache's replace-wholesale contract; the global table list
// is cached under solution id "" so a solution-scoped list and the global
// one can coexist with independent expiries.

// StoreSolutions replaces the solutions cache. Returns rows written.
func (s *Store) StoreSolutions(ctx context.Context, solutions []types.Solution, ttl *time.Duration) (int, error) {
	effective := s.scopeTTL(ctx, types.ScopeSolutions, ttl)
	cachedAt := time.Now().UTC()
	expiresAt := cachedAt.Add(effective)

	err := s.runInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cached_solutions"); err != nil {
			return wrapDBError("clear solutions cache", err)
		}
		for _, sol := range solutions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO cached_solutions (id, name, logo_icon, logo_color, cached_at, expires_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				sol.ID, sol.Name, sol.LogoIcon, sol.LogoColor, cachedAt, expiresAt)
			if err != nil {
				return wrapDBError("insert cached solution", err)
			}
		}
		return s.setStatTx(ctx, tx, string(types.ScopeSolutions), "count", fmt.Sprintf("%d", len(solutions)))
	})
	if err != nil {
		return 0, err
	}
	return len(solutions), nil
}

// StoreTableList replaces the cached table list for one solution
// (solutionID "" is the global list). Only that solution's rows are
// replaced; other solutions' lists are untouched.
func (s *Store) StoreTableList(ctx context.Context, solutionID string, tables []types.Table, ttl *time.Duration) (int, error) {
	effective := s.scopeTTL(ctx, types.ScopeTables, ttl)
	cachedAt := time.Now().UTC()
	expiresAt := cachedAt.Add(effective)

	err := s.runInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cached_tables WHERE list_key = ?", solutionID); err != nil {
			return wrapDBError("clear table-list cache", err)
		}
		for _, t := range tables {
			structureJSON, err := json.Marshal(t.Structure)
			if err != nil {
				return fmt.Errorf("failed to encode structure for table %s: %w", t.ID, err)
			}
			parent := t.SolutionID
			if parent == "" {
				parent = solutionID
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO cached_tables (id, list_key, solution_id, name, structure_json, cached_at, expires_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				t.ID, solutionID, parent, t.Name, string(structureJSON), cachedAt, expiresAt)
			if err != nil {
				return wrapDBError("insert cached table", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(tables), nil
}

// GetTableList returns the non-expired cached tables for a solution
// ("" for the global list). ErrCacheMiss when nothing valid is cached.
func (s *Store) GetTableList(ctx context.Context, solutionID string) ([]types.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, solution_id, name, structure_json FROM cached_tables
		WHERE list_key = ? AND expires_at > ?
		ORDER BY name`, solutionID, time.Now().UTC())
	if err != nil {
		return nil, wrapDBError("read table-list cache", err)
	}
	defer rows.Close()

	var out []types.Table
	for rows.Next() {
		var t types.Table
		var structureJSON string
		if err := rows.Scan(&t.ID, &t.SolutionID, &t.Name, &structureJSON); err != nil {
			return nil, wrapDBError("scan cached table", err)
		}
		if err := json.Unmarshal([]byte(structureJSON), &t.Structure); err != nil {
			return nil, fmt.Errorf("failed to decode structure for table %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("scan cached tables", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table list for solution %q: %w", solutionID, ErrCacheMiss)
	}
	return out, nil
}

// GetSolutions returns the non-expired cached solutions.
func (s *Store) GetSolutions(ctx context.Context) ([]types.Solution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, logo_icon, logo_color FROM cached_solutions
		WHERE expires_at > ? ORDER BY name`, time.Now().UTC())
	if err != nil {
		return nil, wrapDBError("read solutions cache", err)
	}
	defer rows.Close()

	var out []types.Solution
	for rows.Next() {
		var sol types.Solution
		if err := rows.Scan(&sol.ID, &sol.Name, &sol.LogoIcon, &sol.LogoColor); err != nil {
			return nil, wrapDBError("scan cached solution", err)
		}
		out = append(out, sol)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("scan cached solutions", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("solutions: %w", ErrCacheMiss)
	}
	return out, nil
}

// StoreMembers replaces the members cache.
func (s *Store) StoreMembers(ctx context.Context, members []types.Member, ttl *time.Duration) (int, error) {
	effective := s.scopeTTL(ctx, types.ScopeMembers, ttl)
	cachedAt := time.Now().UTC()
	expiresAt := cachedAt.Add(effective)

	err := s.runInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cached_members"); err != nil {
			return wrapDBError("clear members cache", err)
		}
		for _, m := range members {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO cached_members
					(id, email, role, first_name, last_name, full_name, job_title, department, status, deleted_date, cached_at, expires_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.Email, m.Role, m.FirstName, m.LastName, m.FullName,
				m.JobTitle, m.Department, m.Status, m.DeletedDate, cachedAt, expiresAt)
			if err != nil {
				return wrapDBError("insert cached member", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// GetMembers returns the non-expired cached members.
func (s *Store) GetMembers(ctx context.Context) ([]types.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, role, first_name, last_name, full_name, job_title, department, status, deleted_date
		FROM cached_members WHERE expires_at > ? ORDER BY full_name`, time.Now().UTC())
	if err != nil {
		return nil, wrapDBError("read members cache", err)
	}
	defer rows.Close()

	var out []types.Member
	for rows.Next() {
		var m types.Member
		if err := rows.Scan(&m.ID, &m.Email, &m.Role, &m.FirstName, &m.LastName,
			&m.FullName, &m.JobTitle, &m.Department, &m.Status, &m.DeletedDate); err != nil {
			return nil, wrapDBError("scan cached member", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("scan cached members", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("members: %w", ErrCacheMiss)
	}
	return out, nil
}

// StoreTeams replaces the teams cache.
func (s *Store) StoreTeams(ctx context.Context, teams []types.Team, ttl *time.Duration) (int, error) {
	effective := s.scopeTTL(ctx, types.ScopeTeams, ttl)
	cachedAt := time.Now().UTC()
	expiresAt := cachedAt.Add(effective)

	err := s.runInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cached_teams"); err != nil {
			return wrapDBError("clear teams cache", err)
		}
		for _, t := range teams {
			membersJSON, err := json.Marshal(t.Members)
			if err != nil {
				return fmt.Errorf("failed to encode members for team %s: %w", t.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO cached_teams (id, name, description, member_count, members_json, cached_at, expires_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.Name, t.Description, t.MemberCount, string(membersJSON), cachedAt, expiresAt)
			if err != nil {
				return wrapDBError("insert cached team", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(teams), nil
}

// GetTeams returns the non-expired cached teams.
func (s *Store) GetTeams(ctx context.Context) ([]types.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, member_count, members_json
		FROM cached_teams WHERE expires_at > ? ORDER BY name`, time.Now().UTC())
	if err != nil {
		return nil, wrapDBError("read teams cache", err)
	}
	defer rows.Close()

	var out []types.Team
	for rows.Next() {
		var t types.Team
		var membersJSON string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.MemberCount, &membersJSON); err != nil {
			return nil, wrapDBError("scan cached team", err)
		}
		if err := json.Unmarshal([]byte(membersJSON), &t.Members); err != nil {
			return nil, fmt.Errorf("failed to decode members for team %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("scan cached teams", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("teams: %w", ErrCacheMiss)
	}
	return out, nil
}

// scopeTTL resolves the TTL for a fixed-shape scope: explicit override,
// then a per-scope configured value (keyed by the scope name in the TTL
// config table), then the default preset.
func (s *Store) scopeTTL(ctx context.Context, scope types.Scope, override *time.Duration) time.Duration {
	if override != nil {
		return *override
	}
	ttl, err := s.GetTTL(ctx, "scope:"+string(scope))
	if err != nil {
		return DefaultTTL
	}
	return ttl
}
