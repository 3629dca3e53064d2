package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ScopeStatus describes one scope's cache health.
type ScopeStatus struct {
	Count     int        `json:"count"`
	IsValid   bool       `json:"is_valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TableStatus is ScopeStatus for one upstream table's records cache.
type TableStatus struct {
	TableID   string     `json:"table_id"`
	Count     int        `json:"count"`
	IsValid   bool       `json:"is_valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// StatusReport is the full cache status snapshot.
type StatusReport struct {
	Timestamp time.Time     `json:"timestamp"`
	Solutions ScopeStatus   `json:"solutions"`
	Tables    ScopeStatus   `json:"tables"`
	Members   ScopeStatus   `json:"members"`
	Teams     ScopeStatus   `json:"teams"`
	Records   []TableStatus `json:"records"`
}

// Status reports counts, validity, and next expiry for every scope.
func (s *Store) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{Timestamp: time.Now().UTC()}

	var err error
	if report.Solutions, err = s.tableStatus(ctx, "cached_solutions", ""); err != nil {
		return nil, err
	}
	if report.Tables, err = s.tableStatus(ctx, "cached_tables", ""); err != nil {
		return nil, err
	}
	if report.Members, err = s.tableStatus(ctx, "cached_members", ""); err != nil {
		return nil, err
	}
	if report.Teams, err = s.tableStatus(ctx, "cached_teams", ""); err != nil {
		return nil, err
	}

	registered, err := s.RegisteredTables(ctx)
	if err != nil {
		return nil, err
	}
	for tableID, sqlTable := range registered {
		st, err := s.tableStatus(ctx, sqlTable, "")
		if err != nil {
			return nil, err
		}
		report.Records = append(report.Records, TableStatus{
			TableID:   tableID,
			Count:     st.Count,
			IsValid:   st.IsValid,
			ExpiresAt: st.ExpiresAt,
		})
	}
	return report, nil
}

// tableStatus counts the non-expired rows of one physical table and
// finds their nearest expiry.
func (s *Store) tableStatus(ctx context.Context, sqlTable, where string) (ScopeStatus, error) {
	now := time.Now().UTC()
	q := fmt.Sprintf(`SELECT COUNT(*), MAX(expires_at) FROM %s WHERE expires_at > ?`, sqlTable)
	if where != "" {
		q += " AND " + where
	}

	var count int
	var expiresRaw sql.NullString
	err := s.db.QueryRowContext(ctx, q, now).Scan(&count, &expiresRaw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ScopeStatus{}, wrapDBError("read cache status", err)
	}

	st := ScopeStatus{Count: count, IsValid: count > 0}
	if expiresRaw.Valid {
		if t, err := parseStoredTime(expiresRaw.String); err == nil {
			st.ExpiresAt = &t
		}
	}
	return st, nil
}

// parseStoredTime parses the driver's sqlite text timestamp formats.
func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized stored timestamp: %q", s)
}
