package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TTLConfig is one row of cache_ttl_config.
type TTLConfig struct {
	TableID       string        `json:"table_id"`
	TTL           time.Duration `json:"ttl_seconds"`
	MutationLevel string        `json:"mutation_level,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// GetTTL returns the configured TTL for a table, or DefaultTTL when none
// is set.
func (s *Store) GetTTL(ctx context.Context, tableID string) (time.Duration, error) {
	cfg, err := s.GetTTLConfig(ctx, tableID)
	if errors.Is(err, ErrNotFound) {
		return DefaultTTL, nil
	}
	if err != nil {
		return 0, err
	}
	return cfg.TTL, nil
}

// GetTTLConfig returns the full TTL config row for a table.
func (s *Store) GetTTLConfig(ctx context.Context, tableID string) (*TTLConfig, error) {
	var (
		seconds int64
		level   string
		notes   string
		updated time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ttl_seconds, mutation_level, notes, updated_at FROM cache_ttl_config WHERE upstream_id = ?`,
		tableID).Scan(&seconds, &level, &notes, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapDBError("read ttl config", err)
	}
	return &TTLConfig{
		TableID:       tableID,
		TTL:           time.Duration(seconds) * time.Second,
		MutationLevel: level,
		Notes:         notes,
		UpdatedAt:     updated,
	}, nil
}

// SetTTL persists a per-table TTL. It touches only the config table,
// never cached rows: existing rows keep the expiry they were written
// with.
func (s *Store) SetTTL(ctx context.Context, tableID string, ttl time.Duration, mutationLevel, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_ttl_config (upstream_id, ttl_seconds, mutation_level, notes, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(upstream_id) DO UPDATE SET
			ttl_seconds = excluded.ttl_seconds,
			mutation_level = excluded.mutation_level,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		tableID, int64(ttl/time.Second), mutationLevel, notes, time.Now().UTC())
	return wrapDBError("write ttl config", err)
}

// effectiveTTL resolves the TTL for a populate: explicit override first,
// then the configured value, then the default preset.
func (s *Store) effectiveTTL(ctx context.Context, tableID string, override *time.Duration) time.Duration {
	if override != nil {
		return *override
	}
	ttl, err := s.GetTTL(ctx, tableID)
	if err != nil {
		return DefaultTTL
	}
	return ttl
}
