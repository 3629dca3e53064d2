package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SetStat upserts a free-form stat value under (scope, key).
func (s *Store) SetStat(ctx context.Context, scope, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_stats (scope, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		scope, key, value, time.Now().UTC())
	return wrapDBError("write cache stat", err)
}

// GetStat reads a stat value; ErrNotFound when it was never written.
func (s *Store) GetStat(ctx context.Context, scope, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_stats WHERE scope = ? AND key = ?`, scope, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapDBError("read cache stat", err)
	}
	return v, nil
}

func (s *Store) setStatTx(ctx context.Context, tx *sql.Conn, scope, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cache_stats (scope, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		scope, key, value, time.Now().UTC())
	return wrapDBError("write cache stat", err)
}
