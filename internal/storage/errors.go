package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for common cache conditions
var (
	// ErrCacheMiss indicates a query against a table that has never been
	// populated. The caller recovers by fetching upstream and populating.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheExpired indicates the scope exists but holds no row with
	// expires_at in the future. Equivalent to a miss for callers that
	// re-fetch.
	ErrCacheExpired = errors.New("cache expired")

	// ErrNotFound indicates the requested row was not found in the store
	ErrNotFound = errors.New("not found")
)

// wrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to ErrNotFound for consistent error handling.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
