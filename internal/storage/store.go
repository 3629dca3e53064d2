// Package storage owns the single-file SQLite store that backs the
// cache: the dynamically created per-table record caches, the fixed-shape
// solution/table/member/team caches, and the metadata tables (registry,
// TTL config, stats, performance counters).
//
// The store is the only writer; reads go through the query package or the
// accessors here. All multi-statement mutations run under a single
// IMMEDIATE transaction.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	// Import SQLite driver
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/smartsuite-tools/ssc/internal/schema"
)

// DefaultTTL applies when a table has no configured TTL and the caller
// passes none: the "default" mutation-frequency preset.
const DefaultTTL = 12 * time.Hour

var memdbSeq atomic.Int64

// Store is the cache's single-file relational store.
type Store struct {
	db     *sqlx.DB
	dbPath string
	closed atomic.Bool

	// synthesized schemas by upstream table id, loaded lazily from the
	// registry after restart
	schemaMu sync.RWMutex
	schemas  map[string]*schema.TableSchema

	// in-memory performance ledger, flushed to cache_performance
	perfMu        sync.Mutex
	perfLedger    map[string]*perfCounts
	perfOps       int
	perfLastFlush time.Time

	// flush tunables; see DefaultFlushThreshold / DefaultFlushInterval
	flushThreshold int
	flushInterval  time.Duration
}

func init() {
	// Cache the wazero-compiled SQLite module across process starts to
	// avoid recompiling the WASM build on every open.
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "ssc", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(c)
		}
	}
}

// Open opens (creating if needed) the cache store at path. ":memory:" is
// supported for tests. The store file is created owner-only.
func Open(ctx context.Context, path string) (*Store, error) {
	var connStr string
	var chmodPath string
	isInMemory := path == ":memory:" || (strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	switch {
	case path == ":memory:":
		// Shared cache so every pooled connection sees the same data. The
		// name is unique per open so independent stores stay independent.
		// WAL does not apply to in-memory databases.
		connStr = fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite",
			memdbSeq.Add(1))
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			connStr += sep + "_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	default:
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		// Pre-create owner-only so the file never exists with a wider mode.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create store file: %w", err)
		}
		_ = f.Close()
		chmodPath = path
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are per-connection without this.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports 1 writer + N readers; cap the pool so write-lock
		// contention doesn't pile up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, metaSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if chmodPath != "" {
		// The store holds API data; tighten pre-existing files too.
		if err := os.Chmod(chmodPath, 0o600); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set store permissions: %w", err)
		}
	}

	s := &Store{
		db:             sqlx.NewDb(db, "sqlite3"),
		dbPath:         path,
		schemas:        make(map[string]*schema.TableSchema),
		perfLedger:     make(map[string]*perfCounts),
		perfLastFlush:  time.Now(),
		flushThreshold: DefaultFlushThreshold,
		flushInterval:  DefaultFlushInterval,
	}
	return s, nil
}

// Close checkpoints the WAL and closes the store. Pending performance
// counters are flushed first so at most a few minutes of counter data can
// be lost at process exit.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	// counters are best-effort; don't block shutdown on them
	_ = s.FlushPerformance(context.Background())
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.dbPath
}

// DB exposes the underlying handle for the query engine.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
