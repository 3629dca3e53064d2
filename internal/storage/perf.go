package storage

import (
	"context"
	"database/sql"
	"time"
)

// Auto-flush tunables. The ledger flushes on the first increment after
// either trigger fires, keeping durable counter writes rare while
// bounding how much counter data a crash can lose.
const (
	DefaultFlushThreshold = 100
	DefaultFlushInterval  = 5 * time.Minute
)

type perfCounts struct {
	hits   int64
	misses int64
}

// Performance is one table's durable hit/miss counters.
type Performance struct {
	TableID   string    `json:"table_id"`
	HitCount  int64     `json:"hit_count"`
	MissCount int64     `json:"miss_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetFlushPolicy overrides the auto-flush triggers (for tests and tuning).
func (s *Store) SetFlushPolicy(threshold int, interval time.Duration) {
	s.perfMu.Lock()
	s.flushThreshold = threshold
	s.flushInterval = interval
	s.perfMu.Unlock()
}

// RecordHit notes a cache hit for a table in the in-memory ledger.
func (s *Store) RecordHit(ctx context.Context, tableID string) {
	s.recordPerf(ctx, tableID, 1, 0)
}

// RecordMiss notes a cache miss for a table in the in-memory ledger.
func (s *Store) RecordMiss(ctx context.Context, tableID string) {
	s.recordPerf(ctx, tableID, 0, 1)
}

func (s *Store) recordPerf(ctx context.Context, tableID string, hits, misses int64) {
	s.perfMu.Lock()
	c, ok := s.perfLedger[tableID]
	if !ok {
		c = &perfCounts{}
		s.perfLedger[tableID] = c
	}
	c.hits += hits
	c.misses += misses
	s.perfOps++
	shouldFlush := s.perfOps >= s.flushThreshold ||
		time.Since(s.perfLastFlush) >= s.flushInterval
	s.perfMu.Unlock()

	if shouldFlush {
		// best-effort: counters are eventually consistent by design
		_ = s.FlushPerformance(ctx)
	}
}

// FlushPerformance merges the in-memory ledger into cache_performance
// and resets it. Idempotent when the ledger is empty.
func (s *Store) FlushPerformance(ctx context.Context) error {
	s.perfMu.Lock()
	if len(s.perfLedger) == 0 {
		s.perfOps = 0
		s.perfLastFlush = time.Now()
		s.perfMu.Unlock()
		return nil
	}
	pending := s.perfLedger
	s.perfLedger = make(map[string]*perfCounts)
	s.perfOps = 0
	s.perfLastFlush = time.Now()
	s.perfMu.Unlock()

	err := s.runInTransaction(ctx, func(tx *sql.Conn) error {
		for tableID, c := range pending {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO cache_performance (table_id, hit_count, miss_count, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(table_id) DO UPDATE SET
					hit_count = hit_count + excluded.hit_count,
					miss_count = miss_count + excluded.miss_count,
					updated_at = excluded.updated_at`,
				tableID, c.hits, c.misses, time.Now().UTC())
			if err != nil {
				return wrapDBError("flush performance counters", err)
			}
		}
		return nil
	})
	if err != nil {
		// put the counts back so they aren't lost
		s.perfMu.Lock()
		for tableID, c := range pending {
			cur, ok := s.perfLedger[tableID]
			if !ok {
				cur = &perfCounts{}
				s.perfLedger[tableID] = cur
			}
			cur.hits += c.hits
			cur.misses += c.misses
		}
		s.perfMu.Unlock()
		return err
	}
	return nil
}

// GetPerformance returns the durable counters for one table, zero-valued
// when the table has never been counted.
func (s *Store) GetPerformance(ctx context.Context, tableID string) (*Performance, error) {
	p := &Performance{TableID: tableID}
	err := s.db.QueryRowContext(ctx,
		`SELECT hit_count, miss_count, updated_at FROM cache_performance WHERE table_id = ?`,
		tableID).Scan(&p.HitCount, &p.MissCount, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return nil, wrapDBError("read performance counters", err)
	}
	return p, nil
}

// TopTablesByHits returns up to n table ids ordered by durable hit
// count, most active first. Pending ledger entries are flushed first so
// recent activity counts.
func (s *Store) TopTablesByHits(ctx context.Context, n int) ([]string, error) {
	if err := s.FlushPerformance(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_id FROM cache_performance ORDER BY hit_count DESC, table_id LIMIT ?`, n)
	if err != nil {
		return nil, wrapDBError("read performance ranking", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan performance ranking", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
