package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const cacheScopeName = "github.com/smartsuite-tools/ssc/cache"

// CacheMetrics counts cache traffic: dispatched queries, hits, and
// misses, attributed per table. A nil *CacheMetrics is a valid no-op
// receiver, so callers never guard.
type CacheMetrics struct {
	queries metric.Int64Counter
	hits    metric.Int64Counter
	misses  metric.Int64Counter
}

// NewCacheMetrics builds the cache instruments, or nil when telemetry
// is disabled.
func NewCacheMetrics() *CacheMetrics {
	if !Enabled() {
		return nil
	}
	m := Meter(cacheScopeName)
	queries, _ := m.Int64Counter("ssc.cache.queries",
		metric.WithDescription("Query operations dispatched"),
	)
	hits, _ := m.Int64Counter("ssc.cache.hits",
		metric.WithDescription("Reads answered from the cache"),
	)
	misses, _ := m.Int64Counter("ssc.cache.misses",
		metric.WithDescription("Reads that required an upstream fetch"),
	)
	return &CacheMetrics{queries: queries, hits: hits, misses: misses}
}

func tableAttr(tableID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("table_id", tableID))
}

// Query counts one dispatched query operation.
func (c *CacheMetrics) Query(ctx context.Context, tableID string) {
	if c == nil {
		return
	}
	c.queries.Add(ctx, 1, tableAttr(tableID))
}

// Hit counts one cache hit.
func (c *CacheMetrics) Hit(ctx context.Context, tableID string) {
	if c == nil {
		return
	}
	c.hits.Add(ctx, 1, tableAttr(tableID))
}

// Miss counts one cache miss.
func (c *CacheMetrics) Miss(ctx context.Context, tableID string) {
	if c == nil {
		return
	}
	c.misses.Add(ctx, 1, tableAttr(tableID))
}
