// Package freshness is the cache's TTL and invalidation policy layer:
// named TTL presets, validity checks, cascading invalidation, and the
// warm-pick selection used to decide which tables to pre-populate.
package freshness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartsuite-tools/ssc/internal/storage"
	"github.com/smartsuite-tools/ssc/internal/types"
)

// Named TTL presets by expected mutation frequency.
const (
	PresetStatic           = "static"
	PresetLowMutation      = "low_mutation"
	PresetDefault          = "default"
	PresetHighMutation     = "high_mutation"
	PresetVeryHighMutation = "very_high_mutation"
)

var presets = map[string]time.Duration{
	PresetStatic:           30 * 24 * time.Hour,
	PresetLowMutation:      7 * 24 * time.Hour,
	PresetDefault:          12 * time.Hour,
	PresetHighMutation:     2 * time.Hour,
	PresetVeryHighMutation: 15 * time.Minute,
}

// PresetTTL returns the duration of a named preset.
func PresetTTL(name string) (time.Duration, bool) {
	d, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// DefaultWarmCount is how many tables an "auto" warm-pick returns when
// the caller gives no count.
const DefaultWarmCount = 5

// Controller applies freshness policy on top of the store.
type Controller struct {
	store *storage.Store
}

func New(store *storage.Store) *Controller {
	return &Controller{store: store}
}

// Valid reports whether a scope still holds at least one non-expired
// row.
func (c *Controller) Valid(ctx context.Context, scope types.Scope, id string) (bool, error) {
	if !types.ValidScope(scope) {
		return false, fmt.Errorf("unknown cache scope: %s", scope)
	}
	return c.store.Valid(ctx, scope, id)
}

// GetTTL returns the configured TTL for a table, or the default preset.
func (c *Controller) GetTTL(ctx context.Context, tableID string) (time.Duration, error) {
	return c.store.GetTTL(ctx, tableID)
}

// GetTTLConfig returns the full TTL config row.
func (c *Controller) GetTTLConfig(ctx context.Context, tableID string) (*storage.TTLConfig, error) {
	return c.store.GetTTLConfig(ctx, tableID)
}

// SetTTL persists a per-table TTL. A zero ttl with a mutation level
// that names a preset takes the preset's duration. Cached rows keep
// their existing expiry.
func (c *Controller) SetTTL(ctx context.Context, tableID string, ttl time.Duration, mutationLevel, notes string) error {
	if ttl == 0 {
		d, ok := PresetTTL(mutationLevel)
		if !ok {
			return fmt.Errorf("ttl required: %q is not a preset", mutationLevel)
		}
		ttl = d
	}
	return c.store.SetTTL(ctx, tableID, ttl, mutationLevel, notes)
}

// Invalidate removes a scope's cached rows, cascading through nested
// scopes. See storage.Store.Invalidate for the cascade table.
func (c *Controller) Invalidate(ctx context.Context, scope types.Scope, id string) error {
	if !types.ValidScope(scope) {
		return fmt.Errorf("unknown cache scope: %s", scope)
	}
	return c.store.Invalidate(ctx, scope, id)
}

// Refresh invalidates a scope and reports the resulting cache status.
// It does not re-fetch anything; the caller repopulates on its next
// read.
func (c *Controller) Refresh(ctx context.Context, scope types.Scope, id string) (*storage.StatusReport, error) {
	if err := c.Invalidate(ctx, scope, id); err != nil {
		return nil, err
	}
	return c.store.Status(ctx)
}

// TablesToWarm resolves a warm-pick selection to table ids. The
// selection is an explicit list, a single id, or "auto" (also nil or
// ""), which picks the top-n tables by recorded hit count.
func (c *Controller) TablesToWarm(ctx context.Context, selection any, n int) ([]string, error) {
	switch t := selection.(type) {
	case nil:
		return c.autoWarm(ctx, n)
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "auto") {
			return c.autoWarm(ctx, n)
		}
		return []string{s}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("warm selection entries must be table ids, got %T", v)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("warm selection must be a table id, a list, or \"auto\"; got %T", selection)
	}
}

func (c *Controller) autoWarm(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultWarmCount
	}
	return c.store.TopTablesByHits(ctx, n)
}
