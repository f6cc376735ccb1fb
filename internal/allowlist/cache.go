// Package allowlist maintains the per-source cache of contacts allowed to
// trigger automated handling. Each source owns an immutable snapshot that is
// replaced wholesale on refresh, so the gating check is a lock-free lookup.
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/comiendoalmundo/followup-service/internal/phone"
)

// ErrUnknownSource is returned when a source id has no configuration
var ErrUnknownSource = errors.New("allow-list source not configured")

// RowSource fetches one spreadsheet column as an ordered list of cell values.
// Implemented by the sheets client; tests use a fake.
type RowSource interface {
	FetchColumn(ctx context.Context, spreadsheetID, cellRange string) ([]string, error)
}

// SourceConfig describes one spreadsheet partition of the allow-list.
type SourceConfig struct {
	ID            string
	Name          string
	SpreadsheetID string
	PhoneRange    string
	ActiveRange   string
}

// sourceState holds one source's snapshot. The refresh mutex serializes
// writers (periodic timer vs request-triggered refresh of the same source);
// readers only ever touch the atomic pointer.
type sourceState struct {
	cfg     SourceConfig
	mu      sync.Mutex
	allowed atomic.Pointer[map[string]struct{}]
}

// RefreshResult reports the outcome of refreshing one source.
type RefreshResult struct {
	SourceID string
	Count    int
	Err      error
}

// Cache is the allow-list over all configured sources.
type Cache struct {
	source RowSource
	logger *slog.Logger

	// fixed at construction; the maps inside sourceState are what change
	sources map[string]*sourceState
	order   []string
}

// NewCache creates an empty cache for the configured sources. Nothing is
// allowed until the first refresh succeeds.
func NewCache(source RowSource, configs []SourceConfig, logger *slog.Logger) *Cache {
	c := &Cache{
		source:  source,
		logger:  logger,
		sources: make(map[string]*sourceState, len(configs)),
	}
	for _, cfg := range configs {
		c.sources[cfg.ID] = &sourceState{cfg: cfg}
		c.order = append(c.order, cfg.ID)
	}
	return c
}

// IsAllowed reports whether any source currently lists the normalized number.
// Pure in-memory lookup; safe to call concurrently with refreshes.
func (c *Cache) IsAllowed(normalizedPhone string) bool {
	if normalizedPhone == "" {
		return false
	}
	for _, id := range c.order {
		snapshot := c.sources[id].allowed.Load()
		if snapshot == nil {
			continue
		}
		if _, ok := (*snapshot)[normalizedPhone]; ok {
			return true
		}
	}
	return false
}

// RefreshSource fetches the source's columns and atomically replaces its
// snapshot. On fetch failure the previous snapshot stays in place.
func (c *Cache) RefreshSource(ctx context.Context, sourceID string) (int, error) {
	state, ok := c.sources[sourceID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	phones, err := c.source.FetchColumn(ctx, state.cfg.SpreadsheetID, state.cfg.PhoneRange)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch phone column for source %q: %w", sourceID, err)
	}

	var flags []string
	if state.cfg.ActiveRange != "" {
		flags, err = c.source.FetchColumn(ctx, state.cfg.SpreadsheetID, state.cfg.ActiveRange)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch opt-out column for source %q: %w", sourceID, err)
		}
	}

	next := buildSnapshot(phones, flags)
	state.allowed.Store(&next)

	c.logger.Info("Allow-list source refreshed",
		slog.String("source_id", sourceID),
		slog.String("source_name", state.cfg.Name),
		slog.Int("allowed", len(next)),
		slog.Int("rows", len(phones)),
	)

	return len(next), nil
}

// buildSnapshot normalizes the phone column against the aligned opt-out
// column. A row is eligible when its phone cell normalizes to digits and the
// aligned flag cell is empty. Rows past the end of a shorter flag column are
// eligible: a missing flag means no opt-out was ever recorded.
func buildSnapshot(phones, flags []string) map[string]struct{} {
	next := make(map[string]struct{}, len(phones))
	for i, raw := range phones {
		if i < len(flags) && flags[i] != "" {
			continue
		}
		digits := phone.Normalize(raw)
		if digits == "" {
			continue
		}
		next[digits] = struct{}{}
	}
	return next
}

// RefreshAll refreshes every source independently; one failure does not stop
// the others.
func (c *Cache) RefreshAll(ctx context.Context) []RefreshResult {
	results := make([]RefreshResult, 0, len(c.order))
	for _, id := range c.order {
		count, err := c.RefreshSource(ctx, id)
		if err != nil {
			c.logger.Error("Allow-list refresh failed, keeping previous snapshot",
				slog.String("source_id", id),
				slog.Any("error", err),
			)
		}
		results = append(results, RefreshResult{SourceID: id, Count: count, Err: err})
	}
	return results
}

// Run refreshes all sources immediately and then on the given interval until
// the context is canceled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	c.RefreshAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Allow-list refresher stopped")
			return
		case <-ticker.C:
			c.RefreshAll(ctx)
		}
	}
}

// Ready reports whether every source has loaded at least once. A nil snapshot
// means the list is unavailable, not that its contacts opted out, so callers
// that act on absence must check Ready before trusting a negative IsAllowed.
func (c *Cache) Ready() bool {
	for _, id := range c.order {
		if c.sources[id].allowed.Load() == nil {
			return false
		}
	}
	return true
}

// SourceIDs returns the configured source ids in order.
func (c *Cache) SourceIDs() []string {
	return c.order
}
