// Package pricecache implements the local price cache from design note §4.7:
// a two-tier store (in-memory hot tier, durable tier for restart
// survival, distributed tier for cross-node reads) with
// freshness-monotonic writes and multi-provider discrepancy detection.
//
// Grounded on original_source's price_cache.rs, which implements the
// identical store/get/discrepancy/load/persist contract against Redis
// and Postgres.
package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/durable"
	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
	"github.com/arcsign/meshcore/internal/mesh/rendezvous"
)

const distributedKeyPrefix = "mesh:price:"

// Cache is the two-tier, freshness-monotonic local price cache.
type Cache struct {
	mu     sync.RWMutex
	hot    map[string]meshtypes.CachedEntry

	durable      durable.PriceTable
	distributed  rendezvous.Store
	distTTL      time.Duration
	warnPercent  float64

	log *zap.Logger

	hits   int64
	misses int64
}

// New constructs a Cache. distTTL and warnPercent come from design note §6's
// cache_ttl_ms and discrepancy_warn_percent configuration options.
func New(durableStore durable.PriceTable, distributedStore rendezvous.Store, distTTL time.Duration, warnPercent float64, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		hot:         make(map[string]meshtypes.CachedEntry),
		durable:     durableStore,
		distributed: distributedStore,
		distTTL:     distTTL,
		warnPercent: warnPercent,
		log:         log,
	}
}

// Store implements design note §4.7's write path.
func (c *Cache) Store(ctx context.Context, asset string, entry meshtypes.CachedEntry) {
	c.mu.Lock()
	current, exists := c.hot[asset]

	replace := !exists || entry.Quote.ObservedAt.After(current.Quote.ObservedAt)
	if !replace {
		c.mu.Unlock()
		return
	}

	if exists && current.SourceNodeID != entry.SourceNodeID {
		c.maybeWarnDiscrepancy(asset, current, entry)
	}

	c.hot[asset] = entry
	c.mu.Unlock()

	if err := c.durable.Upsert(ctx, rowFromEntry(asset, entry)); err != nil {
		c.log.Warn("price cache durable write failed, in-memory state remains authoritative",
			zap.String("asset", asset), zap.Error(err))
	}

	if raw, err := json.Marshal(entry); err == nil {
		if err := c.distributed.Set(ctx, distributedKeyPrefix+asset, raw, c.distTTL); err != nil {
			c.log.Warn("price cache distributed write failed",
				zap.String("asset", asset), zap.Error(err))
		}
	}
}

// maybeWarnDiscrepancy implements design note §4.7 step 2: compute the
// relative price delta across providers and emit exactly one warning
// when it exceeds the configured threshold. Must be called with c.mu
// held.
func (c *Cache) maybeWarnDiscrepancy(asset string, current, next meshtypes.CachedEntry) {
	currentPrice, err1 := strconv.ParseFloat(current.Quote.Price, 64)
	nextPrice, err2 := strconv.ParseFloat(next.Quote.Price, 64)
	if err1 != nil || err2 != nil || currentPrice <= 0 {
		return
	}

	deltaPercent := math.Abs(currentPrice-nextPrice) / currentPrice * 100
	if deltaPercent > c.warnPercent {
		c.log.Warn("cross-provider price discrepancy",
			zap.String("asset", asset),
			zap.String("previous_source_node_id", current.SourceNodeID.String()),
			zap.String("previous_price", current.Quote.Price),
			zap.String("new_source_node_id", next.SourceNodeID.String()),
			zap.String("new_price", next.Quote.Price),
			zap.Float64("delta_percent", deltaPercent),
		)
	}
}

// Get implements design note §4.7's read path.
func (c *Cache) Get(ctx context.Context, asset string) (meshtypes.CachedEntry, bool) {
	c.mu.RLock()
	entry, ok := c.hot[asset]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry, true
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	raw, found, err := c.distributed.Get(ctx, distributedKeyPrefix+asset)
	if err != nil || !found {
		return meshtypes.CachedEntry{}, false
	}

	var decoded meshtypes.CachedEntry
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return meshtypes.CachedEntry{}, false
	}

	c.mu.Lock()
	c.hot[asset] = decoded
	c.mu.Unlock()
	return decoded, true
}

// HitRate returns the fraction of Get calls served from the hot tier.
func (c *Cache) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// LoadFromStorage bulk-loads the durable tier into the in-memory tier.
// Called exactly once at startup.
func (c *Cache) LoadFromStorage(ctx context.Context) error {
	rows, err := c.durable.List(ctx)
	if err != nil {
		return fmt.Errorf("pricecache: failed to load from durable storage: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.hot[row.Asset] = entryFromRow(row)
	}
	return nil
}

// PersistToStorage bulk-writes the in-memory tier to the durable tier.
// May be called periodically and on graceful shutdown.
func (c *Cache) PersistToStorage(ctx context.Context) error {
	c.mu.RLock()
	snapshot := make(map[string]meshtypes.CachedEntry, len(c.hot))
	for k, v := range c.hot {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	for asset, entry := range snapshot {
		if err := c.durable.Upsert(ctx, rowFromEntry(asset, entry)); err != nil {
			return fmt.Errorf("pricecache: failed to persist asset %q: %w", asset, err)
		}
	}
	return nil
}

// Classify reports the freshness of asset's cached entry relative to
// now, per design note §4.7's freshness classification helper. ok is false if
// asset is not cached.
func (c *Cache) Classify(asset string, now time.Time) (meshtypes.Freshness, bool) {
	c.mu.RLock()
	entry, ok := c.hot[asset]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return meshtypes.ClassifyFreshness(entry.Quote.ObservedAt, now), true
}

func rowFromEntry(asset string, entry meshtypes.CachedEntry) durable.Row {
	return durable.Row{
		Asset:        asset,
		Price:        entry.Quote.Price,
		Blockchain:   entry.Quote.Blockchain,
		Timestamp:    entry.Quote.ObservedAt,
		SourceNodeID: entry.SourceNodeID,
		Change24h:    entry.Quote.Change24h,
		UpdatedAt:    time.Now().UTC(),
	}
}

func entryFromRow(row durable.Row) meshtypes.CachedEntry {
	return meshtypes.CachedEntry{
		Quote: meshtypes.Quote{
			AssetSymbol: row.Asset,
			Price:       row.Price,
			Blockchain:  row.Blockchain,
			Change24h:   row.Change24h,
			ObservedAt:  row.Timestamp,
		},
		SourceNodeID: row.SourceNodeID,
	}
}
