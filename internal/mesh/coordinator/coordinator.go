// Package coordinator implements the fetch coordinator from design note §4.4:
// across a cluster of provider nodes sharing the rendezvous store,
// ensure at most one node performs the upstream fetch per window.
//
// Grounded on original_source's coordination_service.rs, which drives
// the identical mesh:coordination:last_fetch rendezvous key.
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
	"github.com/arcsign/meshcore/internal/mesh/rendezvous"
)

const lastFetchKey = "mesh:coordination:last_fetch"

// recordTTL is the self-expiration so a stuck record cannot starve the
// cluster forever, per design note §4.4.
const recordTTL = 60 * time.Second

// Coordinator decides whether the local node may perform the upstream
// fetch in the current window.
type Coordinator struct {
	store  rendezvous.Store
	selfID meshtypes.NodeID
	window time.Duration
}

// New constructs a Coordinator. window is the coordination window from
// design note §6 (default 5s).
func New(store rendezvous.Store, selfID meshtypes.NodeID, window time.Duration) *Coordinator {
	return &Coordinator{store: store, selfID: selfID, window: window}
}

// MayFetchNow implements design note §4.4's may_fetch_now algorithm.
func (c *Coordinator) MayFetchNow(ctx context.Context) (bool, error) {
	raw, ok, err := c.store.Get(ctx, lastFetchKey)
	if err != nil {
		// Storage read failed is treated as cache miss per design note §7,
		// which for the coordinator means falling back to "may fetch".
		return true, nil
	}
	if !ok {
		return true, nil
	}

	var rec meshtypes.LastFetchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return true, nil
	}

	if rec.NodeID == c.selfID {
		return true, nil
	}
	if time.Since(rec.LastFetched) >= c.window {
		return true, nil
	}
	return false, nil
}

// RecordFetch writes (self.id, now) with a 60-second self-expiration.
func (c *Coordinator) RecordFetch(ctx context.Context) error {
	rec := meshtypes.LastFetchRecord{NodeID: c.selfID, LastFetched: time.Now().UTC()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// Storage write failure is logged by the caller (orchestrator) per
	// design note §7; the coordinator itself stays silent on this path so it
	// composes cleanly with the orchestrator's own error handling.
	return c.store.Set(ctx, lastFetchKey, raw, recordTTL)
}
