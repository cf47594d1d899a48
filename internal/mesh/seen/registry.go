// Package seen implements the seen-message registry from design note §4.6: a
// durable, TTL-bounded set of recently observed message identifiers,
// consulted before caching and relaying so duplicate delivery is O(1)
// work with no outbound traffic.
package seen

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
	"github.com/arcsign/meshcore/internal/mesh/rendezvous"
)

const keyPrefix = "mesh:seen:"

// Registry tracks seen message identifiers against an in-memory shadow
// RW-locked the same way arcsign's storage package guards its maps, plus
// a backing rendezvous store for cross-node/cross-restart durability.
type Registry struct {
	mu     sync.RWMutex
	shadow map[meshtypes.MessageID]time.Time

	store rendezvous.Store
	ttl   time.Duration

	log *zap.Logger
}

// New constructs a Registry backed by store, with the seen-TTL from
// design note §6 (default 5 minutes).
func New(store rendezvous.Store, ttl time.Duration, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		shadow: make(map[meshtypes.MessageID]time.Time),
		store:  store,
		ttl:    ttl,
		log:    log,
	}
}

// HasSeen reports whether id has already been recorded.
func (r *Registry) HasSeen(ctx context.Context, id meshtypes.MessageID) bool {
	r.mu.RLock()
	firstSeen, ok := r.shadow[id]
	r.mu.RUnlock()
	if ok {
		if time.Since(firstSeen) < r.ttl {
			return true
		}
		// Expired locally; fall through to consult the backing store,
		// which is authoritative for TTL expiry.
	}

	_, found, err := r.store.Get(ctx, storeKey(id))
	if err != nil {
		// Storage read failed is treated as cache miss per design note §7.
		return false
	}
	return found
}

// MarkSeen records id as seen, both in the in-memory shadow and the
// backing store.
func (r *Registry) MarkSeen(ctx context.Context, id meshtypes.MessageID) {
	now := time.Now()
	r.mu.Lock()
	r.shadow[id] = now
	r.mu.Unlock()

	// Storage write failure is logged at warn per design note §7; the
	// in-memory shadow remains authoritative for this process's
	// lifetime regardless.
	if err := r.store.Set(ctx, storeKey(id), []byte{1}, r.ttl); err != nil {
		r.log.Warn("seen registry durable write failed", zap.Error(err))
	}
}

// Persist is a no-op for the in-memory shadow: every MarkSeen already
// writes through to the backing store, which is itself the durable
// tier. Kept as an explicit operation to match design note §4.6's contract and
// to give future backing stores with write-behind semantics a hook.
func (r *Registry) Persist(_ context.Context) error {
	return nil
}

// Reload restores the in-memory shadow on startup. Because the backing
// store is authoritative and the shadow is only a fast-path cache,
// Reload clears the shadow so every check falls through to the store
// until entries are naturally re-observed.
func (r *Registry) Reload(_ context.Context) error {
	r.mu.Lock()
	r.shadow = make(map[meshtypes.MessageID]time.Time)
	r.mu.Unlock()
	return nil
}

func storeKey(id meshtypes.MessageID) string {
	return keyPrefix + id.String()
}
