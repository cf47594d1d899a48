// Package rendezvous defines the shared low-latency key-value store used
// for cluster-wide coordination and distributed caching (design note §6's
// "rendezvous store" / "distributed store"), plus an in-memory reference
// implementation.
//
// The interface is written narrowly enough that a github.com/go-redis/redis
// backed implementation (the client already present, transitively, in the
// wider example pack's go-ethereum fork) is a small, isolated addition;
// see DESIGN.md for why no such implementation ships here.
package rendezvous

import (
	"context"
	"sync"
	"time"
)

// Store is a shared low-latency KV service providing atomic TTL-bounded
// writes. Any backing implementation satisfying these semantics
// suffices per design note's glossary entry for "rendezvous store".
type Store interface {
	// Set writes value at key with the given TTL, last-writer-wins.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value at key, or ok == false on miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// SetNX atomically writes value at key only if key is absent or
	// expired, returning whether the write happened. Used by callers
	// that need a true compare-and-set, though the fetch coordinator
	// in this design note relies only on last-writer-wins Set/Get.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (written bool, err error)
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-memory Store, used for tests and single-node
// operation. It follows the same sync.RWMutex-guarded map shape as
// arcsign's storage.MemoryTxStore.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]entry)}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.items[key] = entry{value: cp, expires: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false, nil
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, true, nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[key]; ok && time.Now().Before(e.expires) {
		return false, nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.items[key] = entry{value: cp, expires: time.Now().Add(ttl)}
	return true, nil
}
