// Package durable implements the durable store schema from design note §6:
// table mesh_price_cache(asset PK, price, blockchain, timestamp,
// source_node_id, change_24h nullable, updated_at), upsert on asset.
//
// The interface shape and in-memory implementation generalize arcsign's
// storage.TransactionStateStore / storage.MemoryTxStore from transaction
// state to price-cache rows: a small CRUD interface over a
// sync.RWMutex-guarded map, with defensive copies in and out.
package durable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
)

// Row is the durable representation of one mesh_price_cache row.
type Row struct {
	Asset        string
	Price        string
	Blockchain   string
	Timestamp    time.Time
	SourceNodeID meshtypes.NodeID
	Change24h    *string
	UpdatedAt    time.Time
}

// PriceTable is the durable store for the latest-per-asset cached
// entry. History is out of scope for the core, per design note §4.7.
type PriceTable interface {
	// Upsert writes or replaces the row for row.Asset.
	Upsert(ctx context.Context, row Row) error

	// Get returns the row for asset, or ok == false on miss.
	Get(ctx context.Context, asset string) (row Row, ok bool, err error)

	// List returns every row, most recently updated first.
	List(ctx context.Context) ([]Row, error)

	// Delete removes the row for asset, if any.
	Delete(ctx context.Context, asset string) error
}

// MemoryPriceTable is an in-memory PriceTable, used for tests and as
// the default local backing store.
type MemoryPriceTable struct {
	mu    sync.RWMutex
	store map[string]Row
}

// NewMemoryPriceTable constructs an empty in-memory price table.
func NewMemoryPriceTable() *MemoryPriceTable {
	return &MemoryPriceTable{store: make(map[string]Row)}
}

func (t *MemoryPriceTable) Upsert(_ context.Context, row Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store[row.Asset] = copyRow(row)
	return nil
}

func (t *MemoryPriceTable) Get(_ context.Context, asset string) (Row, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.store[asset]
	if !ok {
		return Row{}, false, nil
	}
	return copyRow(row), true, nil
}

func (t *MemoryPriceTable) List(_ context.Context) ([]Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]Row, 0, len(t.store))
	for _, row := range t.store {
		rows = append(rows, copyRow(row))
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})
	return rows, nil
}

func (t *MemoryPriceTable) Delete(_ context.Context, asset string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.store, asset)
	return nil
}

func copyRow(row Row) Row {
	cp := row
	if row.Change24h != nil {
		v := *row.Change24h
		cp.Change24h = &v
	}
	return cp
}
