// Package meshtypes holds the data model shared across the mesh price
// distribution core: node identity, quotes, price updates, cache entries,
// and the sentinel errors every component reports through.
package meshtypes

import "time"

// NodeID is a stable 128-bit node identifier, generated once at install
// time and persisted across restarts.
type NodeID [16]byte

// Nil reports whether id is the zero-valued identifier.
func (id NodeID) Nil() bool {
	return id == NodeID{}
}

func (id NodeID) String() string {
	return formatUUID(id)
}

// MessageID is a 128-bit unique identifier for a gossiped price update.
// It is generated by the first broadcaster and never rewritten by relays.
type MessageID [16]byte

func (id MessageID) String() string {
	return formatUUID(id)
}

func formatUUID(b [16]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 36)
	dashes := map[int]bool{8: true, 13: true, 18: true, 23: true}
	j := 0
	for i := 0; i < 16; i++ {
		if dashes[j] {
			out[j] = '-'
			j++
		}
		out[j] = hextable[b[i]>>4]
		out[j+1] = hextable[b[i]&0x0f]
		j += 2
	}
	return string(out)
}

// Quote is a single price observation for an asset.
//
// Price and Change24h are carried as decimal strings to preserve upstream
// precision; they are parsed to float64 only for discrepancy arithmetic
// and validation, never stored in parsed form.
type Quote struct {
	AssetSymbol string    `json:"asset"`
	Price       string    `json:"price"`
	Blockchain  string    `json:"blockchain"`
	Change24h   *string   `json:"change_24h,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// PriceUpdate is the unit of gossip.
type PriceUpdate struct {
	MessageID    MessageID        `json:"message_id"`
	SourceNodeID NodeID           `json:"source_node_id"`
	IssuedAt     time.Time        `json:"timestamp"`
	TTL          uint8            `json:"ttl"`
	Quotes       map[string]Quote `json:"prices"`
}

// CachedEntry is the per-asset singleton stored by the local price cache.
type CachedEntry struct {
	Quote        Quote  `json:"quote"`
	SourceNodeID NodeID `json:"source_node_id"`
}

// Freshness classifies a cached entry's age relative to now.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
	Expired
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	FreshWindow = 30 * time.Second
	StaleWindow = 5 * time.Minute
)

// ClassifyFreshness implements design note §4.7's freshness classification helper.
func ClassifyFreshness(observedAt, now time.Time) Freshness {
	age := now.Sub(observedAt)
	switch {
	case age <= FreshWindow:
		return Fresh
	case age <= StaleWindow:
		return Stale
	default:
		return Expired
	}
}

// SeenRecord tracks when a message identifier was first observed.
type SeenRecord struct {
	MessageID MessageID
	FirstSeen time.Time
}

// LastFetchRecord is the cluster-shared rendezvous singleton used by the
// fetch coordinator.
type LastFetchRecord struct {
	NodeID      NodeID    `json:"node_id"`
	LastFetched time.Time `json:"timestamp"`
}
