// Package gossip implements the gossip engine from design note §4.8: accepts,
// deduplicates, caches, and re-broadcasts price updates with TTL
// decrement.
package gossip

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
	"github.com/arcsign/meshcore/internal/mesh/nodeid"
	"github.com/arcsign/meshcore/internal/mesh/pricecache"
	"github.com/arcsign/meshcore/internal/mesh/seen"
	"github.com/arcsign/meshcore/internal/mesh/transport"
	"github.com/arcsign/meshcore/internal/mesh/validate"
)

// Engine is the gossip engine. It owns no peer discovery or topology
// state: loops in the mesh graph are handled exclusively by the
// seen-message registry.
type Engine struct {
	selfID     meshtypes.NodeID
	validator  *validate.Validator
	seenReg    *seen.Registry
	cache      *pricecache.Cache
	peers      transport.PeerTransport
	initialTTL uint8

	log *zap.Logger
}

// New constructs a gossip Engine.
func New(selfID meshtypes.NodeID, validator *validate.Validator, seenReg *seen.Registry, cache *pricecache.Cache, peers transport.PeerTransport, initialTTL uint8, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		selfID:     selfID,
		validator:  validator,
		seenReg:    seenReg,
		cache:      cache,
		peers:      peers,
		initialTTL: initialTTL,
		log:        log,
	}
}

// ProcessIncoming implements design note §4.8's process_incoming algorithm.
func (e *Engine) ProcessIncoming(ctx context.Context, update meshtypes.PriceUpdate, fromPeer string) error {
	if err := e.validator.Validate(update); err != nil {
		return err
	}

	if e.seenReg.HasSeen(ctx, update.MessageID) {
		return meshtypes.ErrDuplicateUpdate
	}
	e.seenReg.MarkSeen(ctx, update.MessageID)

	for asset, quote := range update.Quotes {
		quote.ObservedAt = update.IssuedAt
		e.cache.Store(ctx, asset, meshtypes.CachedEntry{
			Quote:        quote,
			SourceNodeID: update.SourceNodeID,
		})
	}

	if update.TTL == 0 {
		return nil
	}

	relay := meshtypes.PriceUpdate{
		MessageID:    update.MessageID,
		SourceNodeID: update.SourceNodeID,
		IssuedAt:     update.IssuedAt,
		TTL:          update.TTL - 1,
		Quotes:       update.Quotes,
	}
	e.broadcastExcept(ctx, relay, fromPeer)
	return nil
}

// Originate implements design note §4.8's originate algorithm.
func (e *Engine) Originate(ctx context.Context, quotes map[string]meshtypes.Quote) {
	now := time.Now().UTC()
	update := meshtypes.PriceUpdate{
		MessageID:    nodeid.GenerateMessageID(),
		SourceNodeID: e.selfID,
		IssuedAt:     now,
		TTL:          e.initialTTL,
		Quotes:       quotes,
	}

	e.seenReg.MarkSeen(ctx, update.MessageID)

	for asset, quote := range quotes {
		quote.ObservedAt = now
		e.cache.Store(ctx, asset, meshtypes.CachedEntry{
			Quote:        quote,
			SourceNodeID: e.selfID,
		})
	}

	e.broadcastExcept(ctx, update, "")
}

// broadcastExcept dispatches update to every connected peer except
// exceptPeer. A send failure to an individual peer is logged and
// otherwise ignored; it never aborts the rest of the broadcast.
func (e *Engine) broadcastExcept(ctx context.Context, update meshtypes.PriceUpdate, exceptPeer string) {
	payload, err := transport.EncodeUpdate(update)
	if err != nil {
		e.log.Error("failed to encode price update for relay", zap.Error(err))
		return
	}

	for _, peerID := range e.peers.ConnectedPeers() {
		if peerID == exceptPeer {
			continue
		}
		if err := e.peers.Send(ctx, peerID, payload); err != nil {
			e.log.Warn("peer send failed during relay",
				zap.String("peer_id", peerID), zap.Error(err))
		}
	}
}
