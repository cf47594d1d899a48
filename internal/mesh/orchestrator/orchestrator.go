// Package orchestrator implements the mesh orchestrator from design note §4.9:
// composes the fetch coordinator, upstream client, gossip engine, and
// price cache, ticks the fetch loop, tracks provider liveness, and
// serves reads to subscribers.
//
// Loosely grounded on the ticker/select loop shape of the example
// corpus's price_feed.go worker (select over tick/stop/context),
// adapted to this core's coordinator-gated fetch. The first fetch
// happens on the first tick; Start does not fetch immediately.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/coordinator"
	"github.com/arcsign/meshcore/internal/mesh/gossip"
	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
	"github.com/arcsign/meshcore/internal/mesh/pricecache"
	"github.com/arcsign/meshcore/internal/mesh/seen"
	"github.com/arcsign/meshcore/internal/mesh/transport"
	"github.com/arcsign/meshcore/internal/mesh/upstream"
)

// Watched asset to token-address/chain mapping, supplied at
// construction. The upstream HTTP contract (design note §6) addresses assets
// by token address, while the rest of the core addresses them by
// symbol; this mapping bridges the two.
type WatchedAsset struct {
	Symbol       string
	TokenAddress string
	Chain        string
}

// Config holds the orchestrator's own tunables from design note §6.
type Config struct {
	FetchInterval               time.Duration
	ExtendedOfflineThreshold    time.Duration
	ProviderAgeout              time.Duration
}

// DefaultConfig returns design note §4.9's defaults (10s fetch tick) plus the
// 2-minute provider aging sweep and 15-minute extended-offline
// threshold from design note §4.9.
func DefaultConfig() Config {
	return Config{
		FetchInterval:            10 * time.Second,
		ExtendedOfflineThreshold: 15 * time.Minute,
		ProviderAgeout:           2 * time.Minute,
	}
}

// NetworkStatus is returned by network_status() per design note §4.9.
type NetworkStatus struct {
	ActiveProviderIDs []meshtypes.NodeID
	OfflineSince      *time.Time
	OfflineDuration   *time.Duration
	ExtendedOffline   bool
}

// Orchestrator owns every other mesh component and exposes the
// top-level operations start/stop/get/get_all/network_status.
type Orchestrator struct {
	cfg     Config
	selfID  meshtypes.NodeID
	assets  []WatchedAsset

	coord    *coordinator.Coordinator
	upstream *upstream.Client
	gossipEn *gossip.Engine
	cache    *pricecache.Cache
	seenReg  *seen.Registry
	peers    transport.PeerTransport

	mu              sync.RWMutex
	activeProviders map[meshtypes.NodeID]time.Time
	peerNodeIDs     map[string]meshtypes.NodeID
	offlineSince    *time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	log *zap.Logger
}

// New constructs an Orchestrator. Every dependency is supplied by the
// caller (cmd/meshnode's wiring), per design note §9's note that these are
// per-instance fields, never process-wide singletons.
func New(
	cfg Config,
	selfID meshtypes.NodeID,
	assets []WatchedAsset,
	coord *coordinator.Coordinator,
	upstreamClient *upstream.Client,
	gossipEngine *gossip.Engine,
	cache *pricecache.Cache,
	seenReg *seen.Registry,
	peers transport.PeerTransport,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:             cfg,
		selfID:          selfID,
		assets:          assets,
		coord:           coord,
		upstream:        upstreamClient,
		gossipEn:        gossipEngine,
		cache:           cache,
		seenReg:         seenReg,
		peers:           peers,
		activeProviders: make(map[meshtypes.NodeID]time.Time),
		peerNodeIDs:     make(map[string]meshtypes.NodeID),
		log:             log,
	}
}

// Start implements design note §4.9's start sequence.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.cache.LoadFromStorage(ctx); err != nil {
		return err
	}
	if err := o.seenReg.Reload(ctx); err != nil {
		return err
	}

	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})

	go o.run(ctx)
	return nil
}

// Stop implements design note §4.9/§5's cancellation contract: the fetch
// ticker halts at the next wake, in-flight fetches are allowed to run
// to completion, and persist_to_storage is awaited before returning.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.stopCh == nil {
		return nil
	}
	close(o.stopCh)
	<-o.doneCh

	if err := o.cache.PersistToStorage(ctx); err != nil {
		o.log.Warn("failed to persist price cache on shutdown", zap.Error(err))
	}
	return o.peers.Close()
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.cfg.FetchInterval)
	defer ticker.Stop()

	ageSweep := time.NewTicker(o.cfg.ProviderAgeout)
	defer ageSweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case inbound, ok := <-o.peers.Inbound():
			if !ok {
				continue
			}
			o.handleInbound(ctx, inbound)
		case peerID, ok := <-o.peers.Disconnects():
			if !ok {
				continue
			}
			o.handlePeerDisconnect(peerID)
		case <-ticker.C:
			o.fetchTick(ctx)
		case <-ageSweep.C:
			o.sweepAgedProviders()
		}
	}
}

func (o *Orchestrator) handleInbound(ctx context.Context, msg transport.InboundMessage) {
	update, err := transport.DecodeUpdate(msg.Payload)
	if err != nil {
		o.log.Error("failed to decode inbound peer message", zap.String("peer_id", msg.PeerID), zap.Error(err))
		return
	}

	o.mu.Lock()
	o.peerNodeIDs[msg.PeerID] = update.SourceNodeID
	o.mu.Unlock()

	if err := o.gossipEn.ProcessIncoming(ctx, update, msg.PeerID); err != nil {
		// Invalid/duplicate updates are already logged or are
		// intentionally silent per design note §7; nothing further to do.
		return
	}

	o.recordProviderSeen(update.SourceNodeID)
}

// handlePeerDisconnect implements design note §4.9(b): a disconnecting peer's
// associated NodeID (learned from its most recent inbound message, if
// any) is dropped from the active-provider set immediately, rather
// than waiting out the aging sweep. A peer that disconnects before
// ever sending a message has no recorded NodeID and is a no-op here;
// the aging sweep still reclaims it eventually.
func (o *Orchestrator) handlePeerDisconnect(peerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.peerNodeIDs[peerID]
	if !ok {
		return
	}
	delete(o.peerNodeIDs, peerID)
	delete(o.activeProviders, id)
	if len(o.activeProviders) == 0 && o.offlineSince == nil {
		since := time.Now()
		o.offlineSince = &since
	}
}

func (o *Orchestrator) fetchTick(ctx context.Context) {
	may, err := o.coord.MayFetchNow(ctx)
	if err != nil || !may {
		return
	}

	quotes := make(map[string]meshtypes.Quote)
	for _, asset := range o.assets {
		q, err := o.upstream.Fetch(ctx, asset.TokenAddress, asset.Chain)
		if err != nil {
			o.log.Error("upstream fetch failed", zap.String("asset", asset.Symbol), zap.Error(err))
			continue
		}
		q.AssetSymbol = asset.Symbol
		quotes[asset.Symbol] = q
	}

	if len(quotes) == 0 {
		return
	}

	if err := o.coord.RecordFetch(ctx); err != nil {
		o.log.Warn("failed to record fetch in rendezvous store", zap.Error(err))
	}
	o.gossipEn.Originate(ctx, quotes)
	o.recordProviderSeen(o.selfID)
}

func (o *Orchestrator) recordProviderSeen(id meshtypes.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wasEmpty := len(o.activeProviders) == 0
	o.activeProviders[id] = time.Now()
	if wasEmpty {
		o.offlineSince = nil
	}
}

func (o *Orchestrator) sweepAgedProviders() {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	for id, lastSeen := range o.activeProviders {
		if now.Sub(lastSeen) > o.cfg.ProviderAgeout {
			delete(o.activeProviders, id)
		}
	}
	if len(o.activeProviders) == 0 && o.offlineSince == nil {
		since := now
		o.offlineSince = &since
	}
}

// Get implements design note §4.9's get(asset).
func (o *Orchestrator) Get(ctx context.Context, asset string) (meshtypes.CachedEntry, bool) {
	return o.cache.Get(ctx, asset)
}

// GetAll implements design note §4.9's get_all().
func (o *Orchestrator) GetAll(ctx context.Context) map[string]meshtypes.CachedEntry {
	result := make(map[string]meshtypes.CachedEntry, len(o.assets))
	for _, asset := range o.assets {
		if entry, ok := o.cache.Get(ctx, asset.Symbol); ok {
			result[asset.Symbol] = entry
		}
	}
	return result
}

// NetworkStatus implements design note §4.9's network_status().
func (o *Orchestrator) NetworkStatus() NetworkStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]meshtypes.NodeID, 0, len(o.activeProviders))
	for id := range o.activeProviders {
		ids = append(ids, id)
	}

	status := NetworkStatus{ActiveProviderIDs: ids}
	if o.offlineSince != nil {
		status.OfflineSince = o.offlineSince
		dur := time.Since(*o.offlineSince)
		status.OfflineDuration = &dur
		status.ExtendedOffline = dur > o.cfg.ExtendedOfflineThreshold
	}
	return status
}
