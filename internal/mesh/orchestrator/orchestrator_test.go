package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/meshcore/internal/mesh/breaker"
	"github.com/arcsign/meshcore/internal/mesh/coordinator"
	"github.com/arcsign/meshcore/internal/mesh/durable"
	"github.com/arcsign/meshcore/internal/mesh/gossip"
	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
	"github.com/arcsign/meshcore/internal/mesh/pricecache"
	"github.com/arcsign/meshcore/internal/mesh/rendezvous"
	"github.com/arcsign/meshcore/internal/mesh/retry"
	"github.com/arcsign/meshcore/internal/mesh/seen"
	"github.com/arcsign/meshcore/internal/mesh/transport"
	"github.com/arcsign/meshcore/internal/mesh/upstream"
	"github.com/arcsign/meshcore/internal/mesh/validate"
)

func startUpstreamServer(t *testing.T, value float64, updateUnixTime int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"data":{"value":%v,"updateUnixTime":%d}}`, value, updateUnixTime)
	}))
}

func buildOrchestrator(t *testing.T, upstreamURL string) (*Orchestrator, transport.PeerTransport) {
	t.Helper()
	selfID := meshtypes.NodeID{1}
	store := rendezvous.NewMemory()
	durableTable := durable.NewMemoryPriceTable()

	coord := coordinator.New(store, selfID, 5*time.Second)
	cache := pricecache.New(durableTable, store, time.Hour, 5.0, nil)
	seenReg := seen.New(store, 5*time.Minute, nil)
	validator := validate.New(nil)

	hub := transport.NewMemoryHub(selfID.String())
	peers := hub[selfID.String()]

	gossipEngine := gossip.New(selfID, validator, seenReg, cache, peers, 10, nil)

	upstreamClient := upstream.New(upstreamURL, "", "test-key", breaker.DefaultConfig(), retry.Config{
		MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1,
	}, time.Second, nil)

	cfg := DefaultConfig()
	cfg.FetchInterval = 20 * time.Millisecond

	assets := []WatchedAsset{{Symbol: "SOL", TokenAddress: "So11111111111111111111111111111111111111112", Chain: "solana"}}

	orch := New(cfg, selfID, assets, coord, upstreamClient, gossipEngine, cache, seenReg, peers, nil)
	return orch, peers
}

// fresh start, no peers, one watched asset, upstream returns a
// valid quote. After a tick, Get returns it tagged with this node's
// identity, and the node is its own active provider.
func TestOrchestrator_FetchTickPopulatesCacheAndSelfAsProvider(t *testing.T) {
	srv := startUpstreamServer(t, 100.5, time.Now().Unix())
	defer srv.Close()

	orch, _ := buildOrchestrator(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, orch.Start(ctx))
	defer orch.Stop(context.Background())

	require.Eventually(t, func() bool {
		_, ok := orch.Get(ctx, "SOL")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	entry, ok := orch.Get(ctx, "SOL")
	require.True(t, ok)
	assert.Equal(t, "100.5", entry.Quote.Price)
	assert.Equal(t, orch.selfID, entry.SourceNodeID)

	status := orch.NetworkStatus()
	assert.Contains(t, status.ActiveProviderIDs, orch.selfID)
}

// a node with no inbound updates and no active providers reports
// extended_offline once the threshold elapses, while cached data
// remains readable throughout.
func TestOrchestrator_ExtendedOfflineStillServesCache(t *testing.T) {
	selfID := meshtypes.NodeID{1}
	store := rendezvous.NewMemory()
	durableTable := durable.NewMemoryPriceTable()
	cache := pricecache.New(durableTable, store, time.Hour, 5.0, nil)
	seenReg := seen.New(store, 5*time.Minute, nil)
	validator := validate.New(nil)
	hub := transport.NewMemoryHub(selfID.String())
	peers := hub[selfID.String()]
	gossipEngine := gossip.New(selfID, validator, seenReg, cache, peers, 10, nil)
	coord := coordinator.New(store, selfID, 5*time.Second)
	upstreamClient := upstream.New("http://127.0.0.1:1", "", "key", breaker.DefaultConfig(), retry.DefaultConfig(), time.Second, nil)

	cfg := Config{FetchInterval: time.Hour, ExtendedOfflineThreshold: 20 * time.Millisecond, ProviderAgeout: 5 * time.Millisecond}
	orch := New(cfg, selfID, nil, coord, upstreamClient, gossipEngine, cache, seenReg, peers, nil)

	cache.Store(context.Background(), "SOL", meshtypes.CachedEntry{
		Quote:        meshtypes.Quote{AssetSymbol: "SOL", Price: "100", Blockchain: "solana", ObservedAt: time.Now()},
		SourceNodeID: meshtypes.NodeID{9},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, orch.Start(ctx))
	defer orch.Stop(context.Background())

	require.Eventually(t, func() bool {
		return orch.NetworkStatus().ExtendedOffline
	}, 2*time.Second, 5*time.Millisecond)

	entry, ok := orch.Get(ctx, "SOL")
	require.True(t, ok)
	assert.Equal(t, "100", entry.Quote.Price)
}
