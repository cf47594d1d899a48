// Command meshnode runs a single Mesh Price Distribution Core node:
// it wires the upstream client, fetch coordinator, gossip engine, and
// price cache behind the mesh orchestrator and keeps it running until
// terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/breaker"
	meshconfig "github.com/arcsign/meshcore/internal/mesh/config"
	"github.com/arcsign/meshcore/internal/mesh/coordinator"
	"github.com/arcsign/meshcore/internal/mesh/durable"
	"github.com/arcsign/meshcore/internal/mesh/gossip"
	"github.com/arcsign/meshcore/internal/mesh/nodeid"
	"github.com/arcsign/meshcore/internal/mesh/orchestrator"
	"github.com/arcsign/meshcore/internal/mesh/pricecache"
	"github.com/arcsign/meshcore/internal/mesh/rendezvous"
	"github.com/arcsign/meshcore/internal/mesh/retry"
	"github.com/arcsign/meshcore/internal/mesh/seen"
	"github.com/arcsign/meshcore/internal/mesh/transport"
	"github.com/arcsign/meshcore/internal/mesh/upstream"
	"github.com/arcsign/meshcore/internal/mesh/validate"
)

func main() {
	configPath := flag.String("config", "meshnode.json", "path to the mesh node configuration file")
	nodeIDPath := flag.String("node-id-file", "meshnode.id", "path to the persisted node identifier")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "meshnode: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*configPath, *nodeIDPath, log); err != nil {
		log.Fatal("meshnode exited with error", zap.Error(err))
	}
}

func run(configPath, nodeIDPath string, log *zap.Logger) error {
	cfg, err := meshconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("meshnode: failed to load config: %w", err)
	}

	selfID, err := nodeid.LoadOrCreate(nodeIDPath)
	if err != nil {
		return fmt.Errorf("meshnode: failed to load node identity: %w", err)
	}
	log.Info("node identity loaded", zap.String("node_id", selfID.String()))

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Cooldown:         time.Duration(cfg.BreakerCooldownMs) * time.Millisecond,
	}
	retryCfg := retry.Config{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: time.Duration(cfg.RetryInitialMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.RetryMaxMs) * time.Millisecond,
		Multiplier:   cfg.RetryMultiplier,
	}

	upstreamClient := upstream.New(
		cfg.UpstreamPrimaryURL,
		cfg.UpstreamFallbackURL,
		cfg.UpstreamAPIKey,
		breakerCfg,
		retryCfg,
		10*time.Second,
		log,
	)

	rendezvousStore := rendezvous.NewMemory()
	durableTable := durable.NewMemoryPriceTable()

	coord := coordinator.New(rendezvousStore, selfID, time.Duration(cfg.CoordinationWindowMs)*time.Millisecond)
	cache := pricecache.New(durableTable, rendezvousStore, time.Duration(cfg.CacheTTLMs)*time.Millisecond, cfg.DiscrepancyWarnPercent, log)
	seenReg := seen.New(rendezvousStore, time.Duration(cfg.SeenTTLMs)*time.Millisecond, log)
	validator := validate.New(log)

	peerHub := transport.NewMemoryHub(selfID.String())
	peers := peerHub[selfID.String()]

	gossipEngine := gossip.New(selfID, validator, seenReg, cache, peers, cfg.InitialTTL, log)

	// The config's watched_assets list is symbols only (design note §6); the
	// upstream HTTP contract addresses tokens by on-chain address, not
	// symbol. No symbol->address mapping is read here: the token address
	// is the symbol itself and the chain is always "solana".
	assets := make([]orchestrator.WatchedAsset, 0, len(cfg.WatchedAssets))
	for _, symbol := range cfg.WatchedAssets {
		assets = append(assets, orchestrator.WatchedAsset{
			Symbol:       symbol,
			TokenAddress: symbol,
			Chain:        "solana",
		})
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.FetchInterval = time.Duration(cfg.FetchIntervalMs) * time.Millisecond
	orchCfg.ExtendedOfflineThreshold = time.Duration(cfg.ExtendedOfflineThresholdMs) * time.Millisecond

	orch := orchestrator.New(
		orchCfg,
		selfID,
		assets,
		coord,
		upstreamClient,
		gossipEngine,
		cache,
		seenReg,
		peers,
		log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("meshnode: failed to start orchestrator: %w", err)
	}
	log.Info("mesh node started", zap.Strings("watched_assets", cfg.WatchedAssets))

	<-ctx.Done()
	log.Info("shutting down mesh node")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return orch.Stop(stopCtx)
}
