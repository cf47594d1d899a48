package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(10_000), cfg.FetchIntervalMs)
	assert.Equal(t, int64(5_000), cfg.CoordinationWindowMs)
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
	assert.Equal(t, 2, cfg.BreakerSuccessThreshold)
	assert.Equal(t, int64(60_000), cfg.BreakerCooldownMs)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, int64(100), cfg.RetryInitialMs)
	assert.Equal(t, int64(10_000), cfg.RetryMaxMs)
	assert.Equal(t, 2.0, cfg.RetryMultiplier)
	assert.Equal(t, uint8(10), cfg.InitialTTL)
	assert.Equal(t, int64(300_000), cfg.SeenTTLMs)
	assert.Equal(t, int64(3_600_000), cfg.CacheTTLMs)
	assert.Equal(t, int64(900_000), cfg.ExtendedOfflineThresholdMs)
	assert.Equal(t, 5.0, cfg.DiscrepancyWarnPercent)
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	overlay := map[string]any{
		"upstream_primary_url": "https://example.test",
		"watched_assets":       []string{"SOL", "ETH"},
		"fetch_interval_ms":    5000,
	}
	raw, err := json.Marshal(overlay)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", cfg.UpstreamPrimaryURL)
	assert.Equal(t, []string{"SOL", "ETH"}, cfg.WatchedAssets)
	assert.Equal(t, int64(5000), cfg.FetchIntervalMs)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
}

func TestLoad_RejectsMissingWatchedAssets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"upstream_primary_url":"https://example.test"}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsMissingPrimaryURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"watched_assets":["SOL"]}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
