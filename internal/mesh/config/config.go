// Package config loads the mesh core's runtime configuration. Following
// arcsign's own internal/app.AppConfig, it is a plain JSON-tagged struct
// with a constructor that applies defaults, not a config-file framework.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds every option named in design note §6.
type Config struct {
	UpstreamPrimaryURL  string `json:"upstream_primary_url"`
	UpstreamFallbackURL string `json:"upstream_fallback_url,omitempty"`
	UpstreamAPIKey      string `json:"upstream_api_key"`

	FetchIntervalMs int64 `json:"fetch_interval_ms"`

	CoordinationWindowMs int64 `json:"coordination_window_ms"`

	BreakerFailureThreshold int   `json:"breaker_failure_threshold"`
	BreakerSuccessThreshold int   `json:"breaker_success_threshold"`
	BreakerCooldownMs       int64 `json:"breaker_cooldown_ms"`

	RetryMaxAttempts int     `json:"retry_max_attempts"`
	RetryInitialMs   int64   `json:"retry_initial_ms"`
	RetryMaxMs       int64   `json:"retry_max_ms"`
	RetryMultiplier  float64 `json:"retry_multiplier"`

	InitialTTL uint8 `json:"initial_ttl"`

	SeenTTLMs int64 `json:"seen_ttl_ms"`

	CacheTTLMs int64 `json:"cache_ttl_ms"`

	ExtendedOfflineThresholdMs int64 `json:"extended_offline_threshold_ms"`

	DiscrepancyWarnPercent float64 `json:"discrepancy_warn_percent"`

	WatchedAssets []string `json:"watched_assets"`
}

// Default returns a Config populated with every default named in
// design note §4 and §6. Callers overlay a loaded file on top of this, the
// same way arcsign's NewAppConfig seeds zero-valued fields.
func Default() Config {
	return Config{
		FetchIntervalMs:            10_000,
		CoordinationWindowMs:       5_000,
		BreakerFailureThreshold:    5,
		BreakerSuccessThreshold:    2,
		BreakerCooldownMs:          60_000,
		RetryMaxAttempts:           3,
		RetryInitialMs:             100,
		RetryMaxMs:                 10_000,
		RetryMultiplier:            2.0,
		InitialTTL:                 10,
		SeenTTLMs:                  300_000,
		CacheTTLMs:                 3_600_000,
		ExtendedOfflineThresholdMs: 900_000,
		DiscrepancyWarnPercent:     5.0,
	}
}

// Load reads a JSON config file at path and overlays it on Default().
// Zero-valued fields in the file are left at their default; a caller
// wanting an explicit zero must set a nonzero placeholder upstream of
// this loader, the same tradeoff arcsign's AppConfig defaulting makes.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var overlay Config
	if err := json.Unmarshal(raw, &overlay); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyOverlay(&cfg, &overlay)

	if len(cfg.WatchedAssets) == 0 {
		return Config{}, fmt.Errorf("config: watched_assets must be non-empty")
	}
	if cfg.UpstreamPrimaryURL == "" {
		return Config{}, fmt.Errorf("config: upstream_primary_url is required")
	}

	return cfg, nil
}

func applyOverlay(base, overlay *Config) {
	if overlay.UpstreamPrimaryURL != "" {
		base.UpstreamPrimaryURL = overlay.UpstreamPrimaryURL
	}
	if overlay.UpstreamFallbackURL != "" {
		base.UpstreamFallbackURL = overlay.UpstreamFallbackURL
	}
	if overlay.UpstreamAPIKey != "" {
		base.UpstreamAPIKey = overlay.UpstreamAPIKey
	}
	if overlay.FetchIntervalMs != 0 {
		base.FetchIntervalMs = overlay.FetchIntervalMs
	}
	if overlay.CoordinationWindowMs != 0 {
		base.CoordinationWindowMs = overlay.CoordinationWindowMs
	}
	if overlay.BreakerFailureThreshold != 0 {
		base.BreakerFailureThreshold = overlay.BreakerFailureThreshold
	}
	if overlay.BreakerSuccessThreshold != 0 {
		base.BreakerSuccessThreshold = overlay.BreakerSuccessThreshold
	}
	if overlay.BreakerCooldownMs != 0 {
		base.BreakerCooldownMs = overlay.BreakerCooldownMs
	}
	if overlay.RetryMaxAttempts != 0 {
		base.RetryMaxAttempts = overlay.RetryMaxAttempts
	}
	if overlay.RetryInitialMs != 0 {
		base.RetryInitialMs = overlay.RetryInitialMs
	}
	if overlay.RetryMaxMs != 0 {
		base.RetryMaxMs = overlay.RetryMaxMs
	}
	if overlay.RetryMultiplier != 0 {
		base.RetryMultiplier = overlay.RetryMultiplier
	}
	if overlay.InitialTTL != 0 {
		base.InitialTTL = overlay.InitialTTL
	}
	if overlay.SeenTTLMs != 0 {
		base.SeenTTLMs = overlay.SeenTTLMs
	}
	if overlay.CacheTTLMs != 0 {
		base.CacheTTLMs = overlay.CacheTTLMs
	}
	if overlay.ExtendedOfflineThresholdMs != 0 {
		base.ExtendedOfflineThresholdMs = overlay.ExtendedOfflineThresholdMs
	}
	if overlay.DiscrepancyWarnPercent != 0 {
		base.DiscrepancyWarnPercent = overlay.DiscrepancyWarnPercent
	}
	if len(overlay.WatchedAssets) > 0 {
		base.WatchedAssets = overlay.WatchedAssets
	}
}
