// Package upstream implements the upstream price client from design note §4.3:
// a breaker-and-retry-guarded HTTP client against a Birdeye-shaped price
// API, with primary/fallback failover.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/meshcore/internal/mesh/breaker"
	"github.com/arcsign/meshcore/internal/mesh/meshtypes"
	"github.com/arcsign/meshcore/internal/mesh/retry"
)

// chainNames maps a blockchain tag to the chain name the upstream
// expects in the x-chain header, per design note §6.
var chainNames = map[string]string{
	"solana":   "solana",
	"ethereum": "ethereum",
	"bsc":      "bsc",
	"polygon":  "polygon",
}

// Endpoint is a single upstream base URL guarded by its own breaker.
type Endpoint struct {
	BaseURL string
	breaker *breaker.Breaker
}

// Client is the upstream price client described in design note §4.3.
type Client struct {
	primary  Endpoint
	fallback *Endpoint
	apiKey   string

	httpClient *http.Client
	retryCfg   retry.Config

	log *zap.Logger
}

// New constructs a Client. fallbackURL may be empty, meaning no
// fallback is configured.
func New(primaryURL, fallbackURL, apiKey string, breakerCfg breaker.Config, retryCfg retry.Config, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		primary: Endpoint{
			BaseURL: primaryURL,
			breaker: breaker.New("primary", breakerCfg, log),
		},
		apiKey:   apiKey,
		retryCfg: retryCfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
	if fallbackURL != "" {
		c.fallback = &Endpoint{
			BaseURL: fallbackURL,
			breaker: breaker.New("fallback", breakerCfg, log),
		}
	}
	return c
}

// Fetch implements design note §4.3's algorithm: try primary through the
// breaker + retry harness, fall back to the secondary endpoint on
// exhausted failure.
func (c *Client) Fetch(ctx context.Context, tokenAddress, chain string) (meshtypes.Quote, error) {
	if c.primary.breaker.AdmitRequest() {
		q, err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) (meshtypes.Quote, error) {
			return c.fetchPrice(ctx, c.primary.BaseURL, tokenAddress, chain)
		})
		if err == nil {
			c.primary.breaker.RecordSuccess()
			return q, nil
		}
		c.primary.breaker.RecordFailure()
		if c.fallback == nil {
			return meshtypes.Quote{}, err
		}
	} else if c.fallback == nil {
		return meshtypes.Quote{}, meshtypes.ErrBreakerOpen
	}

	if !c.fallback.breaker.AdmitRequest() {
		return meshtypes.Quote{}, meshtypes.ErrAllEndpointsUnavailable
	}

	q, err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) (meshtypes.Quote, error) {
		return c.fetchPrice(ctx, c.fallback.BaseURL, tokenAddress, chain)
	})
	if err != nil {
		c.fallback.breaker.RecordFailure()
		return meshtypes.Quote{}, err
	}
	c.fallback.breaker.RecordSuccess()
	return q, nil
}

type priceResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Value          float64 `json:"value"`
		UpdateUnixTime int64   `json:"updateUnixTime"`
	} `json:"data"`
}

func (c *Client) fetchPrice(ctx context.Context, baseURL, tokenAddress, chain string) (meshtypes.Quote, error) {
	chainName, ok := chainNames[chain]
	if !ok {
		return meshtypes.Quote{}, fmt.Errorf("%w: unsupported blockchain tag %q", meshtypes.ErrUpstreamFailed, chain)
	}

	url := fmt.Sprintf("%s/defi/price?address=%s", baseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return meshtypes.Quote{}, fmt.Errorf("%w: %v", meshtypes.ErrUpstreamFailed, err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("x-chain", chainName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return meshtypes.Quote{}, fmt.Errorf("%w: %v", meshtypes.ErrUpstreamFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return meshtypes.Quote{}, fmt.Errorf("%w: failed to read response body: %v", meshtypes.ErrUpstreamFailed, err)
	}

	if resp.StatusCode >= 400 {
		return meshtypes.Quote{}, fmt.Errorf("%w: HTTP %d", meshtypes.ErrUpstreamFailed, resp.StatusCode)
	}

	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return meshtypes.Quote{}, fmt.Errorf("%w: %v", meshtypes.ErrUpstreamParse, err)
	}

	if !parsed.Success || parsed.Data == nil {
		return meshtypes.Quote{}, fmt.Errorf("%w: success=%v data-present=%v", meshtypes.ErrUpstreamFailed, parsed.Success, parsed.Data != nil)
	}

	return meshtypes.Quote{
		Price:      strconv.FormatFloat(parsed.Data.Value, 'f', -1, 64),
		Blockchain: chain,
		ObservedAt: time.Unix(parsed.Data.UpdateUnixTime, 0).UTC(),
	}, nil
}

// walletTokenResponse models the /v1/wallet/token_list contract from
// design note §6, used by FetchPortfolio.
type walletTokenResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Items []struct {
			Address  string  `json:"address"`
			Symbol   string  `json:"symbol"`
			Name     string  `json:"name"`
			UIAmount float64 `json:"uiAmount"`
			PriceUSD float64 `json:"priceUsd"`
			ValueUSD float64 `json:"valueUsd"`
		} `json:"items"`
	} `json:"data"`
}

// FetchPortfolio retrieves every quote held by wallet, applying the same
// breaker+retry+failover discipline as Fetch.
func (c *Client) FetchPortfolio(ctx context.Context, wallet, chain string) ([]meshtypes.Quote, error) {
	if c.primary.breaker.AdmitRequest() {
		qs, err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) ([]meshtypes.Quote, error) {
			return c.fetchPortfolio(ctx, c.primary.BaseURL, wallet, chain)
		})
		if err == nil {
			c.primary.breaker.RecordSuccess()
			return qs, nil
		}
		c.primary.breaker.RecordFailure()
		if c.fallback == nil {
			return nil, err
		}
	} else if c.fallback == nil {
		return nil, meshtypes.ErrBreakerOpen
	}

	if !c.fallback.breaker.AdmitRequest() {
		return nil, meshtypes.ErrAllEndpointsUnavailable
	}

	qs, err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) ([]meshtypes.Quote, error) {
		return c.fetchPortfolio(ctx, c.fallback.BaseURL, wallet, chain)
	})
	if err != nil {
		c.fallback.breaker.RecordFailure()
		return nil, err
	}
	c.fallback.breaker.RecordSuccess()
	return qs, nil
}

func (c *Client) fetchPortfolio(ctx context.Context, baseURL, wallet, chain string) ([]meshtypes.Quote, error) {
	chainName, ok := chainNames[chain]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported blockchain tag %q", meshtypes.ErrUpstreamFailed, chain)
	}

	url := fmt.Sprintf("%s/v1/wallet/token_list?wallet=%s", baseURL, wallet)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", meshtypes.ErrUpstreamFailed, err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("x-chain", chainName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", meshtypes.ErrUpstreamFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", meshtypes.ErrUpstreamFailed, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", meshtypes.ErrUpstreamFailed, resp.StatusCode)
	}

	var parsed walletTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", meshtypes.ErrUpstreamParse, err)
	}
	if !parsed.Success || parsed.Data == nil {
		return nil, fmt.Errorf("%w: success=%v data-present=%v", meshtypes.ErrUpstreamFailed, parsed.Success, parsed.Data != nil)
	}

	now := time.Now().UTC()
	quotes := make([]meshtypes.Quote, 0, len(parsed.Data.Items))
	for _, item := range parsed.Data.Items {
		quotes = append(quotes, meshtypes.Quote{
			AssetSymbol: item.Symbol,
			Price:       strconv.FormatFloat(item.PriceUSD, 'f', -1, 64),
			Blockchain:  chain,
			ObservedAt:  now,
		})
	}
	return quotes, nil
}
