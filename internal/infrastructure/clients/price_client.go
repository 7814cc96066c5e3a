package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

// IPriceOracle returns USD prices for asset ids. Entries may be missing for
// assets the oracle does not cover; callers decide what a gap means.
type IPriceOracle interface {
	Prices(ctx context.Context, chain string, assetIDs []string) (map[string]decimal.Decimal, error)
}

type PriceAPIClient struct {
	baseURL    string
	httpClient *http.Client
	config     *config.PriceAPIConfig
	logger     zerolog.Logger
}

func NewPriceAPIClient(cfg *config.PriceAPIConfig, logger zerolog.Logger) *PriceAPIClient {
	return &PriceAPIClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		config: cfg,
		logger: logger.With().Str("component", "price_api_client").Logger(),
	}
}

func (c *PriceAPIClient) Prices(ctx context.Context, chain string, assetIDs []string) (map[string]decimal.Decimal, error) {
	return c.pricesWithRetry(ctx, chain, assetIDs, 0)
}

func (c *PriceAPIClient) pricesWithRetry(ctx context.Context, chain string, assetIDs []string, attempt int) (map[string]decimal.Decimal, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = fmt.Sprintf("/v1/prices/%s", chain)
	q := u.Query()
	q.Set("assets", strings.Join(assetIDs, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request failed: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if shouldRetry(err) && attempt < c.config.MaxRetries {
			backoff := calculateBackoff(attempt, c.config.RetryBackoffBase)
			c.logger.Info().
				Err(err).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Price request failed, retrying after backoff")
			time.Sleep(backoff)
			return c.pricesWithRetry(ctx, chain, assetIDs, attempt+1)
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if shouldRetryStatusCode(resp.StatusCode) && attempt < c.config.MaxRetries {
			backoff := calculateBackoff(attempt, c.config.RetryBackoffBase)
			time.Sleep(backoff)
			return c.pricesWithRetry(ctx, chain, assetIDs, attempt+1)
		}
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Prices []domain.AssetPrice `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(payload.Prices))
	for _, p := range payload.Prices {
		prices[p.AssetID] = p.USDPrice
	}
	return prices, nil
}
