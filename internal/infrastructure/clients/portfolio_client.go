package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

// IPortfolioService returns a user's current holdings with USD valuations.
type IPortfolioService interface {
	Positions(ctx context.Context, userID string) ([]domain.Position, error)
}

type PortfolioClient struct {
	baseURL    string
	httpClient *http.Client
	config     *config.PortfolioConfig
	logger     zerolog.Logger
}

func NewPortfolioClient(cfg *config.PortfolioConfig, logger zerolog.Logger) *PortfolioClient {
	return &PortfolioClient{
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
		logger: logger.With().Str("component", "portfolio_client").Logger(),
	}
}

func (c *PortfolioClient) Positions(ctx context.Context, userID string) ([]domain.Position, error) {
	return c.positionsWithRetry(ctx, userID, 0)
}

func (c *PortfolioClient) positionsWithRetry(ctx context.Context, userID string, attempt int) ([]domain.Position, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = fmt.Sprintf("/v1/users/%s/positions", url.PathEscape(userID))

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
				Msg("Portfolio request failed, retrying after backoff")
			time.Sleep(backoff)
			return c.positionsWithRetry(ctx, userID, attempt+1)
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if shouldRetryStatusCode(resp.StatusCode) && attempt < c.config.MaxRetries {
			backoff := calculateBackoff(attempt, c.config.RetryBackoffBase)
			time.Sleep(backoff)
			return c.positionsWithRetry(ctx, userID, attempt+1)
		}
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("portfolio API returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Positions []domain.Position `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio response: %w", err)
	}
	return payload.Positions, nil
}
