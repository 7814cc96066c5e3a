package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/pkg/config"
)

// IAlertSink delivers operational messages. Fire and forget: failures are
// logged and swallowed, a broken webhook must never fail a withdrawal.
type IAlertSink interface {
	Notify(ctx context.Context, channel, message string)
}

type WebhookAlertClient struct {
	webhookURL string
	channel    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewWebhookAlertClient(cfg *config.AlertsConfig, logger zerolog.Logger) *WebhookAlertClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &WebhookAlertClient{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_client").Logger(),
	}
}

func (c *WebhookAlertClient) Notify(ctx context.Context, channel, message string) {
	if c.webhookURL == "" {
		return
	}
	if channel == "" {
		channel = c.channel
	}

	payload, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		c.logger.Err(err).Msg("Failed to encode alert payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		c.logger.Err(err).Msg("Failed to create alert request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to deliver alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("channel", channel).
			Msg(fmt.Sprintf("Alert webhook returned %d", resp.StatusCode))
	}
}
