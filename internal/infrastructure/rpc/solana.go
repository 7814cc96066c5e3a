package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

// ILedgerClient is the subsystem's view of the chain. Re-sending an already
// accepted transaction must be a no-op on the network side: the signature is
// stable and deduplicated by the cluster, which is what makes the resend
// loop in the broadcaster safe.
type ILedgerClient interface {
	LatestBlockAnchor(ctx context.Context) (*domain.BlockAnchor, error)
	BlockHeight(ctx context.Context) (uint64, error)
	SendTransaction(ctx context.Context, rawTransaction string, useFastRelay bool) (string, error)
	SignatureStatus(ctx context.Context, txHash string) (*domain.SignatureStatus, error)
	DecodeTransactionError(ctx context.Context, txHash string) (string, error)
}

type SolanaClient struct {
	rpcURL       string
	fastRelayURL string
	commitment   string
	maxRetries   int
	httpClient   *http.Client
	logger       zerolog.Logger
}

func NewSolanaClient(cfg *config.SolanaConfig, logger zerolog.Logger) *SolanaClient {
	return &SolanaClient{
		rpcURL:       cfg.RPCURL,
		fastRelayURL: cfg.FastRelayURL,
		commitment:   cfg.Commitment,
		maxRetries:   cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With().Str("component", "solana_rpc").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *SolanaClient) LatestBlockAnchor(ctx context.Context) (*domain.BlockAnchor, error) {
	result, err := c.call(ctx, c.rpcURL, "getLatestBlockhash", []interface{}{
		map[string]string{"commitment": c.commitment},
	})
	if err != nil {
		return nil, fmt.Errorf("getLatestBlockhash: %w", err)
	}

	var resp struct {
		Value domain.BlockAnchor `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("decoding getLatestBlockhash response: %w", err)
	}
	return &resp.Value, nil
}

func (c *SolanaClient) BlockHeight(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, c.rpcURL, "getBlockHeight", []interface{}{
		map[string]string{"commitment": c.commitment},
	})
	if err != nil {
		return 0, fmt.Errorf("getBlockHeight: %w", err)
	}

	var height uint64
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, fmt.Errorf("decoding getBlockHeight response: %w", err)
	}
	return height, nil
}

// SendTransaction relays the signed payload and returns its signature.
// Transport failures map to a retryable relay error; an RPC-level rejection
// (bad signature, insufficient funds, expired blockhash) is fatal.
func (c *SolanaClient) SendTransaction(ctx context.Context, rawTransaction string, useFastRelay bool) (string, error) {
	endpoint := c.rpcURL
	if useFastRelay && c.fastRelayURL != "" {
		endpoint = c.fastRelayURL
	}

	result, err := c.call(ctx, endpoint, "sendTransaction", []interface{}{
		rawTransaction,
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": c.commitment,
			"maxRetries":          0,
		},
	})
	if err != nil {
		if rpcErr, ok := err.(*rpcError); ok {
			return "", &domain.BroadcastError{
				Kind:    domain.BroadcastRejected,
				Message: rpcErr.Message,
				Err:     rpcErr,
			}
		}
		return "", &domain.BroadcastError{
			Kind:    domain.BroadcastRelayUnavailable,
			Message: "relay unreachable",
			Err:     err,
		}
	}

	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", fmt.Errorf("decoding sendTransaction response: %w", err)
	}

	c.logger.Info().
		Str("tx_hash", signature).
		Bool("fast_relay", useFastRelay).
		Msg("Transaction broadcast to relay")
	return signature, nil
}

func (c *SolanaClient) SignatureStatus(ctx context.Context, txHash string) (*domain.SignatureStatus, error) {
	result, err := c.call(ctx, c.rpcURL, "getSignatureStatuses", []interface{}{
		[]string{txHash},
		map[string]bool{"searchTransactionHistory": true},
	})
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses: %w", err)
	}

	var resp struct {
		Value []*struct {
			Slot               uint64          `json:"slot"`
			Confirmations      *uint64         `json:"confirmations"`
			Err                json.RawMessage `json:"err"`
			ConfirmationStatus string          `json:"confirmationStatus"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("decoding getSignatureStatuses response: %w", err)
	}

	status := &domain.SignatureStatus{TxHash: txHash, Depth: domain.ConfirmationUnknown}
	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return status, nil
	}

	entry := resp.Value[0]
	status.Slot = entry.Slot

	if len(entry.Err) > 0 && string(entry.Err) != "null" {
		status.Depth = domain.ConfirmationErrored
		status.Err = string(entry.Err)
		return status, nil
	}

	switch entry.ConfirmationStatus {
	case "processed":
		status.Depth = domain.ConfirmationProcessed
	case "confirmed":
		status.Depth = domain.ConfirmationConfirmed
	case "finalized":
		status.Depth = domain.ConfirmationFinalized
	default:
		status.Depth = domain.ConfirmationUnknown
	}
	return status, nil
}

// DecodeTransactionError fetches the landed transaction and renders its
// error. Best effort: callers fall back to a generic reason when this fails.
func (c *SolanaClient) DecodeTransactionError(ctx context.Context, txHash string) (string, error) {
	result, err := c.call(ctx, c.rpcURL, "getTransaction", []interface{}{
		txHash,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	})
	if err != nil {
		return "", fmt.Errorf("getTransaction: %w", err)
	}

	var resp struct {
		Meta *struct {
			Err         json.RawMessage `json:"err"`
			LogMessages []string        `json:"logMessages"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("decoding getTransaction response: %w", err)
	}
	if resp.Meta == nil || len(resp.Meta.Err) == 0 || string(resp.Meta.Err) == "null" {
		return "", fmt.Errorf("no error recorded for transaction %s", txHash)
	}

	reason := decodeInstructionError(resp.Meta.Err)
	for _, line := range resp.Meta.LogMessages {
		if strings.HasPrefix(line, "Program") && strings.Contains(line, "failed") {
			reason = reason + "; " + line
			break
		}
	}
	return reason, nil
}

// decodeInstructionError renders the raw chain error object into something a
// support person can read, e.g. {"InstructionError":[0,{"Custom":1}]}.
func decodeInstructionError(raw json.RawMessage) string {
	var instructionErr struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal(raw, &instructionErr); err == nil && len(instructionErr.InstructionError) == 2 {
		return fmt.Sprintf("instruction %s failed: %s",
			string(instructionErr.InstructionError[0]),
			string(instructionErr.InstructionError[1]))
	}
	return string(raw)
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *SolanaClient) call(ctx context.Context, endpoint, method string, params []interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := c.doCall(ctx, endpoint, method, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// RPC-level errors are definitive answers from the node; only
		// transport and server-side failures are worth retrying.
		if _, ok := err.(*rpcError); ok {
			return nil, err
		}

		c.logger.Warn().
			Err(err).
			Str("method", method).
			Int("attempt", attempt+1).
			Msg("RPC call failed, retrying")
	}
	return nil, lastErr
}

func (c *SolanaClient) doCall(ctx context.Context, endpoint, method string, payload []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
