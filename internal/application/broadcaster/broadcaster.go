package broadcaster

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/rpc"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

// WaitResult reports a confirmed broadcast and how long confirmation took.
type WaitResult struct {
	TxHash   string
	Duration time.Duration
}

type IBroadcaster interface {
	// SubmitInitial relays the signed payload without waiting for
	// confirmation. It fails fast on rejection so callers never enter the
	// polling loop for a transaction the network refused.
	SubmitInitial(ctx context.Context, rawTransaction string, anchor domain.BlockAnchor, useFastRelay bool) (string, error)
	// SubmitAndWait polls until the transaction confirms, errors on chain,
	// or the block-height expiry passes. It re-sends the payload when the
	// transaction is not visible in any state after a grace interval;
	// safe because the signature is deduplicated by the network.
	SubmitAndWait(ctx context.Context, txHash, rawTransaction string, lastValidBlockHeight uint64) (*WaitResult, error)
}

type Broadcaster struct {
	ledger         rpc.ILedgerClient
	pollInterval   time.Duration
	resendInterval time.Duration
	resendMax      int
	logger         zerolog.Logger
}

func New(ledger rpc.ILedgerClient, cfg *config.SolanaConfig, logger zerolog.Logger) IBroadcaster {
	return &Broadcaster{
		ledger:         ledger,
		pollInterval:   cfg.PollInterval,
		resendInterval: cfg.ResendInterval,
		resendMax:      cfg.ResendMaxCount,
		logger:         logger.With().Str("component", "broadcaster").Logger(),
	}
}

func (b *Broadcaster) SubmitInitial(ctx context.Context, rawTransaction string, anchor domain.BlockAnchor, useFastRelay bool) (string, error) {
	txHash, err := b.ledger.SendTransaction(ctx, rawTransaction, useFastRelay)
	if err != nil {
		var broadcastErr *domain.BroadcastError
		if errors.As(err, &broadcastErr) {
			b.logger.Warn().
				Str("kind", string(broadcastErr.Kind)).
				Str("blockhash", anchor.Blockhash).
				Err(broadcastErr.Err).
				Msg("Initial broadcast failed")
			return "", broadcastErr
		}
		return "", err
	}
	return txHash, nil
}

func (b *Broadcaster) SubmitAndWait(ctx context.Context, txHash, rawTransaction string, lastValidBlockHeight uint64) (*WaitResult, error) {
	start := time.Now()
	lastResend := start
	resends := 0

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := b.ledger.SignatureStatus(ctx, txHash)
		if err != nil {
			b.logger.Warn().Err(err).Str("tx_hash", txHash).Msg("Status poll failed")
			continue
		}

		switch status.Depth {
		case domain.ConfirmationConfirmed, domain.ConfirmationFinalized:
			duration := time.Since(start)
			b.logger.Info().
				Str("tx_hash", txHash).
				Str("depth", status.Depth.String()).
				Dur("duration", duration).
				Msg("Transaction confirmed")
			return &WaitResult{TxHash: txHash, Duration: duration}, nil

		case domain.ConfirmationErrored:
			reason := status.Err
			if decoded, decodeErr := b.ledger.DecodeTransactionError(ctx, txHash); decodeErr == nil {
				reason = decoded
			}
			return nil, &domain.WaitError{Kind: domain.WaitFailed, Reason: reason}

		case domain.ConfirmationProcessed:
			// Landed at the lowest depth; keep waiting, no resend needed.

		case domain.ConfirmationUnknown:
			// Not visible anywhere yet. Past the expiry horizon the
			// transaction is abandoned; before it, nudge the relay a
			// few times in case the first send was dropped.
			height, heightErr := b.ledger.BlockHeight(ctx)
			if heightErr == nil && height > lastValidBlockHeight {
				return nil, &domain.WaitError{Kind: domain.WaitTimeout, Duration: time.Since(start)}
			}
			if resends < b.resendMax && time.Since(lastResend) >= b.resendInterval {
				resends++
				lastResend = time.Now()
				if _, resendErr := b.ledger.SendTransaction(ctx, rawTransaction, false); resendErr != nil {
					b.logger.Warn().
						Err(resendErr).
						Str("tx_hash", txHash).
						Int("resend", resends).
						Msg("Re-send attempt failed")
				} else {
					b.logger.Info().
						Str("tx_hash", txHash).
						Int("resend", resends).
						Msg("Re-sent transaction to relay")
				}
			}
		}
	}
}
