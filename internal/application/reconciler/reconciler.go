package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/metrics"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/queue"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/rpc"
	"github.com/moritzWa/pickup-sub004/internal/repositories/withdrawalrepo"
	"github.com/moritzWa/pickup-sub004/internal/server/websocket"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

const congestionReason = "possible network congestion causing timeout"

// StatusResult is the reconciler's verdict for one record.
type StatusResult struct {
	Status       domain.WithdrawalStatus
	FailedReason string
}

type IStatusReconciler interface {
	// GetStatus derives the domain status from the network's view of the
	// transaction without writing anything.
	GetStatus(ctx context.Context, withdrawal domain.Withdrawal) (StatusResult, error)
	// SyncStatus persists whatever GetStatus returns, unchanged results
	// included, so updated_at always reflects the last check. Safe to call
	// concurrently for the same record; writes never regress a terminal
	// status.
	SyncStatus(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error)
}

type Reconciler struct {
	withdrawalRepo withdrawalrepo.IWithdrawalRepository
	ledger         rpc.ILedgerClient
	metrics        *metrics.Metrics
	wsHub          *websocket.Hub
	graceWindow    time.Duration
	scanInterval   time.Duration
	scanBatchSize  int
	workers        int
	logger         zerolog.Logger
}

func New(
	withdrawalRepo withdrawalrepo.IWithdrawalRepository,
	ledger rpc.ILedgerClient,
	m *metrics.Metrics,
	wsHub *websocket.Hub,
	cfg config.ReconcilerConfig,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		withdrawalRepo: withdrawalRepo,
		ledger:         ledger,
		metrics:        m,
		wsHub:          wsHub,
		graceWindow:    cfg.PendingGraceWindow,
		scanInterval:   cfg.ScanInterval,
		scanBatchSize:  cfg.ScanBatchSize,
		workers:        cfg.Workers,
		logger:         logger.With().Str("component", "reconciler").Logger(),
	}
}

func (r *Reconciler) GetStatus(ctx context.Context, withdrawal domain.Withdrawal) (StatusResult, error) {
	if withdrawal.Status.IsTerminal() {
		return StatusResult{Status: withdrawal.Status, FailedReason: withdrawal.FailedReason}, nil
	}

	status, err := r.ledger.SignatureStatus(ctx, withdrawal.TxHash)
	if err != nil {
		return StatusResult{}, fmt.Errorf("querying signature status: %w", err)
	}

	switch status.Depth {
	case domain.ConfirmationUnknown:
		if time.Since(withdrawal.CreatedAt) < r.graceWindow {
			return StatusResult{Status: domain.WithdrawalStatusPending}, nil
		}
		return StatusResult{
			Status:       domain.WithdrawalStatusFailed,
			FailedReason: congestionReason,
		}, nil

	case domain.ConfirmationErrored:
		reason := fmt.Sprintf("transaction failed on chain: %s", status.Err)
		if decoded, decodeErr := r.ledger.DecodeTransactionError(ctx, withdrawal.TxHash); decodeErr == nil {
			reason = decoded
		}
		return StatusResult{
			Status:       domain.WithdrawalStatusFailed,
			FailedReason: reason,
		}, nil

	case domain.ConfirmationConfirmed, domain.ConfirmationFinalized:
		// Confirmed depth is already safe for the off-chain leg.
		return StatusResult{Status: domain.WithdrawalStatusSendFunds}, nil

	default: // processed
		return StatusResult{Status: domain.WithdrawalStatusPending}, nil
	}
}

func (r *Reconciler) SyncStatus(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	result, err := r.GetStatus(ctx, withdrawal)
	if err != nil {
		return nil, err
	}

	updated, err := r.withdrawalRepo.UpdateStatus(ctx, withdrawal.ID, result.Status, result.FailedReason)
	if err != nil {
		return nil, fmt.Errorf("persisting status: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordSync(updated.Chain, string(updated.Status))
	}
	if r.wsHub != nil && updated.Status != withdrawal.Status {
		r.wsHub.BroadcastWithdrawal(updated)
	}
	if updated.Status != withdrawal.Status {
		r.logger.Info().
			Str("withdrawal_id", updated.ID).
			Str("tx_hash", updated.TxHash).
			Str("from", string(withdrawal.Status)).
			Str("to", string(updated.Status)).
			Msg("Withdrawal status advanced")
	}
	return updated, nil
}

// HandleJob resolves a queued sync request. Repeated or stale deliveries are
// harmless: syncing is idempotent and unknown ids are logged and dropped.
func (r *Reconciler) HandleJob(ctx context.Context, job queue.Job) error {
	if job.Event != queue.EventSyncWithdrawalStatus {
		return nil
	}
	withdrawal, err := r.withdrawalRepo.GetByID(ctx, job.WithdrawalID)
	if err != nil {
		return fmt.Errorf("loading withdrawal %s: %w", job.WithdrawalID, err)
	}
	_, err = r.SyncStatus(ctx, *withdrawal)
	return err
}

// Run drives the periodic pending sweep until ctx is cancelled. The sweep
// is the safety net behind queued jobs: anything still pending gets
// re-checked every interval.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info().
		Dur("interval", r.scanInterval).
		Msg("Starting withdrawal reconciliation sweep")

	ticker := time.NewTicker(r.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Reconciliation sweep stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.scanPending(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Failed to process pending withdrawals")
			}
		}
	}
}

func (r *Reconciler) scanPending(ctx context.Context) error {
	offset := 0
	var pending []domain.Withdrawal

	for {
		batch, err := r.withdrawalRepo.ListPending(ctx, r.scanBatchSize, offset)
		if err != nil {
			return fmt.Errorf("loading pending withdrawals: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		pending = append(pending, batch...)
		offset += r.scanBatchSize
	}

	if len(pending) == 0 {
		return nil
	}

	sem := make(chan struct{}, r.workers)
	for _, withdrawal := range pending {
		sem <- struct{}{}
		go func(withdrawal domain.Withdrawal) {
			defer func() { <-sem }()
			if _, err := r.SyncStatus(ctx, withdrawal); err != nil {
				r.logger.Error().
					Str("withdrawal_id", withdrawal.ID).
					Err(err).
					Msg("Failed to sync withdrawal status")
			}
		}(withdrawal)
	}

	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
	return nil
}
