package withdrawalservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/application/broadcaster"
	"github.com/moritzWa/pickup-sub004/internal/application/eligibility"
	"github.com/moritzWa/pickup-sub004/internal/application/reconciler"
	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/alerts"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/metrics"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/queue"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/rpc"
	"github.com/moritzWa/pickup-sub004/internal/repositories/withdrawalrepo"
	"github.com/moritzWa/pickup-sub004/pkg/gate"
)

type withdrawalService struct {
	guard          eligibility.IEligibilityGuard
	broadcaster    broadcaster.IBroadcaster
	reconciler     reconciler.IStatusReconciler
	withdrawalRepo withdrawalrepo.IWithdrawalRepository
	ledger         rpc.ILedgerClient
	gate           *gate.Gate
	jobs           queue.IJobDispatch
	metrics        *metrics.Metrics
	alerts         alerts.IAlertSink
	logger         zerolog.Logger
}

func New(
	guard eligibility.IEligibilityGuard,
	bc broadcaster.IBroadcaster,
	rec reconciler.IStatusReconciler,
	withdrawalRepo withdrawalrepo.IWithdrawalRepository,
	ledger rpc.ILedgerClient,
	g *gate.Gate,
	jobs queue.IJobDispatch,
	m *metrics.Metrics,
	alertSink alerts.IAlertSink,
	logger zerolog.Logger,
) IWithdrawalService {
	return &withdrawalService{
		guard:          guard,
		broadcaster:    bc,
		reconciler:     rec,
		withdrawalRepo: withdrawalRepo,
		ledger:         ledger,
		gate:           g,
		jobs:           jobs,
		metrics:        m,
		alerts:         alertSink,
		logger:         logger.With().Str("component", "withdrawal_service").Logger(),
	}
}

func (s *withdrawalService) Submit(ctx context.Context, user domain.User, req domain.SubmitRequest) (*domain.Withdrawal, error) {
	if err := s.guard.CanWithdraw(ctx, user, req.Chain, req.AssetID, req.Amount); err != nil {
		s.recordOutcome(ctx, req.Chain, "rejected_eligibility",
			fmt.Sprintf("Withdrawal blocked for user %s: %v", user.ID, err))
		return nil, err
	}

	anchor, err := s.resolveAnchor(ctx, req)
	if err != nil {
		s.recordOutcome(ctx, req.Chain, "anchor_unavailable",
			fmt.Sprintf("Could not resolve block anchor for user %s: %v", user.ID, err))
		return nil, err
	}

	// Everything network-bound happens under a gate permit: the permit is
	// acquired before the first send, so a gate timeout guarantees nothing
	// was broadcast and the caller can safely requeue.
	var (
		txHash  string
		waitErr error
	)
	gateErr := s.gate.Run(ctx, "withdrawal_submit", func(ctx context.Context) error {
		txHash, err = s.broadcaster.SubmitInitial(ctx, req.RawTransaction, *anchor, req.UseFastRelay)
		if err != nil {
			return err
		}

		result, werr := s.broadcaster.SubmitAndWait(ctx, txHash, req.RawTransaction, anchor.LastValidBlockHeight)
		if werr != nil {
			// Broadcast already happened; record the outcome but never
			// lose the transaction. A cancelled wait (client gone) is the
			// same situation as an expired one: the reconciler owns the
			// verdict.
			waitErr = werr
			return nil
		}
		if s.metrics != nil {
			s.metrics.RecordConfirmation(req.Chain, result.Duration.Seconds())
		}
		return nil
	})

	if gateErr != nil {
		if errors.Is(gateErr, gate.ErrAcquireTimeout) {
			s.recordOutcome(ctx, req.Chain, "gate_timeout",
				fmt.Sprintf("Withdrawal gate saturated, user %s should retry", user.ID))
			return nil, gateErr
		}
		var broadcastErr *domain.BroadcastError
		if errors.As(gateErr, &broadcastErr) {
			s.recordOutcome(ctx, req.Chain, "broadcast_"+string(broadcastErr.Kind),
				fmt.Sprintf("Broadcast failed for user %s: %v", user.ID, broadcastErr))
			return nil, broadcastErr
		}
		s.recordOutcome(ctx, req.Chain, "broadcast_error",
			fmt.Sprintf("Broadcast failed for user %s: %v", user.ID, gateErr))
		return nil, gateErr
	}

	// The transaction is on chain now. Persistence must not die with the
	// request: a disconnecting client cancels ctx, and an orphaned broadcast
	// with no record would be invisible to reconciliation.
	persistCtx := context.WithoutCancel(ctx)

	withdrawal, err := s.createRecord(persistCtx, user, req, txHash)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Enqueue(persistCtx, queue.Job{
		Event:        queue.EventSyncWithdrawalStatus,
		WithdrawalID: withdrawal.ID,
	}); err != nil {
		// The periodic sweep will pick the record up.
		s.logger.Warn().
			Err(err).
			Str("withdrawal_id", withdrawal.ID).
			Msg("Failed to enqueue status sync")
	}

	var interrupted *domain.WaitError
	if waitErr != nil && !errors.As(waitErr, &interrupted) {
		s.logger.Warn().
			Err(waitErr).
			Str("withdrawal_id", withdrawal.ID).
			Msg("Confirmation wait interrupted, reconciliation will settle the record")
	}

	// When the wait already saw a definite outcome, fold it into the record
	// before returning so the caller sees the freshest state.
	var waitError *domain.WaitError
	sawOutcome := waitErr == nil || (errors.As(waitErr, &waitError) && waitError.Kind == domain.WaitFailed)
	if sawOutcome {
		if synced, syncErr := s.reconciler.SyncStatus(persistCtx, *withdrawal); syncErr == nil {
			withdrawal = synced
		} else {
			s.logger.Warn().
				Err(syncErr).
				Str("withdrawal_id", withdrawal.ID).
				Msg("Inline status sync failed")
		}
	}

	s.recordOutcome(persistCtx, req.Chain, "submitted",
		fmt.Sprintf("Withdrawal %s broadcast for user %s (tx %s)", withdrawal.ID, user.ID, txHash))
	return withdrawal, nil
}

func (s *withdrawalService) GetWithdrawal(ctx context.Context, user domain.User, withdrawalID string) (*domain.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if withdrawal.UserID != user.ID {
		return nil, domain.ErrWithdrawalNotFound
	}

	synced, err := s.reconciler.SyncStatus(ctx, *withdrawal)
	if err != nil {
		// Serve the stored state when the network is unreachable; the
		// sweep will refresh it later.
		s.logger.Warn().
			Err(err).
			Str("withdrawal_id", withdrawal.ID).
			Msg("Status refresh failed, returning stored state")
		return withdrawal, nil
	}
	return synced, nil
}

func (s *withdrawalService) resolveAnchor(ctx context.Context, req domain.SubmitRequest) (*domain.BlockAnchor, error) {
	if req.Blockhash != "" && req.LastValidBlockHeight > 0 {
		return &domain.BlockAnchor{
			Blockhash:            req.Blockhash,
			LastValidBlockHeight: req.LastValidBlockHeight,
		}, nil
	}
	anchor, err := s.ledger.LatestBlockAnchor(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving block anchor: %w", err)
	}
	return anchor, nil
}

func (s *withdrawalService) createRecord(ctx context.Context, user domain.User, req domain.SubmitRequest, txHash string) (*domain.Withdrawal, error) {
	now := time.Now().UTC()
	created, err := s.withdrawalRepo.Create(ctx, domain.Withdrawal{
		ID:          uuid.New().String(),
		TxHash:      txHash,
		Chain:       req.Chain,
		Amount:      req.Amount,
		Status:      domain.WithdrawalStatusPending,
		UserID:      user.ID,
		KadoOrderID: req.KadoOrderID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if errors.Is(err, domain.ErrDuplicateWithdrawal) {
		// Our own retry raced itself; the transaction only exists once on
		// chain, so the existing record is the right answer.
		s.logger.Info().
			Str("tx_hash", txHash).
			Str("withdrawal_id", created.ID).
			Msg("Duplicate submission resolved to existing record")
		return created, nil
	}
	if err != nil {
		// The transaction is on chain but the record write failed. Surface
		// the error; the hash is logged for manual reconciliation.
		s.logger.Error().
			Err(err).
			Str("tx_hash", txHash).
			Msg("Broadcast succeeded but record creation failed")
		return nil, fmt.Errorf("persisting withdrawal record: %w", err)
	}
	return created, nil
}

func (s *withdrawalService) recordOutcome(ctx context.Context, chain, outcome, message string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(chain, outcome)
	}
	if s.alerts != nil {
		// Fire and forget; a slow webhook must not stall the submit path.
		go s.alerts.Notify(context.WithoutCancel(ctx), "", message)
	}
}
