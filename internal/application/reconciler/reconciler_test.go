package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/queue"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

type mockWithdrawalRepo struct {
	mock.Mock
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, w domain.Withdrawal) (*domain.Withdrawal, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) UpdateStatus(ctx context.Context, id string, status domain.WithdrawalStatus, failedReason string) (*domain.Withdrawal, error) {
	args := m.Called(ctx, id, status, failedReason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) GetByHash(ctx context.Context, chain, txHash string) (*domain.Withdrawal, error) {
	args := m.Called(ctx, chain, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) CountRecentByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockWithdrawalRepo) ListPending(ctx context.Context, limit, offset int) ([]domain.Withdrawal, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Withdrawal), args.Error(1)
}

type mockLedgerClient struct {
	mock.Mock
}

func (m *mockLedgerClient) LatestBlockAnchor(ctx context.Context) (*domain.BlockAnchor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BlockAnchor), args.Error(1)
}

func (m *mockLedgerClient) BlockHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockLedgerClient) SendTransaction(ctx context.Context, rawTransaction string, useFastRelay bool) (string, error) {
	args := m.Called(ctx, rawTransaction, useFastRelay)
	return args.String(0), args.Error(1)
}

func (m *mockLedgerClient) SignatureStatus(ctx context.Context, txHash string) (*domain.SignatureStatus, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SignatureStatus), args.Error(1)
}

func (m *mockLedgerClient) DecodeTransactionError(ctx context.Context, txHash string) (string, error) {
	args := m.Called(ctx, txHash)
	return args.String(0), args.Error(1)
}

func testReconciler(repo *mockWithdrawalRepo, ledger *mockLedgerClient) *Reconciler {
	return New(repo, ledger, nil, nil, config.ReconcilerConfig{
		PendingGraceWindow: 2 * time.Minute,
		ScanInterval:       30 * time.Second,
		ScanBatchSize:      100,
		Workers:            4,
	}, zerolog.Nop())
}

func pendingWithdrawal(age time.Duration) domain.Withdrawal {
	return domain.Withdrawal{
		ID:        "wd-1",
		TxHash:    "sig-1",
		Chain:     "solana",
		Status:    domain.WithdrawalStatusPending,
		UserID:    "user-1",
		CreatedAt: time.Now().Add(-age),
	}
}

func TestGetStatus_TerminalShortCircuits(t *testing.T) {
	ledger := new(mockLedgerClient)
	r := testReconciler(new(mockWithdrawalRepo), ledger)

	w := pendingWithdrawal(time.Minute)
	w.Status = domain.WithdrawalStatusCompleted

	result, err := r.GetStatus(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusCompleted, result.Status)
	ledger.AssertNotCalled(t, "SignatureStatus", mock.Anything, mock.Anything)
}

func TestGetStatus_UnknownWithinGraceStaysPending(t *testing.T) {
	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(&domain.SignatureStatus{Depth: domain.ConfirmationUnknown}, nil)

	r := testReconciler(new(mockWithdrawalRepo), ledger)

	result, err := r.GetStatus(context.Background(), pendingWithdrawal(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, result.Status)
	assert.Empty(t, result.FailedReason)
}

func TestGetStatus_UnknownPastGraceFails(t *testing.T) {
	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(&domain.SignatureStatus{Depth: domain.ConfirmationUnknown}, nil)

	r := testReconciler(new(mockWithdrawalRepo), ledger)

	result, err := r.GetStatus(context.Background(), pendingWithdrawal(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusFailed, result.Status)
	assert.Equal(t, "possible network congestion causing timeout", result.FailedReason)
}

func TestGetStatus_ErroredUsesDecodedReason(t *testing.T) {
	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(&domain.SignatureStatus{Depth: domain.ConfirmationErrored, Err: "InstructionError"}, nil)
	ledger.On("DecodeTransactionError", mock.Anything, "sig-1").
		Return("insufficient funds for rent", nil)

	r := testReconciler(new(mockWithdrawalRepo), ledger)

	result, err := r.GetStatus(context.Background(), pendingWithdrawal(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusFailed, result.Status)
	assert.Equal(t, "insufficient funds for rent", result.FailedReason)
}

func TestGetStatus_ErroredDecodeFailureFallsBack(t *testing.T) {
	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(&domain.SignatureStatus{Depth: domain.ConfirmationErrored, Err: "InstructionError"}, nil)
	ledger.On("DecodeTransactionError", mock.Anything, "sig-1").
		Return("", errors.New("rpc unavailable"))

	r := testReconciler(new(mockWithdrawalRepo), ledger)

	result, err := r.GetStatus(context.Background(), pendingWithdrawal(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusFailed, result.Status)
	assert.Contains(t, result.FailedReason, "InstructionError")
}

func TestGetStatus_ConfirmedAdvancesToSendFunds(t *testing.T) {
	for _, depth := range []domain.ConfirmationDepth{domain.ConfirmationConfirmed, domain.ConfirmationFinalized} {
		ledger := new(mockLedgerClient)
		ledger.On("SignatureStatus", mock.Anything, "sig-1").
			Return(&domain.SignatureStatus{Depth: depth}, nil)

		r := testReconciler(new(mockWithdrawalRepo), ledger)

		result, err := r.GetStatus(context.Background(), pendingWithdrawal(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, domain.WithdrawalStatusSendFunds, result.Status, depth.String())
	}
}

func TestGetStatus_ProcessedStaysPending(t *testing.T) {
	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(&domain.SignatureStatus{Depth: domain.ConfirmationProcessed}, nil)

	r := testReconciler(new(mockWithdrawalRepo), ledger)

	// Processed is past the grace cutoff but still only a single node's view,
	// so the record keeps waiting rather than failing.
	result, err := r.GetStatus(context.Background(), pendingWithdrawal(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, result.Status)
}

func TestSyncStatus_PersistsUnchangedResult(t *testing.T) {
	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(&domain.SignatureStatus{Depth: domain.ConfirmationProcessed}, nil)

	w := pendingWithdrawal(time.Minute)
	updated := w

	repo := new(mockWithdrawalRepo)
	repo.On("UpdateStatus", mock.Anything, "wd-1", domain.WithdrawalStatusPending, "").
		Return(&updated, nil)

	r := testReconciler(repo, ledger)

	got, err := r.SyncStatus(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, got.Status)
	repo.AssertExpectations(t)
}

func TestSyncStatus_LedgerErrorLeavesRecordUntouched(t *testing.T) {
	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(nil, errors.New("rpc timeout"))

	repo := new(mockWithdrawalRepo)
	r := testReconciler(repo, ledger)

	_, err := r.SyncStatus(context.Background(), pendingWithdrawal(time.Minute))
	assert.Error(t, err)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleJob_SyncsQueuedWithdrawal(t *testing.T) {
	w := pendingWithdrawal(time.Minute)
	advanced := w
	advanced.Status = domain.WithdrawalStatusSendFunds

	repo := new(mockWithdrawalRepo)
	repo.On("GetByID", mock.Anything, "wd-1").Return(&w, nil)
	repo.On("UpdateStatus", mock.Anything, "wd-1", domain.WithdrawalStatusSendFunds, "").
		Return(&advanced, nil)

	ledger := new(mockLedgerClient)
	ledger.On("SignatureStatus", mock.Anything, "sig-1").
		Return(&domain.SignatureStatus{Depth: domain.ConfirmationFinalized}, nil)

	r := testReconciler(repo, ledger)

	err := r.HandleJob(context.Background(), queue.Job{
		Event:        queue.EventSyncWithdrawalStatus,
		WithdrawalID: "wd-1",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleJob_IgnoresForeignEvents(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	r := testReconciler(repo, new(mockLedgerClient))

	err := r.HandleJob(context.Background(), queue.Job{Event: "unrelated_event", WithdrawalID: "wd-1"})
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}
