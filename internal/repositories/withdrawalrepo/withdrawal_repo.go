package withdrawalrepo

import (
	"context"
	"time"

	"github.com/moritzWa/pickup-sub004/internal/domain"
)

type IWithdrawalRepository interface {
	// Create inserts the record. When another writer already created a row
	// for the same (chain, tx_hash), the existing row is returned together
	// with domain.ErrDuplicateWithdrawal.
	Create(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error)
	// UpdateStatus persists the new status and bumps updated_at. Terminal
	// records are never moved back to pending; when a concurrent writer got
	// there first the row as that writer left it is returned.
	UpdateStatus(ctx context.Context, id string, status domain.WithdrawalStatus, failedReason string) (*domain.Withdrawal, error)
	GetByID(ctx context.Context, id string) (*domain.Withdrawal, error)
	GetByHash(ctx context.Context, chain, txHash string) (*domain.Withdrawal, error)
	CountRecentByUser(ctx context.Context, userID string, since time.Time) (int, error)
	ListPending(ctx context.Context, limit, offset int) ([]domain.Withdrawal, error)
}
