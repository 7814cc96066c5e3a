package withdrawalservice

import (
	"context"

	"github.com/moritzWa/pickup-sub004/internal/domain"
)

type IWithdrawalService interface {
	// Submit broadcasts the pre-signed transaction and creates the
	// withdrawal record. By the time it returns, the broadcast has either
	// definitively failed (typed error, no record) or succeeded (record
	// returned, confirmation possibly still outstanding).
	Submit(ctx context.Context, user domain.User, req domain.SubmitRequest) (*domain.Withdrawal, error)
	// GetWithdrawal returns the user's record, refreshing its status from
	// the network first so a read alone can advance the state machine.
	GetWithdrawal(ctx context.Context, user domain.User, withdrawalID string) (*domain.Withdrawal, error)
}
