package withdrawalrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/domain"
)

const uniqueViolation pq.ErrorCode = "23505"

const withdrawalColumns = `id, tx_hash, chain, amount, status, failed_reason, user_id, kado_order_id, created_at, updated_at`

type WithdrawalRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) IWithdrawalRepository {
	return &WithdrawalRepository{
		db:     db,
		logger: logger.With().Str("component", "withdrawal_repo").Logger(),
	}
}

func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	const query = `INSERT INTO withdrawals (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		withdrawal.ID,
		withdrawal.TxHash,
		withdrawal.Chain,
		withdrawal.Amount,
		withdrawal.Status,
		nullString(withdrawal.FailedReason),
		withdrawal.UserID,
		nullString(withdrawal.KadoOrderID),
		withdrawal.CreatedAt,
		withdrawal.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			existing, getErr := r.GetByHash(ctx, withdrawal.Chain, withdrawal.TxHash)
			if getErr != nil {
				return nil, getErr
			}
			return existing, domain.ErrDuplicateWithdrawal
		}
		r.logger.Err(err).Str("tx_hash", withdrawal.TxHash).Msg("Failed to insert withdrawal")
		return nil, err
	}

	return &withdrawal, nil
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id string, status domain.WithdrawalStatus, failedReason string) (*domain.Withdrawal, error) {
	// The guard keeps terminal rows from regressing: a row is only written
	// when it is still pending or already carries the incoming status.
	const query = `UPDATE withdrawals
		SET status = $2, failed_reason = $3, updated_at = $4
		WHERE id = $1 AND (status = 'pending' OR status = $2)
		RETURNING ` + withdrawalColumns

	row := r.db.QueryRowContext(ctx, query, id, status, nullString(failedReason), time.Now().UTC())
	withdrawal, err := scanWithdrawal(row)
	if err == nil {
		return withdrawal, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to update withdrawal status")
		return nil, err
	}

	// Zero rows: either the id is unknown or a concurrent writer already
	// moved the row to a terminal state. Return whatever is there now.
	return r.GetByID(ctx, id)
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	withdrawal, err := scanWithdrawal(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	return withdrawal, err
}

func (r *WithdrawalRepository) GetByHash(ctx context.Context, chain, txHash string) (*domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE chain = $1 AND tx_hash = $2`

	withdrawal, err := scanWithdrawal(r.db.QueryRowContext(ctx, query, chain, txHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	return withdrawal, err
}

func (r *WithdrawalRepository) CountRecentByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM withdrawals WHERE user_id = $1 AND created_at >= $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		r.logger.Err(err).Str("user_id", userID).Msg("Failed to count recent withdrawals")
		return 0, err
	}
	return count, nil
}

func (r *WithdrawalRepository) ListPending(ctx context.Context, limit, offset int) ([]domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals
		WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Err(err).Msg("Failed to list pending withdrawals")
		return nil, err
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		withdrawal, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *withdrawal)
	}
	return withdrawals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWithdrawal(row rowScanner) (*domain.Withdrawal, error) {
	var (
		w            domain.Withdrawal
		failedReason sql.NullString
		kadoOrderID  sql.NullString
	)
	err := row.Scan(
		&w.ID,
		&w.TxHash,
		&w.Chain,
		&w.Amount,
		&w.Status,
		&failedReason,
		&w.UserID,
		&kadoOrderID,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.FailedReason = failedReason.String
	w.KadoOrderID = kadoOrderID.String
	return &w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
