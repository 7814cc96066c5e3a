package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusSendFunds WithdrawalStatus = "send_funds"
	WithdrawalStatusFailed    WithdrawalStatus = "failed"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
)

// IsTerminal reports whether status may never move back to pending.
func (s WithdrawalStatus) IsTerminal() bool {
	switch s {
	case WithdrawalStatusSendFunds, WithdrawalStatusFailed, WithdrawalStatusCompleted:
		return true
	}
	return false
}

// Withdrawal is one withdrawal attempt. A row exists only for transactions
// that were actually broadcast; (chain, tx_hash) is unique at the storage
// layer.
type Withdrawal struct {
	ID           string           `json:"id" db:"id"`
	TxHash       string           `json:"tx_hash" db:"tx_hash"`
	Chain        string           `json:"chain" db:"chain"`
	Amount       decimal.Decimal  `json:"amount" db:"amount"`
	Status       WithdrawalStatus `json:"status" db:"status"`
	FailedReason string           `json:"failed_reason,omitempty" db:"failed_reason"`
	UserID       string           `json:"user_id" db:"user_id"`
	KadoOrderID  string           `json:"kado_order_id,omitempty" db:"kado_order_id"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// SubmitRequest carries a pre-signed transaction from the caller. The
// blockhash anchor is optional; when absent the orchestrator resolves a
// recent one from the network.
type SubmitRequest struct {
	Chain                string          `json:"chain" binding:"required"`
	AssetID              string          `json:"asset_id"`
	Amount               decimal.Decimal `json:"amount"`
	RawTransaction       string          `json:"raw_transaction" binding:"required"`
	Blockhash            string          `json:"blockhash"`
	LastValidBlockHeight uint64          `json:"last_valid_block_height"`
	KadoOrderID          string          `json:"kado_order_id"`
	UseFastRelay         bool            `json:"use_fast_relay"`
}
