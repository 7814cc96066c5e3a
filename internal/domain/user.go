package domain

import "github.com/shopspring/decimal"

// User carries the fields eligibility depends on. The API layer resolves the
// full profile; only this slice crosses into the withdrawal path.
type User struct {
	ID string `json:"id"`
	// CanWithdraw is the per-user kill switch.
	CanWithdraw bool `json:"can_withdraw"`
	// InitialDepositUSD is the promotional grant the user received at
	// signup, if any. Post-withdrawal portfolio value must not fall below
	// it while the lock-up applies.
	InitialDepositUSD decimal.Decimal `json:"initial_deposit_usd"`
	HasLockedFunds    bool            `json:"has_locked_funds"`
}
