package domain

import "github.com/shopspring/decimal"

// AssetPrice is one entry of a price oracle response. Entries may be missing
// for assets the oracle does not cover.
type AssetPrice struct {
	AssetID  string          `json:"asset_id"`
	USDPrice decimal.Decimal `json:"usd_price"`
}

// Position is one holding in a user's portfolio.
type Position struct {
	AssetID  string          `json:"asset_id"`
	Amount   decimal.Decimal `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}
