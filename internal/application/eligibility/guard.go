package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/clients"
	"github.com/moritzWa/pickup-sub004/internal/repositories/withdrawalrepo"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

const rateLimitWindow = 24 * time.Hour

type IEligibilityGuard interface {
	CanWithdraw(ctx context.Context, user domain.User, chain, assetID string, amount decimal.Decimal) error
}

// Guard runs the withdrawal policy checks. All checks are read-only, so the
// guard is safe to call concurrently and repeatedly.
type Guard struct {
	withdrawalRepo withdrawalrepo.IWithdrawalRepository
	priceOracle    clients.IPriceOracle
	portfolio      clients.IPortfolioService
	maxPerDay      int
	minUSD         decimal.Decimal
	logger         zerolog.Logger
}

func New(
	withdrawalRepo withdrawalrepo.IWithdrawalRepository,
	priceOracle clients.IPriceOracle,
	portfolio clients.IPortfolioService,
	cfg config.EligibilityConfig,
	logger zerolog.Logger,
) IEligibilityGuard {
	minUSD, err := decimal.NewFromString(cfg.MinWithdrawalUSD)
	if err != nil {
		minUSD = decimal.NewFromInt(1)
	}
	return &Guard{
		withdrawalRepo: withdrawalRepo,
		priceOracle:    priceOracle,
		portfolio:      portfolio,
		maxPerDay:      cfg.MaxWithdrawalsPerDay,
		minUSD:         minUSD,
		logger:         logger.With().Str("component", "eligibility_guard").Logger(),
	}
}

// CanWithdraw short-circuits on the first failed check: kill switch, daily
// rate limit, USD floor, lock-up. A degraded price feed skips the value
// checks rather than blocking the withdrawal.
func (g *Guard) CanWithdraw(ctx context.Context, user domain.User, chain, assetID string, amount decimal.Decimal) error {
	if !user.CanWithdraw {
		return &domain.EligibilityError{
			Reason:  domain.EligibilityNotAllowed,
			Message: "withdrawals are disabled for this account",
		}
	}

	count, err := g.withdrawalRepo.CountRecentByUser(ctx, user.ID, time.Now().Add(-rateLimitWindow))
	if err != nil {
		return fmt.Errorf("counting recent withdrawals: %w", err)
	}
	if count >= g.maxPerDay {
		return &domain.EligibilityError{
			Reason:  domain.EligibilityRateLimited,
			Message: fmt.Sprintf("at most %d withdrawals are allowed per 24 hours", g.maxPerDay),
		}
	}

	// Some flows compute the amount downstream of broadcast; without a
	// requested amount there is nothing to value.
	if !amount.IsPositive() {
		return nil
	}

	usdValue, priceKnown := g.usdValue(ctx, chain, assetID, amount)
	if priceKnown && usdValue.LessThan(g.minUSD) {
		return &domain.EligibilityError{
			Reason:  domain.EligibilityBelowMinimum,
			Message: fmt.Sprintf("withdrawal value $%s is below the $%s minimum", usdValue.StringFixed(2), g.minUSD.StringFixed(2)),
		}
	}

	if user.HasLockedFunds && priceKnown {
		total, err := g.portfolioValue(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("valuing portfolio: %w", err)
		}
		if total.Sub(usdValue).LessThan(user.InitialDepositUSD) {
			return &domain.EligibilityError{
				Reason:  domain.EligibilityLockedFunds,
				Message: fmt.Sprintf("withdrawal would drop portfolio below the locked $%s initial deposit", user.InitialDepositUSD.StringFixed(2)),
			}
		}
	}

	return nil
}

// usdValue reports the requested amount's USD value and whether the price
// was available. An outage at the oracle fails open.
func (g *Guard) usdValue(ctx context.Context, chain, assetID string, amount decimal.Decimal) (decimal.Decimal, bool) {
	prices, err := g.priceOracle.Prices(ctx, chain, []string{assetID})
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("asset_id", assetID).
			Msg("Price oracle unavailable, skipping value checks")
		return decimal.Zero, false
	}
	price, ok := prices[assetID]
	if !ok {
		g.logger.Warn().
			Str("asset_id", assetID).
			Msg("No price for asset, skipping value checks")
		return decimal.Zero, false
	}
	return amount.Mul(price), true
}

func (g *Guard) portfolioValue(ctx context.Context, userID string) (decimal.Decimal, error) {
	positions, err := g.portfolio.Positions(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.USDValue)
	}
	return total, nil
}
