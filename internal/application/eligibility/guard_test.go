package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/moritzWa/pickup-sub004/internal/domain"
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

type mockPriceOracle struct {
	mock.Mock
}

func (m *mockPriceOracle) Prices(ctx context.Context, chain string, assetIDs []string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, chain, assetIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

type mockPortfolio struct {
	mock.Mock
}

func (m *mockPortfolio) Positions(ctx context.Context, userID string) ([]domain.Position, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Position), args.Error(1)
}

func testConfig() config.EligibilityConfig {
	return config.EligibilityConfig{
		MaxWithdrawalsPerDay: 3,
		MinWithdrawalUSD:     "1.00",
	}
}

func activeUser() domain.User {
	return domain.User{
		ID:          "user-1",
		CanWithdraw: true,
	}
}

func TestCanWithdraw_KillSwitch(t *testing.T) {
	guard := New(new(mockWithdrawalRepo), new(mockPriceOracle), new(mockPortfolio), testConfig(), zerolog.Nop())

	user := activeUser()
	user.CanWithdraw = false

	err := guard.CanWithdraw(context.Background(), user, "solana", "sol", decimal.NewFromInt(1))

	var eligErr *domain.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, domain.EligibilityNotAllowed, eligErr.Reason)
}

func TestCanWithdraw_RateLimited(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(3, nil)

	guard := New(repo, new(mockPriceOracle), new(mockPortfolio), testConfig(), zerolog.Nop())

	err := guard.CanWithdraw(context.Background(), activeUser(), "solana", "sol", decimal.NewFromInt(1))

	var eligErr *domain.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, domain.EligibilityRateLimited, eligErr.Reason)
	repo.AssertExpectations(t)
}

func TestCanWithdraw_UnderRateLimitPasses(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(2, nil)

	oracle := new(mockPriceOracle)
	oracle.On("Prices", mock.Anything, "solana", []string{"sol"}).
		Return(map[string]decimal.Decimal{"sol": decimal.NewFromInt(150)}, nil)

	guard := New(repo, oracle, new(mockPortfolio), testConfig(), zerolog.Nop())

	err := guard.CanWithdraw(context.Background(), activeUser(), "solana", "sol", decimal.NewFromInt(1))
	assert.NoError(t, err)
}

func TestCanWithdraw_BelowMinimum(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(0, nil)

	oracle := new(mockPriceOracle)
	oracle.On("Prices", mock.Anything, "solana", []string{"sol"}).
		Return(map[string]decimal.Decimal{"sol": decimal.RequireFromString("0.50")}, nil)

	guard := New(repo, oracle, new(mockPortfolio), testConfig(), zerolog.Nop())

	err := guard.CanWithdraw(context.Background(), activeUser(), "solana", "sol", decimal.NewFromInt(1))

	var eligErr *domain.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, domain.EligibilityBelowMinimum, eligErr.Reason)
}

func TestCanWithdraw_PriceOutageFailsOpen(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(0, nil)

	oracle := new(mockPriceOracle)
	oracle.On("Prices", mock.Anything, "solana", []string{"sol"}).
		Return(nil, errors.New("price api down"))

	// Lock-up checks depend on the price too, so even a locked user passes
	// during an outage.
	user := activeUser()
	user.HasLockedFunds = true
	user.InitialDepositUSD = decimal.NewFromInt(1000)

	guard := New(repo, oracle, new(mockPortfolio), testConfig(), zerolog.Nop())

	err := guard.CanWithdraw(context.Background(), user, "solana", "sol", decimal.RequireFromString("0.001"))
	assert.NoError(t, err)
}

func TestCanWithdraw_MissingPriceEntryFailsOpen(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(0, nil)

	oracle := new(mockPriceOracle)
	oracle.On("Prices", mock.Anything, "solana", []string{"obscure-token"}).
		Return(map[string]decimal.Decimal{}, nil)

	guard := New(repo, oracle, new(mockPortfolio), testConfig(), zerolog.Nop())

	err := guard.CanWithdraw(context.Background(), activeUser(), "solana", "obscure-token", decimal.NewFromInt(1))
	assert.NoError(t, err)
}

func TestCanWithdraw_LockedFunds(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(0, nil)

	oracle := new(mockPriceOracle)
	oracle.On("Prices", mock.Anything, "solana", []string{"sol"}).
		Return(map[string]decimal.Decimal{"sol": decimal.NewFromInt(100)}, nil)

	portfolio := new(mockPortfolio)
	portfolio.On("Positions", mock.Anything, "user-1").Return([]domain.Position{
		{AssetID: "sol", USDValue: decimal.NewFromInt(1200)},
	}, nil)

	user := activeUser()
	user.HasLockedFunds = true
	user.InitialDepositUSD = decimal.NewFromInt(1000)

	guard := New(repo, oracle, portfolio, testConfig(), zerolog.Nop())

	// Withdrawing $300 from a $1200 portfolio leaves $900, under the $1000
	// locked initial deposit.
	err := guard.CanWithdraw(context.Background(), user, "solana", "sol", decimal.NewFromInt(3))

	var eligErr *domain.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, domain.EligibilityLockedFunds, eligErr.Reason)
}

func TestCanWithdraw_LockedFundsWithHeadroom(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(0, nil)

	oracle := new(mockPriceOracle)
	oracle.On("Prices", mock.Anything, "solana", []string{"sol"}).
		Return(map[string]decimal.Decimal{"sol": decimal.NewFromInt(100)}, nil)

	portfolio := new(mockPortfolio)
	portfolio.On("Positions", mock.Anything, "user-1").Return([]domain.Position{
		{AssetID: "sol", USDValue: decimal.NewFromInt(1200)},
	}, nil)

	user := activeUser()
	user.HasLockedFunds = true
	user.InitialDepositUSD = decimal.NewFromInt(1000)

	guard := New(repo, oracle, portfolio, testConfig(), zerolog.Nop())

	err := guard.CanWithdraw(context.Background(), user, "solana", "sol", decimal.NewFromInt(1))
	assert.NoError(t, err)
}

func TestCanWithdraw_ZeroAmountSkipsValueChecks(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	repo.On("CountRecentByUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(0, nil)

	guard := New(repo, new(mockPriceOracle), new(mockPortfolio), testConfig(), zerolog.Nop())

	err := guard.CanWithdraw(context.Background(), activeUser(), "solana", "sol", decimal.Zero)
	assert.NoError(t, err)
}
