package core_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrestLend/core/core"
)

const (
	isolatedAsset = "iso-asset"
	isolatedFeed  = "iso-oracle"
)

// listIsolated lists an isolation-tier asset with a 50,000,000-unit debt
// cap, priced at $2 like the default collateral.
func (f *fixture) listIsolated() {
	f.t.Helper()
	require.NoError(f.t, f.engine.SetAsset(f.ctx, f.admin, &core.AssetConfig{
		AssetId:              isolatedAsset,
		OracleId:             isolatedFeed,
		OracleDecimals:       6,
		AssetDecimals:        6,
		Active:               true,
		BorrowThreshold:      decimal.NewFromInt(500),
		LiquidationThreshold: decimal.NewFromInt(800),
		Tier:                 core.TierIsolated,
		IsolationDebtCap:     decimal.NewFromInt(50_000_000),
	}))
	f.setPrice(isolatedFeed, decimal.NewFromInt(2_000_000))
}

func TestCreatePosition(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.listIsolated()
	user := f.newUser()

	index, err := f.engine.CreatePosition(f.ctx, user, collateralAsset, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), index)

	index, err = f.engine.CreatePosition(f.ctx, user, isolatedAsset, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), index, "per-user indexes are sequential")

	count, err := f.engine.GetUserPositionsCount(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	t.Run("isolated tier demands isolation mode", func(t *testing.T) {
		_, err := f.engine.CreatePosition(f.ctx, user, isolatedAsset, false)
		assert.True(t, errors.Is(err, core.ErrIsolationModeRequired))
	})

	t.Run("unlisted asset", func(t *testing.T) {
		_, err := f.engine.CreatePosition(f.ctx, user, "nope-asset", false)
		assert.True(t, errors.Is(err, core.ErrAssetNotListed))
	})
}

func TestSupplyCollateral(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.listIsolated()
	user := f.newUser()
	f.mint(user, collateralAsset, 100_000_000)

	index, err := f.engine.CreatePosition(f.ctx, user, collateralAsset, false)
	require.NoError(t, err)

	require.NoError(t, f.engine.SupplyCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(60_000_000)))
	assert.True(t, f.balance(user, collateralAsset).Equal(decimal.NewFromInt(40_000_000)))

	amount, err := f.engine.GetUserCollateralAmount(f.ctx, user, index, collateralAsset)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(60_000_000)))

	t.Run("zero amount is a validated no-op", func(t *testing.T) {
		require.NoError(t, f.engine.SupplyCollateral(f.ctx, user, index, collateralAsset, decimal.Zero))
		assert.True(t, f.balance(user, collateralAsset).Equal(decimal.NewFromInt(40_000_000)))
	})

	t.Run("negative amount", func(t *testing.T) {
		err := f.engine.SupplyCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(-1))
		assert.True(t, errors.Is(err, core.ErrInvalidAmount))
	})

	t.Run("unknown position", func(t *testing.T) {
		err := f.engine.SupplyCollateral(f.ctx, user, 9, collateralAsset, decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, core.ErrInvalidPosition))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		err := f.engine.SupplyCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(40_000_001))
		assert.True(t, errors.Is(err, core.ErrInsufficientBalance))
	})

	t.Run("isolated asset into cross position", func(t *testing.T) {
		f.mint(user, isolatedAsset, 1_000_000)
		err := f.engine.SupplyCollateral(f.ctx, user, index, isolatedAsset, decimal.NewFromInt(1_000_000))
		assert.True(t, errors.Is(err, core.ErrIsolationModeRequired))
	})

	t.Run("disabled asset", func(t *testing.T) {
		require.NoError(t, f.engine.UpdateAssetConfig(f.ctx, f.admin, collateralAsset, &core.AssetConfig{Active: false}))
		err := f.engine.SupplyCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, core.ErrAssetDisabled))
		require.NoError(t, f.engine.UpdateAssetConfig(f.ctx, f.admin, collateralAsset, &core.AssetConfig{Active: true}))
	})
}

func TestSupplyCollateralIsolated(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.listIsolated()
	user := f.newUser()
	f.mint(user, isolatedAsset, 10_000_000)
	f.mint(user, collateralAsset, 10_000_000)

	index, err := f.engine.CreatePosition(f.ctx, user, isolatedAsset, true)
	require.NoError(t, err)

	require.NoError(t, f.engine.SupplyCollateral(f.ctx, user, index, isolatedAsset, decimal.NewFromInt(10_000_000)))

	err = f.engine.SupplyCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(1_000_000))
	assert.True(t, errors.Is(err, core.ErrIsolatedCollateralOnly), "isolated position takes its anchor asset only")
}

func TestSupplyCollateralCap(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	require.NoError(t, f.engine.UpdateAssetConfig(f.ctx, f.admin, collateralAsset, &core.AssetConfig{
		SupplyCap: decimal.NewFromInt(100_000_000),
		Active:    true,
	}))

	alice := f.newUser()
	f.openFundedPosition(alice, 100_000_000)

	bob := f.newUser()
	f.mint(bob, collateralAsset, 1)
	index, err := f.engine.CreatePosition(f.ctx, bob, collateralAsset, false)
	require.NoError(t, err)

	err = f.engine.SupplyCollateral(f.ctx, bob, index, collateralAsset, decimal.NewFromInt(1))
	var capErr *core.SupplyCapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.True(t, capErr.Cap.Equal(decimal.NewFromInt(100_000_000)))
}

func TestBorrowBoundary(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user := f.newUser()

	// 100,000,000 units at $2 borrowable at 50% is exactly a
	// 100,000,000-unit credit limit.
	index := f.openFundedPosition(user, 100_000_000)

	limit, err := f.engine.CalculateCreditLimit(f.ctx, user, index)
	require.NoError(t, err)
	require.True(t, limit.Equal(decimal.NewFromInt(100_000_000)), "got %s", limit)

	t.Run("one above the limit", func(t *testing.T) {
		err := f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(100_000_001))
		assert.True(t, errors.Is(err, core.ErrInsufficientCollateral))
	})

	t.Run("exactly at the limit", func(t *testing.T) {
		require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(100_000_000)))
		assert.True(t, f.balance(user, liquidityAsset).Equal(decimal.NewFromInt(100_000_000)))
	})

	t.Run("nothing left to draw", func(t *testing.T) {
		err := f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, core.ErrInsufficientCollateral))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		err := f.engine.Borrow(f.ctx, user, index, decimal.Zero)
		assert.True(t, errors.Is(err, core.ErrInvalidBorrowAmount))
	})
}

func TestBorrowVaultLiquidity(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(10_000_000)
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)

	err := f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(10_000_001))
	assert.True(t, errors.Is(err, core.ErrInsufficientLiquidity))

	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(10_000_000)))
}

func TestBorrowIsolationDebtCap(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.listIsolated()
	f.supplyLiquidity(1_000_000_000)

	user := f.newUser()
	f.mint(user, isolatedAsset, 200_000_000)
	index, err := f.engine.CreatePosition(f.ctx, user, isolatedAsset, true)
	require.NoError(t, err)
	require.NoError(t, f.engine.SupplyCollateral(f.ctx, user, index, isolatedAsset, decimal.NewFromInt(200_000_000)))

	// Credit limit is 200,000,000 but the listing caps isolated debt at
	// 50,000,000.
	err = f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(50_000_001))
	assert.True(t, errors.Is(err, core.ErrIsolationDebtCapReached))

	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(50_000_000)))
}

func TestWithdrawCollateral(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)

	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(50_000_000)))

	t.Run("cannot leave debt uncovered", func(t *testing.T) {
		err := f.engine.WithdrawCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(50_000_001))
		assert.True(t, errors.Is(err, core.ErrInsufficientCollateral))
	})

	t.Run("down to exact coverage", func(t *testing.T) {
		require.NoError(t, f.engine.WithdrawCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(50_000_000)))
		assert.True(t, f.balance(user, collateralAsset).Equal(decimal.NewFromInt(50_000_000)))
	})

	t.Run("overdraw", func(t *testing.T) {
		err := f.engine.WithdrawCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(50_000_001))
		assert.True(t, errors.Is(err, core.ErrInsufficientBalance))
	})

	t.Run("zero amount is a no-op", func(t *testing.T) {
		require.NoError(t, f.engine.WithdrawCollateral(f.ctx, user, index, collateralAsset, decimal.Zero))
	})
}

func TestRepayClampsToDebt(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)

	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(50_000_000)))
	f.mint(user, liquidityAsset, 10_000_000)

	// Offer more than owed; only the debt is taken.
	require.NoError(t, f.engine.Repay(f.ctx, user, index, decimal.NewFromInt(60_000_000)))
	assert.True(t, f.balance(user, liquidityAsset).Equal(decimal.NewFromInt(10_000_000)))

	debt, err := f.engine.CalculateDebtWithInterest(f.ctx, user, index)
	require.NoError(t, err)
	assert.True(t, debt.IsZero())

	snapshot := f.engine.GetProtocolSnapshot(f.ctx)
	assert.True(t, snapshot.TotalBorrow.IsZero())
	assert.True(t, snapshot.Vault.Equal(decimal.NewFromInt(1_000_000_000)))
}

func TestExitPosition(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)

	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(10_000_000)))

	t.Run("outstanding debt blocks exit", func(t *testing.T) {
		err := f.engine.ExitPosition(f.ctx, user, index)
		assert.True(t, errors.Is(err, core.ErrOutstandingDebt))
	})

	require.NoError(t, f.engine.Repay(f.ctx, user, index, decimal.NewFromInt(10_000_000)))
	require.NoError(t, f.engine.ExitPosition(f.ctx, user, index))

	assert.True(t, f.balance(user, collateralAsset).Equal(decimal.NewFromInt(100_000_000)), "all collateral returned")

	position, err := f.engine.GetUserPosition(f.ctx, user, index)
	require.NoError(t, err)
	assert.Equal(t, core.PositionStatusClosed, position.Status)

	snapshot := f.engine.GetProtocolSnapshot(f.ctx)
	assert.True(t, snapshot.TotalCollateral[collateralAsset].IsZero())

	t.Run("closed position rejects mutation", func(t *testing.T) {
		err := f.engine.SupplyCollateral(f.ctx, user, index, collateralAsset, decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, core.ErrInactivePosition))
	})
}

func TestPositionSummary(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)
	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(40_000_000)))

	summary, err := f.engine.GetPositionSummary(f.ctx, user, index)
	require.NoError(t, err)

	// $200 of collateral in liquidity units.
	assert.True(t, summary.CollateralValue.Equal(decimal.NewFromInt(200_000_000)))
	assert.True(t, summary.Debt.Equal(decimal.NewFromInt(40_000_000)))
	assert.True(t, summary.CreditLimit.Equal(decimal.NewFromInt(100_000_000)))
	assert.True(t, summary.AvailableCredit.Equal(decimal.NewFromInt(60_000_000)))
	// Liquidation value 160,000,000 against 40,000,000 of debt.
	assert.True(t, summary.HealthFactor.Equal(decimal.NewFromInt(4_000_000)))
	assert.False(t, summary.Isolated)
	assert.Equal(t, core.PositionStatusActive, summary.Status)
}
