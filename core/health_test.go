package core_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrestLend/core/core"
)

func TestHealthFactorNoDebt(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)

	healthFactor, err := f.engine.HealthFactor(f.ctx, user, index)
	require.NoError(t, err)
	assert.True(t, healthFactor.Equal(core.MaxHealthFactor), "debt-free positions carry no risk")

	liquidatable, err := f.engine.IsLiquidatable(f.ctx, user, index)
	require.NoError(t, err)
	assert.False(t, liquidatable)
}

func TestHealthFactorTracksPrice(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)
	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(50_000_000)))

	// Liquidation value 160,000,000 over 50,000,000 of debt.
	healthFactor, err := f.engine.HealthFactor(f.ctx, user, index)
	require.NoError(t, err)
	assert.True(t, healthFactor.Equal(decimal.NewFromInt(3_200_000)), "got %s", healthFactor)

	// Halving the price halves the health factor.
	f.setPrice(collateralFeed, decimal.NewFromInt(1_000_000))
	healthFactor, err = f.engine.HealthFactor(f.ctx, user, index)
	require.NoError(t, err)
	assert.True(t, healthFactor.Equal(decimal.NewFromInt(1_600_000)))

	liquidatable, err := f.engine.IsLiquidatable(f.ctx, user, index)
	require.NoError(t, err)
	assert.False(t, liquidatable, "still above par")

	f.setPrice(collateralFeed, decimal.NewFromInt(600_000))
	liquidatable, err = f.engine.IsLiquidatable(f.ctx, user, index)
	require.NoError(t, err)
	assert.True(t, liquidatable)
}

func TestHealthFactorOracleFailures(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user := f.newUser()
	index := f.openFundedPosition(user, 100_000_000)
	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(50_000_000)))

	t.Run("aged price", func(t *testing.T) {
		f.oracle.prices[collateralFeed].UpdatedAt = f.clk.Now().Unix() - core.DEFAULT_ORACLE_MAX_AGE - 1
		_, err := f.engine.HealthFactor(f.ctx, user, index)
		assert.True(t, errors.Is(err, core.ErrOracleTimeout))
	})

	t.Run("stale round", func(t *testing.T) {
		f.setPrice(collateralFeed, decimal.NewFromInt(2_000_000))
		f.oracle.prices[collateralFeed].AnsweredInRound = 1
		_, err := f.engine.HealthFactor(f.ctx, user, index)
		assert.True(t, errors.Is(err, core.ErrOracleStalePrice))
	})

	t.Run("non-positive price", func(t *testing.T) {
		f.setPrice(collateralFeed, decimal.Zero)
		_, err := f.engine.HealthFactor(f.ctx, user, index)
		assert.True(t, errors.Is(err, core.ErrOracleInvalidPrice))
	})
}

// underwaterPosition borrows the full credit limit and then drops the
// collateral price 40%, leaving the position liquidatable with exactly
// 100,000,000 of debt.
func underwaterPosition(t *testing.T, f *fixture) (user uuid.UUID, index uint64) {
	t.Helper()
	user = f.newUser()
	index = f.openFundedPosition(user, 100_000_000)
	require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(100_000_000)))
	f.setPrice(collateralFeed, decimal.NewFromInt(1_200_000))
	return user, index
}

func TestLiquidate(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)
	user, index := underwaterPosition(t, f)

	liquidator := f.newUser()
	f.mint(liquidator, governanceAsset, 1_000)
	f.mint(liquidator, liquidityAsset, 105_000_000)

	result, err := f.engine.Liquidate(f.ctx, liquidator, user, index)
	require.NoError(t, err)

	assert.True(t, result.Debt.Equal(decimal.NewFromInt(100_000_000)))
	assert.True(t, result.Bonus.Equal(decimal.NewFromInt(5_000_000)), "5 percent cross-tier bonus")
	assert.True(t, result.Payment.Equal(decimal.NewFromInt(105_000_000)))
	assert.True(t, result.HealthFactor.LessThan(core.WAD))
	require.Len(t, result.Collateral, 1)
	assert.True(t, result.Collateral[0].Amount.Equal(decimal.NewFromInt(100_000_000)))

	assert.True(t, f.balance(liquidator, liquidityAsset).IsZero())
	assert.True(t, f.balance(liquidator, collateralAsset).Equal(decimal.NewFromInt(100_000_000)))

	position, err := f.engine.GetUserPosition(f.ctx, user, index)
	require.NoError(t, err)
	assert.Equal(t, core.PositionStatusLiquidated, position.Status)
	assert.True(t, position.DebtPrincipal.IsZero())

	snapshot := f.engine.GetProtocolSnapshot(f.ctx)
	assert.True(t, snapshot.TotalBorrow.IsZero())
	assert.True(t, snapshot.Vault.Equal(decimal.NewFromInt(1_005_000_000)), "vault holds debt plus bonus")
	assert.True(t, snapshot.TotalSupplied.Equal(decimal.NewFromInt(1_005_000_000)), "bonus accrues to LPs")
	assert.True(t, snapshot.TotalCollateral[collateralAsset].IsZero())
}

func TestLiquidateGuards(t *testing.T) {
	f := newFixture(t)
	f.listCollateral()
	f.supplyLiquidity(1_000_000_000)

	t.Run("healthy position", func(t *testing.T) {
		user := f.newUser()
		index := f.openFundedPosition(user, 100_000_000)
		require.NoError(t, f.engine.Borrow(f.ctx, user, index, decimal.NewFromInt(10_000_000)))

		liquidator := f.newUser()
		f.mint(liquidator, governanceAsset, 1_000)
		f.mint(liquidator, liquidityAsset, 100_000_000)

		_, err := f.engine.Liquidate(f.ctx, liquidator, user, index)
		assert.True(t, errors.Is(err, core.ErrPositionNotUnhealthy))
	})

	t.Run("stake below threshold", func(t *testing.T) {
		user, index := underwaterPosition(t, f)

		liquidator := f.newUser()
		f.mint(liquidator, governanceAsset, 999)
		f.mint(liquidator, liquidityAsset, 200_000_000)

		_, err := f.engine.Liquidate(f.ctx, liquidator, user, index)
		assert.True(t, errors.Is(err, core.ErrInsufficientStake))
	})

	t.Run("liquidator cannot cover payment", func(t *testing.T) {
		f.setPrice(collateralFeed, decimal.NewFromInt(2_000_000))
		user, index := underwaterPosition(t, f)

		liquidator := f.newUser()
		f.mint(liquidator, governanceAsset, 1_000)
		f.mint(liquidator, liquidityAsset, 104_999_999)

		_, err := f.engine.Liquidate(f.ctx, liquidator, user, index)
		assert.True(t, errors.Is(err, core.ErrInsufficientBalance))

		liquidatable, lerr := f.engine.IsLiquidatable(f.ctx, user, index)
		require.NoError(t, lerr)
		assert.True(t, liquidatable, "failed attempt leaves the position untouched")
	})
}
