package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// validatedPrice fetches and validates the oracle answer for an asset.
func (e *Engine) validatedPrice(ctx context.Context, config *AssetConfig) (decimal.Decimal, error) {
	data, err := e.prices.GetPriceData(ctx, config.OracleId)
	if err != nil {
		return decimal.Zero, err
	}
	if err := data.Validate(config.OracleId, e.clk.Now().Unix(), e.params.OracleMaxAge); err != nil {
		return decimal.Zero, err
	}
	return data.Price, nil
}

// collateralValue sums threshold-weighted collateral value in liquidity
// smallest units:
//
//	amount * price * threshold * WAD / (assetScale * 1000 * oracleScale)
//
// The threshold selector picks borrow thresholds for credit limits and
// liquidation thresholds for health factors; nil weights at par.
func (e *Engine) collateralValue(ctx context.Context, position *Position, threshold func(*AssetConfig) decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, entry := range position.Collateral {
		if !entry.Amount.IsPositive() {
			continue
		}
		config, err := e.loadListedAsset(ctx, entry.AssetId)
		if err != nil {
			return decimal.Zero, err
		}
		price, err := e.validatedPrice(ctx, config)
		if err != nil {
			return decimal.Zero, err
		}

		weight := THRESHOLD_SCALE_DEC
		if threshold != nil {
			weight = threshold(config)
		}
		value := entry.Amount.Mul(price).Mul(weight).Mul(WAD).
			Div(config.Scale().Mul(THRESHOLD_SCALE_DEC).Mul(config.OracleScale())).
			Floor()
		total = total.Add(value)
	}
	return total, nil
}

func borrowThreshold(config *AssetConfig) decimal.Decimal {
	return config.BorrowThreshold
}

func liquidationThreshold(config *AssetConfig) decimal.Decimal {
	return config.LiquidationThreshold
}

func (e *Engine) creditLimit(ctx context.Context, position *Position) (decimal.Decimal, error) {
	return e.collateralValue(ctx, position, borrowThreshold)
}

// healthFactor is the wad-scaled ratio of liquidation-weighted collateral
// value to outstanding debt. Positions without debt carry no liquidation
// risk and report the maximum representable value.
func (e *Engine) healthFactor(ctx context.Context, position *Position) (decimal.Decimal, error) {
	debt, err := e.debtWithInterest(ctx, position)
	if err != nil {
		return decimal.Zero, err
	}
	if !debt.IsPositive() {
		return MaxHealthFactor, nil
	}
	liquidationValue, err := e.collateralValue(ctx, position, liquidationThreshold)
	if err != nil {
		return decimal.Zero, err
	}
	return liquidationValue.Mul(WAD).Div(debt).Floor(), nil
}

// CalculateCreditLimit is the read-only borrow-weighted collateral value.
func (e *Engine) CalculateCreditLimit(ctx context.Context, accountId uuid.UUID, index uint64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return decimal.Zero, err
	}
	return e.creditLimit(ctx, position)
}

func (e *Engine) HealthFactor(ctx context.Context, accountId uuid.UUID, index uint64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return decimal.Zero, err
	}
	return e.healthFactor(ctx, position)
}

func (e *Engine) IsLiquidatable(ctx context.Context, accountId uuid.UUID, index uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return false, err
	}
	healthFactor, err := e.healthFactor(ctx, position)
	if err != nil {
		return false, err
	}
	return healthFactor.LessThan(WAD), nil
}

// positionLiquidationFee is the bonus fraction the liquidator pays on top
// of the debt: the isolated asset's tier fee for isolated positions, the
// base cross tier fee otherwise.
func (e *Engine) positionLiquidationFee(ctx context.Context, position *Position) (decimal.Decimal, error) {
	tier, err := e.positionTier(ctx, position)
	if err != nil {
		return decimal.Zero, err
	}
	return e.tierRates[tier].BonusRate, nil
}

func (e *Engine) GetPositionLiquidationFee(ctx context.Context, accountId uuid.UUID, index uint64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return decimal.Zero, err
	}
	return e.positionLiquidationFee(ctx, position)
}

// LiquidationResult reports what a committed liquidation moved.
type LiquidationResult struct {
	AccountId     uuid.UUID         `json:"accountId"`
	PositionIndex uint64            `json:"positionIndex"`
	LiquidatorId  uuid.UUID         `json:"liquidatorId"`
	Debt          decimal.Decimal   `json:"debt"`
	Bonus         decimal.Decimal   `json:"bonus"`
	Payment       decimal.Decimal   `json:"payment"`
	Collateral    []CollateralEntry `json:"collateral"`
	HealthFactor  decimal.Decimal   `json:"healthFactor"`
}

// Liquidate settles an under-collateralized position: the liquidator pays
// debt plus the tier bonus in the liquidity asset and takes all
// collateral. The health check runs against then-current oracle prices.
func (e *Engine) Liquidate(ctx context.Context, liquidatorId, accountId uuid.UUID, index uint64) (*LiquidationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return nil, err
	}

	stake, err := e.balanceOf(ctx, liquidatorId, e.params.GovernanceAssetId)
	if err != nil {
		return nil, err
	}
	if stake.LessThan(e.params.LiquidatorStakeThreshold) {
		return nil, ErrInsufficientStake
	}

	stored, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return nil, err
	}
	if err := stored.AssertActive(); err != nil {
		return nil, err
	}

	position := stored.Clone()
	state := e.state.Clone()

	healthFactor, err := e.healthFactor(ctx, position)
	if err != nil {
		return nil, err
	}
	if !healthFactor.LessThan(WAD) {
		return nil, ErrPositionNotUnhealthy
	}

	debt, err := e.accruePosition(ctx, position, state)
	if err != nil {
		return nil, err
	}
	bonusRate, err := e.positionLiquidationFee(ctx, position)
	if err != nil {
		return nil, err
	}
	bonus := debt.Mul(bonusRate).Floor()
	payment := debt.Add(bonus)

	if err := e.checkDebit(ctx, liquidatorId, e.params.LiquidityAssetId, payment); err != nil {
		return nil, err
	}

	seized := make([]CollateralEntry, len(position.Collateral))
	copy(seized, position.Collateral)

	// All checks passed; commit.
	if err := e.debit(ctx, liquidatorId, e.params.LiquidityAssetId, payment); err != nil {
		return nil, err
	}
	for _, entry := range seized {
		if err := e.credit(ctx, liquidatorId, entry.AssetId, entry.Amount); err != nil {
			return nil, err
		}
		state.TotalCollateral[entry.AssetId] = state.TotalCollateral[entry.AssetId].Sub(entry.Amount)
	}
	state.Vault = state.Vault.Add(payment)
	state.TotalBorrow = state.TotalBorrow.Sub(debt)
	state.TotalSupplied = state.TotalSupplied.Add(bonus)

	position.markLiquidated(e.clk)
	if err := e.positions.UpdatePosition(ctx, position); err != nil {
		return nil, err
	}
	e.state = *state

	e.log.Info().
		Str("account", accountId.String()).
		Uint64("position", index).
		Str("liquidator", liquidatorId.String()).
		Str("debt", debt.String()).
		Str("bonus", bonus.String()).
		Msg("position liquidated")

	event := NewEvent(e.clk, EventPositionLiquidated, accountId)
	event.PositionIndex = index
	event.Amount = payment
	event.Detail = "liquidator:" + liquidatorId.String()
	if err := e.emit(ctx, event); err != nil {
		return nil, err
	}

	return &LiquidationResult{
		AccountId:     accountId,
		PositionIndex: index,
		LiquidatorId:  liquidatorId,
		Debt:          debt,
		Bonus:         bonus,
		Payment:       payment,
		Collateral:    seized,
		HealthFactor:  healthFactor,
	}, nil
}
