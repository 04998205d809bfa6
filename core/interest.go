package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// utilization is total borrow over total supplied liquidity, wad-scaled.
// Zero when nothing is supplied: this path never divides by zero.
func (e *Engine) utilization() decimal.Decimal {
	if !e.state.TotalSupplied.IsPositive() {
		return decimal.Zero
	}
	ratio, _ := WadDiv(e.state.TotalBorrow, e.state.TotalSupplied)
	return ratio
}

func (e *Engine) GetUtilization(ctx context.Context) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.utilization()
}

// borrowRate is the annual borrow rate fraction for a tier: the base rate
// plus the tier add-on, with a steeper marginal slope once utilization
// crosses the optimal point.
func (e *Engine) borrowRate(tier AssetTier) decimal.Decimal {
	rate := e.params.BaseBorrowRate.Add(e.tierRates[tier].BorrowRate)

	utilization := e.utilization().Div(WAD)
	if utilization.GreaterThan(e.params.OptimalUtilization) {
		excess := utilization.Sub(e.params.OptimalUtilization)
		rate = rate.Add(excess.Mul(e.params.JumpMultiplier))
	}
	return rate
}

func (e *Engine) GetBorrowRate(ctx context.Context, tier AssetTier) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !tier.Valid() {
		return decimal.Zero, ErrInvalidConfig
	}
	return e.borrowRate(tier), nil
}

// positionTier resolves the rate/bonus tier a position accrues at:
// isolated positions follow their single asset's tier, cross positions the
// base cross tier.
func (e *Engine) positionTier(ctx context.Context, position *Position) (AssetTier, error) {
	if !position.Isolated {
		return TierCrossA, nil
	}
	config, err := e.loadListedAsset(ctx, position.IsolatedAssetId)
	if err != nil {
		return TierCrossA, err
	}
	return config.Tier, nil
}

// debtWithInterest re-derives the position's current debt by compounding
// the stored principal from LastAccrual to now. Pure: mutating entry
// points commit the result through accruePosition, read-only queries never
// do.
func (e *Engine) debtWithInterest(ctx context.Context, position *Position) (decimal.Decimal, error) {
	if !position.hasDebt() {
		return decimal.Zero, nil
	}
	tier, err := e.positionTier(ctx, position)
	if err != nil {
		return decimal.Zero, err
	}
	elapsed := e.clk.Now().Unix() - position.LastAccrual
	perSecondRate := AnnualRateToPerSecondRate(ToRay(e.borrowRate(tier)))
	return Accrue(position.DebtPrincipal, perSecondRate, elapsed), nil
}

// accruePosition commits the shared formula against a staged state:
// principal advances to the compounded debt, the interest delta flows into
// the protocol aggregates (raising the LP exchange rate), and the accrual
// clock moves. Callers commit the staged state only on success.
func (e *Engine) accruePosition(ctx context.Context, position *Position, state *ProtocolState) (decimal.Decimal, error) {
	debt, err := e.debtWithInterest(ctx, position)
	if err != nil {
		return decimal.Zero, err
	}
	interest := debt.Sub(position.DebtPrincipal)

	position.DebtPrincipal = debt
	position.LastAccrual = e.clk.Now().Unix()

	if interest.IsPositive() {
		state.TotalBorrow = state.TotalBorrow.Add(interest)
		state.TotalSupplied = state.TotalSupplied.Add(interest)
	}
	return debt, nil
}

// CalculateDebtWithInterest is the read-only debt query. Calling it twice
// with no intervening mutation returns identical results: it never commits.
func (e *Engine) CalculateDebtWithInterest(ctx context.Context, accountId uuid.UUID, index uint64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return decimal.Zero, err
	}
	return e.debtWithInterest(ctx, position)
}
