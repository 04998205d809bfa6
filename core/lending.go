package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CreatePosition opens a new ACTIVE position for the caller and returns
// its per-user index (the prior position count). A non-isolated position
// cannot be anchored to an isolation-tier asset.
func (e *Engine) CreatePosition(ctx context.Context, accountId uuid.UUID, assetId string, isolated bool) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return 0, err
	}

	config, err := e.loadListedAsset(ctx, assetId)
	if err != nil {
		return 0, err
	}
	if !isolated && config.Tier == TierIsolated {
		return 0, errors.Wrap(ErrIsolationModeRequired, assetId)
	}

	index, err := e.positions.CountPositions(ctx, accountId)
	if err != nil {
		return 0, err
	}

	position := NewPosition(e.clk, accountId, index, isolated, assetId)
	if err := e.positions.CreatePosition(ctx, position); err != nil {
		return 0, err
	}

	event := NewEvent(e.clk, EventPositionCreated, accountId)
	event.PositionIndex = index
	event.AssetId = assetId
	if err := e.emit(ctx, event); err != nil {
		return 0, err
	}
	return index, nil
}

// SupplyCollateral moves collateral from the caller's token balance into
// the position. Zero-amount calls validate and succeed without effect.
func (e *Engine) SupplyCollateral(ctx context.Context, accountId uuid.UUID, index uint64, assetId string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	stored, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return err
	}
	if err := stored.AssertActive(); err != nil {
		return err
	}

	config, err := e.loadListedAsset(ctx, assetId)
	if err != nil {
		return err
	}
	if !config.Active {
		return errors.Wrap(ErrAssetDisabled, assetId)
	}
	if config.Tier == TierIsolated && !stored.Isolated {
		return errors.Wrap(ErrIsolationModeRequired, assetId)
	}
	if stored.Isolated && assetId != stored.IsolatedAssetId {
		return errors.Wrap(ErrIsolatedCollateralOnly, assetId)
	}

	if amount.IsZero() {
		return nil
	}

	newTvl := e.totalCollateral(assetId).Add(amount)
	if config.IsSupplyCapActive() && newTvl.GreaterThan(config.SupplyCap) {
		return &SupplyCapExceededError{AssetId: assetId, Attempted: newTvl, Cap: config.SupplyCap}
	}
	if err := e.checkDebit(ctx, accountId, assetId, amount); err != nil {
		return err
	}

	position := stored.Clone()
	state := e.state.Clone()

	position.addCollateral(assetId, amount)
	position.LastUpdate = e.clk.Now().Unix()
	state.TotalCollateral[assetId] = newTvl

	if err := e.debit(ctx, accountId, assetId, amount); err != nil {
		return err
	}
	if err := e.positions.UpdatePosition(ctx, position); err != nil {
		return err
	}
	e.state = *state

	event := NewEvent(e.clk, EventCollateralSupplied, accountId)
	event.PositionIndex = index
	event.AssetId = assetId
	event.Amount = amount
	return e.emit(ctx, event)
}

// WithdrawCollateral returns collateral to the caller. A position with
// outstanding debt must still cover that debt with its credit limit after
// the withdrawal.
func (e *Engine) WithdrawCollateral(ctx context.Context, accountId uuid.UUID, index uint64, assetId string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	stored, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return err
	}
	if err := stored.AssertActive(); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}

	position := stored.Clone()
	state := e.state.Clone()

	if err := position.subCollateral(assetId, amount); err != nil {
		return err
	}

	if position.hasDebt() {
		debt, err := e.debtWithInterest(ctx, position)
		if err != nil {
			return err
		}
		limit, err := e.creditLimit(ctx, position)
		if err != nil {
			return err
		}
		if debt.GreaterThan(limit) {
			return ErrInsufficientCollateral
		}
	}

	position.LastUpdate = e.clk.Now().Unix()
	state.TotalCollateral[assetId] = e.totalCollateral(assetId).Sub(amount)

	if err := e.credit(ctx, accountId, assetId, amount); err != nil {
		return err
	}
	if err := e.positions.UpdatePosition(ctx, position); err != nil {
		return err
	}
	e.state = *state

	event := NewEvent(e.clk, EventCollateralWithdrawn, accountId)
	event.PositionIndex = index
	event.AssetId = assetId
	event.Amount = amount
	return e.emit(ctx, event)
}

// Borrow accrues interest, then draws the liquidity asset against the
// position's credit limit.
func (e *Engine) Borrow(ctx context.Context, accountId uuid.UUID, index uint64, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidBorrowAmount
	}

	stored, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return err
	}
	if err := stored.AssertActive(); err != nil {
		return err
	}

	position := stored.Clone()
	state := e.state.Clone()

	debt, err := e.accruePosition(ctx, position, state)
	if err != nil {
		return err
	}
	newDebt := debt.Add(amount)

	limit, err := e.creditLimit(ctx, position)
	if err != nil {
		return err
	}
	if newDebt.GreaterThan(limit) {
		return ErrInsufficientCollateral
	}

	if position.Isolated {
		config, err := e.loadListedAsset(ctx, position.IsolatedAssetId)
		if err != nil {
			return err
		}
		if config.IsolationDebtCap.IsPositive() && newDebt.GreaterThan(config.IsolationDebtCap) {
			return ErrIsolationDebtCapReached
		}
	}

	if state.Vault.LessThan(amount) {
		return ErrInsufficientLiquidity
	}

	position.DebtPrincipal = newDebt
	position.LastUpdate = e.clk.Now().Unix()
	state.TotalBorrow = state.TotalBorrow.Add(amount)
	state.Vault = state.Vault.Sub(amount)

	if err := e.credit(ctx, accountId, e.params.LiquidityAssetId, amount); err != nil {
		return err
	}
	if err := e.positions.UpdatePosition(ctx, position); err != nil {
		return err
	}
	e.state = *state

	event := NewEvent(e.clk, EventBorrow, accountId)
	event.PositionIndex = index
	event.AssetId = e.params.LiquidityAssetId
	event.Amount = amount
	return e.emit(ctx, event)
}

// Repay accrues interest, then reduces the debt by min(amount, debt);
// over-repayment is clamped and only the clamped amount is transferred in.
func (e *Engine) Repay(ctx context.Context, accountId uuid.UUID, index uint64, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	stored, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return err
	}
	if err := stored.AssertActive(); err != nil {
		return err
	}

	position := stored.Clone()
	state := e.state.Clone()

	debt, err := e.accruePosition(ctx, position, state)
	if err != nil {
		return err
	}
	repaid := decimal.Min(amount, debt)

	if err := e.checkDebit(ctx, accountId, e.params.LiquidityAssetId, repaid); err != nil {
		return err
	}

	position.DebtPrincipal = debt.Sub(repaid)
	position.LastUpdate = e.clk.Now().Unix()
	state.TotalBorrow = state.TotalBorrow.Sub(repaid)
	state.Vault = state.Vault.Add(repaid)

	if err := e.debit(ctx, accountId, e.params.LiquidityAssetId, repaid); err != nil {
		return err
	}
	if err := e.positions.UpdatePosition(ctx, position); err != nil {
		return err
	}
	e.state = *state

	event := NewEvent(e.clk, EventRepay, accountId)
	event.PositionIndex = index
	event.AssetId = e.params.LiquidityAssetId
	event.Amount = repaid
	return e.emit(ctx, event)
}

// ExitPosition withdraws all remaining collateral and closes the position.
// The debt must have been fully repaid.
func (e *Engine) ExitPosition(ctx context.Context, accountId uuid.UUID, index uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return err
	}

	stored, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return err
	}
	if err := stored.AssertActive(); err != nil {
		return err
	}

	debt, err := e.debtWithInterest(ctx, stored)
	if err != nil {
		return err
	}
	if debt.IsPositive() {
		return ErrOutstandingDebt
	}

	position := stored.Clone()
	state := e.state.Clone()

	returned := make([]CollateralEntry, len(position.Collateral))
	copy(returned, position.Collateral)

	for _, entry := range returned {
		if err := e.credit(ctx, accountId, entry.AssetId, entry.Amount); err != nil {
			return err
		}
		state.TotalCollateral[entry.AssetId] = state.TotalCollateral[entry.AssetId].Sub(entry.Amount)
	}

	if err := position.close(e.clk); err != nil {
		return err
	}
	if err := e.positions.UpdatePosition(ctx, position); err != nil {
		return err
	}
	e.state = *state

	event := NewEvent(e.clk, EventPositionClosed, accountId)
	event.PositionIndex = index
	return e.emit(ctx, event)
}

// ------------ read-only position views

func (e *Engine) GetUserPosition(ctx context.Context, accountId uuid.UUID, index uint64) (*Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return nil, err
	}
	return position.Clone(), nil
}

func (e *Engine) GetUserPositionsCount(ctx context.Context, accountId uuid.UUID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.CountPositions(ctx, accountId)
}

func (e *Engine) GetUserCollateralAmount(ctx context.Context, accountId uuid.UUID, index uint64, assetId string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return decimal.Zero, err
	}
	return position.CollateralAmount(assetId), nil
}

func (e *Engine) GetPositionCollateralAssets(ctx context.Context, accountId uuid.UUID, index uint64) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return nil, err
	}
	return position.CollateralAssets(), nil
}

// PositionSummary aggregates one position's standing.
type PositionSummary struct {
	CollateralValue decimal.Decimal `json:"collateralValue"`
	Debt            decimal.Decimal `json:"debt"`
	CreditLimit     decimal.Decimal `json:"creditLimit"`
	AvailableCredit decimal.Decimal `json:"availableCredit"`
	HealthFactor    decimal.Decimal `json:"healthFactor"`
	Isolated        bool            `json:"isolated"`
	Status          PositionStatus  `json:"status"`
}

func (e *Engine) GetPositionSummary(ctx context.Context, accountId uuid.UUID, index uint64) (*PositionSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position, err := e.loadPosition(ctx, accountId, index)
	if err != nil {
		return nil, err
	}

	collateralValue, err := e.collateralValue(ctx, position, nil)
	if err != nil {
		return nil, err
	}
	debt, err := e.debtWithInterest(ctx, position)
	if err != nil {
		return nil, err
	}
	limit, err := e.creditLimit(ctx, position)
	if err != nil {
		return nil, err
	}
	healthFactor, err := e.healthFactor(ctx, position)
	if err != nil {
		return nil, err
	}

	return &PositionSummary{
		CollateralValue: collateralValue,
		Debt:            debt,
		CreditLimit:     limit,
		AvailableCredit: decimal.Max(limit.Sub(debt), decimal.Zero),
		HealthFactor:    healthFactor,
		Isolated:        position.Isolated,
		Status:          position.Status,
	}, nil
}
