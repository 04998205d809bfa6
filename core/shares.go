package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	ShareStore interface {
		GetHolder(ctx context.Context, accountId uuid.UUID) (*ShareHolder, error)
		UpsertHolder(ctx context.Context, holder *ShareHolder) error
	}

	// ShareHolder is one LP's fungible share balance plus the accrual
	// timestamp gating reward eligibility.
	ShareHolder struct {
		AccountId   uuid.UUID       `json:"accountId"`
		Shares      decimal.Decimal `json:"shares"`
		LastAccrual int64           `json:"lastAccrual"`
	}
)

func (h *ShareHolder) Clone() *ShareHolder {
	cloned := *h
	return &cloned
}

func (e *Engine) loadHolder(ctx context.Context, accountId uuid.UUID) (*ShareHolder, error) {
	holder, err := e.holders.GetHolder(ctx, accountId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ShareHolder{AccountId: accountId, Shares: decimal.Zero}, nil
		}
		return nil, err
	}
	return holder.Clone(), nil
}

// shareValue is the liquidity-asset value of a share balance at the
// current exchange rate.
func (e *Engine) shareValue(shares decimal.Decimal) decimal.Decimal {
	if !e.state.TotalShares.IsPositive() {
		return decimal.Zero
	}
	return shares.Mul(e.state.TotalSupplied).Div(e.state.TotalShares).Floor()
}

// SupplyLiquidity deposits the liquidity asset for LP shares: 1:1 when no
// shares exist, proportional to the exchange rate afterwards. The holder's
// reward clock resets to now.
func (e *Engine) SupplyLiquidity(ctx context.Context, accountId uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := e.checkDebit(ctx, accountId, e.params.LiquidityAssetId, amount); err != nil {
		return decimal.Zero, err
	}

	var shares decimal.Decimal
	if e.state.TotalShares.IsZero() {
		shares = amount
	} else {
		shares = amount.Mul(e.state.TotalShares).Div(e.state.TotalSupplied).Floor()
	}

	holder, err := e.loadHolder(ctx, accountId)
	if err != nil {
		return decimal.Zero, err
	}
	state := e.state.Clone()

	holder.Shares = holder.Shares.Add(shares)
	holder.LastAccrual = e.clk.Now().Unix()
	state.TotalShares = state.TotalShares.Add(shares)
	state.TotalSupplied = state.TotalSupplied.Add(amount)
	state.Vault = state.Vault.Add(amount)

	if err := e.debit(ctx, accountId, e.params.LiquidityAssetId, amount); err != nil {
		return decimal.Zero, err
	}
	if err := e.holders.UpsertHolder(ctx, holder); err != nil {
		return decimal.Zero, err
	}
	e.state = *state

	event := NewEvent(e.clk, EventLiquiditySupplied, accountId)
	event.AssetId = e.params.LiquidityAssetId
	event.Amount = amount
	event.Detail = "shares:" + shares.String()
	if err := e.emit(ctx, event); err != nil {
		return decimal.Zero, err
	}
	return shares, nil
}

// Exchange redeems LP shares for the liquidity asset at the current
// exchange rate.
func (e *Engine) Exchange(ctx context.Context, accountId uuid.UUID, shareAmount decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRunning(); err != nil {
		return decimal.Zero, err
	}
	if !shareAmount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if !e.state.TotalShares.IsPositive() {
		return decimal.Zero, ErrNoSharesOutstanding
	}

	holder, err := e.loadHolder(ctx, accountId)
	if err != nil {
		return decimal.Zero, err
	}
	if holder.Shares.LessThan(shareAmount) {
		return decimal.Zero, ErrInsufficientBalance
	}

	payout := shareAmount.Mul(e.state.TotalSupplied).Div(e.state.TotalShares).Floor()
	if e.state.Vault.LessThan(payout) {
		return decimal.Zero, ErrInsufficientLiquidity
	}

	state := e.state.Clone()
	holder.Shares = holder.Shares.Sub(shareAmount)
	state.TotalShares = state.TotalShares.Sub(shareAmount)
	state.TotalSupplied = state.TotalSupplied.Sub(payout)
	state.Vault = state.Vault.Sub(payout)

	if err := e.credit(ctx, accountId, e.params.LiquidityAssetId, payout); err != nil {
		return decimal.Zero, err
	}
	if err := e.holders.UpsertHolder(ctx, holder); err != nil {
		return decimal.Zero, err
	}
	e.state = *state

	event := NewEvent(e.clk, EventLiquidityExchanged, accountId)
	event.AssetId = e.params.LiquidityAssetId
	event.Amount = payout
	event.Detail = "shares:" + shareAmount.String()
	if err := e.emit(ctx, event); err != nil {
		return decimal.Zero, err
	}
	return payout, nil
}

func (e *Engine) isRewardable(holder *ShareHolder) bool {
	if !e.state.TotalShares.IsPositive() {
		return false
	}
	if !holder.Shares.IsPositive() {
		return false
	}
	elapsed := e.clk.Now().Unix() - holder.LastAccrual
	if elapsed < e.params.RewardInterval {
		return false
	}
	return e.shareValue(holder.Shares).GreaterThanOrEqual(e.params.RewardableSupply)
}

// IsRewardable reports whether the holder has waited out the reward
// interval with a large enough share value.
func (e *Engine) IsRewardable(ctx context.Context, accountId uuid.UUID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	holder, err := e.loadHolder(ctx, accountId)
	if err != nil {
		return false, err
	}
	return e.isRewardable(holder), nil
}

// LPInfo is the read-only per-holder LP view.
type LPInfo struct {
	Shares        decimal.Decimal `json:"shares"`
	AssetValue    decimal.Decimal `json:"assetValue"`
	LastAccrual   int64           `json:"lastAccrual"`
	Rewardable    bool            `json:"rewardable"`
	PendingReward decimal.Decimal `json:"pendingReward"`
}

func (e *Engine) GetLPInfo(ctx context.Context, accountId uuid.UUID) (*LPInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	holder, err := e.loadHolder(ctx, accountId)
	if err != nil {
		return nil, err
	}

	pending := decimal.Zero
	rewardable := e.isRewardable(holder)
	if rewardable {
		elapsed := decimal.NewFromInt(e.clk.Now().Unix() - holder.LastAccrual)
		interval := decimal.NewFromInt(e.params.RewardInterval)
		pending = decimal.Min(e.params.TargetReward.Mul(elapsed).Div(interval).Floor(), e.params.MaxReward)
	}

	return &LPInfo{
		Shares:        holder.Shares,
		AssetValue:    e.shareValue(holder.Shares),
		LastAccrual:   holder.LastAccrual,
		Rewardable:    rewardable,
		PendingReward: pending,
	}, nil
}
