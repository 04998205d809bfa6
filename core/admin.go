package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SetAsset lists a new asset or updates an existing listing. Assets are
// never removed: deactivation only flips the Active flag, preserving the
// validity of historical positions.
func (e *Engine) SetAsset(ctx context.Context, caller uuid.UUID, config *AssetConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	now := e.clk.Now().Unix()
	existing, err := e.assets.GetAsset(ctx, config.AssetId)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	upsert := config.Clone()
	if existing != nil && existing.Listed() {
		upsert.CreatedAt = existing.CreatedAt
	} else {
		upsert.CreatedAt = now
	}
	upsert.LastUpdate = now

	if err := e.assets.UpsertAsset(ctx, upsert); err != nil {
		return err
	}

	event := NewEvent(e.clk, EventParameterUpdated, caller)
	event.AssetId = config.AssetId
	event.Detail = "assetConfig"
	return e.emit(ctx, event)
}

// UpdateAssetConfig applies a partial update to a listed asset.
func (e *Engine) UpdateAssetConfig(ctx context.Context, caller uuid.UUID, assetId string, update *AssetConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	config, err := e.loadListedAsset(ctx, assetId)
	if err != nil {
		return err
	}

	updated := config.Clone()
	if err := updated.Configure(update); err != nil {
		return err
	}
	updated.LastUpdate = e.clk.Now().Unix()

	if err := e.assets.UpsertAsset(ctx, updated); err != nil {
		return err
	}

	event := NewEvent(e.clk, EventParameterUpdated, caller)
	event.AssetId = assetId
	event.Detail = "assetConfig"
	return e.emit(ctx, event)
}

// UpdateAssetTier moves a listed asset into another risk tier.
func (e *Engine) UpdateAssetTier(ctx context.Context, caller uuid.UUID, assetId string, tier AssetTier) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !tier.Valid() {
		return ErrInvalidConfig
	}
	config, err := e.loadListedAsset(ctx, assetId)
	if err != nil {
		return err
	}

	updated := config.Clone()
	updated.Tier = tier
	if tier != TierIsolated {
		updated.IsolationDebtCap = decimal.Zero
	}
	updated.LastUpdate = e.clk.Now().Unix()
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := e.assets.UpsertAsset(ctx, updated); err != nil {
		return err
	}

	event := NewEvent(e.clk, EventParameterUpdated, caller)
	event.AssetId = assetId
	event.Detail = "assetTier:" + tier.String()
	return e.emit(ctx, event)
}

// UpdateTierParameters sets one tier's borrow rate add-on and liquidation
// bonus.
func (e *Engine) UpdateTierParameters(ctx context.Context, caller uuid.UUID, tier AssetTier, borrowRate, bonusRate decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !tier.Valid() {
		return ErrInvalidConfig
	}
	if borrowRate.IsNegative() || bonusRate.IsNegative() {
		return ErrNegativeRate
	}
	e.tierRates[tier] = TierRates{BorrowRate: borrowRate, BonusRate: bonusRate}

	event := NewEvent(e.clk, EventParameterUpdated, caller)
	event.Detail = "tierRates:" + tier.String()
	return e.emit(ctx, event)
}

func (e *Engine) UpdateFlashLoanFee(ctx context.Context, caller uuid.UUID, feeBps int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if feeBps < 0 {
		return ErrInvalidConfig
	}
	if feeBps > MAX_FLASH_LOAN_FEE_BPS {
		return &FeeTooHighError{Attempted: feeBps, Max: MAX_FLASH_LOAN_FEE_BPS}
	}
	e.params.FlashLoanFeeBps = feeBps
	return e.emitParamUpdate(ctx, caller, "flashLoanFeeBps")
}

func (e *Engine) UpdateBaseBorrowRate(ctx context.Context, caller uuid.UUID, rate decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if rate.IsNegative() {
		return ErrNegativeRate
	}
	e.params.BaseBorrowRate = rate
	return e.emitParamUpdate(ctx, caller, "baseBorrowRate")
}

func (e *Engine) UpdateBaseProfitTarget(ctx context.Context, caller uuid.UUID, target decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if target.IsNegative() {
		return ErrNegativeRate
	}
	e.params.BaseProfitTarget = target
	return e.emitParamUpdate(ctx, caller, "baseProfitTarget")
}

func (e *Engine) UpdateRewardInterval(ctx context.Context, caller uuid.UUID, interval int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if interval <= 0 {
		return ErrInvalidConfig
	}
	e.params.RewardInterval = interval
	return e.emitParamUpdate(ctx, caller, "rewardInterval")
}

func (e *Engine) UpdateRewardableSupply(ctx context.Context, caller uuid.UUID, supply decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if supply.IsNegative() {
		return ErrInvalidConfig
	}
	e.params.RewardableSupply = supply
	return e.emitParamUpdate(ctx, caller, "rewardableSupply")
}

func (e *Engine) UpdateTargetReward(ctx context.Context, caller uuid.UUID, reward decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if reward.IsNegative() {
		return ErrInvalidConfig
	}
	e.params.TargetReward = reward
	return e.emitParamUpdate(ctx, caller, "targetReward")
}

func (e *Engine) UpdateLiquidatorThreshold(ctx context.Context, caller uuid.UUID, threshold decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if threshold.IsNegative() {
		return ErrInvalidConfig
	}
	e.params.LiquidatorStakeThreshold = threshold
	return e.emitParamUpdate(ctx, caller, "liquidatorThreshold")
}

func (e *Engine) emitParamUpdate(ctx context.Context, caller uuid.UUID, name string) error {
	event := NewEvent(e.clk, EventParameterUpdated, caller)
	event.Detail = name
	return e.emit(ctx, event)
}

// ------------ read-only configuration views

// GetAssetInfo returns the listing for an asset id; unknown ids yield a
// zero-valued config, never an error.
func (e *Engine) GetAssetInfo(ctx context.Context, assetId string) (*AssetConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	config, err := e.assets.GetAsset(ctx, assetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &AssetConfig{}, nil
		}
		return nil, err
	}
	return config.Clone(), nil
}

// AssetDetails pairs a listing with its live aggregates.
type AssetDetails struct {
	Config          *AssetConfig    `json:"config"`
	TotalCollateral decimal.Decimal `json:"totalCollateral"`
	TierRates       TierRates       `json:"tierRates"`
}

func (e *Engine) GetAssetDetails(ctx context.Context, assetId string) (*AssetDetails, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	config, err := e.loadListedAsset(ctx, assetId)
	if err != nil {
		return nil, err
	}
	return &AssetDetails{
		Config:          config.Clone(),
		TotalCollateral: e.totalCollateral(assetId),
		TierRates:       e.tierRates[config.Tier],
	}, nil
}

// GetListedAssets returns every listing in first-listed order.
func (e *Engine) GetListedAssets(ctx context.Context) ([]*AssetConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	assets, err := e.assets.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	cloned := make([]*AssetConfig, 0, len(assets))
	for _, config := range assets {
		cloned = append(cloned, config.Clone())
	}
	return cloned, nil
}

// GetTierRates returns both 4-entry tables: borrow rate add-ons and
// liquidation bonuses, indexed by tier.
func (e *Engine) GetTierRates(ctx context.Context) ([TierCount]decimal.Decimal, [TierCount]decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var borrowRates, bonusRates [TierCount]decimal.Decimal
	for tier := 0; tier < TierCount; tier++ {
		borrowRates[tier] = e.tierRates[tier].BorrowRate
		bonusRates[tier] = e.tierRates[tier].BonusRate
	}
	return borrowRates, bonusRates
}
