package core

import (
	"context"

	"github.com/shopspring/decimal"
)

type (
	AssetStore interface {
		GetAsset(ctx context.Context, assetId string) (*AssetConfig, error)
		UpsertAsset(ctx context.Context, config *AssetConfig) error
		// ListAssets returns every listed asset in the order it was first
		// listed. Deactivated assets stay in the sequence.
		ListAssets(ctx context.Context) ([]*AssetConfig, error)
	}

	AssetConfig struct {
		AssetId string `json:"assetId"`

		OracleId       string `json:"oracleId"`
		OracleDecimals int32  `json:"oracleDecimals"`
		AssetDecimals  int32  `json:"assetDecimals"`

		Active bool `json:"active"`

		// Permille of collateral value usable as borrowing power, and the
		// permille at which the position becomes liquidatable.
		BorrowThreshold      decimal.Decimal `json:"borrowThreshold"`
		LiquidationThreshold decimal.Decimal `json:"liquidationThreshold"`

		SupplyCap decimal.Decimal `json:"supplyCap"`

		Tier             AssetTier       `json:"tier"`
		IsolationDebtCap decimal.Decimal `json:"isolationDebtCap"`

		CreatedAt  int64 `json:"createdAt"`
		LastUpdate int64 `json:"lastUpdate"`
	}
)

type AssetTier uint8

const (
	TierIsolated AssetTier = iota
	TierCrossA
	TierCrossB
	TierStable

	TierCount = 4
)

func (t AssetTier) String() string {
	switch t {
	case TierIsolated:
		return "Isolated"
	case TierCrossA:
		return "CrossA"
	case TierCrossB:
		return "CrossB"
	case TierStable:
		return "Stable"
	default:
		return "Unknown"
	}
}

func (t AssetTier) Valid() bool {
	return t < TierCount
}

// TierRates carries the per-tier borrow rate add-on and liquidation bonus,
// both plain fractions.
type TierRates struct {
	BorrowRate decimal.Decimal `json:"borrowRate"`
	BonusRate  decimal.Decimal `json:"bonusRate"`
}

func (c *AssetConfig) Validate() error {
	if c.AssetId == "" || c.OracleId == "" {
		return ErrInvalidConfig
	}
	if c.OracleDecimals < 0 || c.AssetDecimals < 0 {
		return ErrInvalidConfig
	}
	if !c.Tier.Valid() {
		return ErrInvalidConfig
	}
	if c.BorrowThreshold.IsNegative() || c.BorrowThreshold.GreaterThan(THRESHOLD_SCALE_DEC) {
		return ErrInvalidConfig
	}
	if c.LiquidationThreshold.LessThan(c.BorrowThreshold) || c.LiquidationThreshold.GreaterThan(THRESHOLD_SCALE_DEC) {
		return ErrInvalidConfig
	}
	if c.SupplyCap.IsNegative() {
		return ErrInvalidConfig
	}
	if c.IsolationDebtCap.IsNegative() {
		return ErrInvalidConfig
	}
	if c.Tier != TierIsolated && c.IsolationDebtCap.IsPositive() {
		return ErrInvalidConfig
	}
	return nil
}

// Scale is 10^AssetDecimals, the smallest-unit scale of the asset.
func (c *AssetConfig) Scale() decimal.Decimal {
	return decimal.New(1, c.AssetDecimals)
}

// OracleScale is 10^OracleDecimals, the scale of raw oracle answers.
func (c *AssetConfig) OracleScale() decimal.Decimal {
	return decimal.New(1, c.OracleDecimals)
}

// IsSupplyCapActive reports whether the supply cap binds; a zero cap
// means uncapped.
func (c *AssetConfig) IsSupplyCapActive() bool {
	return c.SupplyCap.IsPositive()
}

// Listed reports whether the config describes a real listing. GetAsset
// hands back a zero value for unknown ids instead of failing.
func (c *AssetConfig) Listed() bool {
	return c.AssetId != ""
}

func (c *AssetConfig) Clone() *AssetConfig {
	cloned := *c
	return &cloned
}

// Configure applies a partial update, leaving zero-valued fields alone.
func (c *AssetConfig) Configure(update *AssetConfig) error {
	if update.OracleId != "" {
		c.OracleId = update.OracleId
	}
	if update.OracleDecimals != 0 {
		c.OracleDecimals = update.OracleDecimals
	}
	if !update.BorrowThreshold.IsZero() {
		c.BorrowThreshold = update.BorrowThreshold
	}
	if !update.LiquidationThreshold.IsZero() {
		c.LiquidationThreshold = update.LiquidationThreshold
	}
	if !update.SupplyCap.IsZero() {
		c.SupplyCap = update.SupplyCap
	}
	if !update.IsolationDebtCap.IsZero() {
		c.IsolationDebtCap = update.IsolationDebtCap
	}
	c.Active = update.Active
	return c.Validate()
}
