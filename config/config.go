// Package config loads protocol parameters from a YAML file. Decimal
// fields are declared as strings in the file so precision survives the
// round trip.
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/CrestLend/core/core"
)

type File struct {
	Admin string `yaml:"admin"`

	LiquidityAssetId  string `yaml:"liquidity_asset_id"`
	GovernanceAssetId string `yaml:"governance_asset_id"`

	FlashLoanFeeBps int64 `yaml:"flash_loan_fee_bps"`

	BaseBorrowRate   string `yaml:"base_borrow_rate"`
	BaseProfitTarget string `yaml:"base_profit_target"`

	OptimalUtilization string `yaml:"optimal_utilization"`
	JumpMultiplier     string `yaml:"jump_multiplier"`

	RewardInterval   int64  `yaml:"reward_interval"`
	RewardableSupply string `yaml:"rewardable_supply"`
	TargetReward     string `yaml:"target_reward"`
	MaxReward        string `yaml:"max_reward"`

	LiquidatorStakeThreshold string `yaml:"liquidator_stake_threshold"`

	OracleMaxAge int64 `yaml:"oracle_max_age"`

	Tiers []TierFile `yaml:"tiers"`
}

type TierFile struct {
	Tier       string `yaml:"tier"`
	BorrowRate string `yaml:"borrow_rate"`
	BonusRate  string `yaml:"bonus_rate"`
}

// Load reads and decodes a YAML parameter file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &f, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.Wrapf(core.ErrInvalidConfig, "%s: %q", field, value)
	}
	return d, nil
}

func parseTier(name string) (core.AssetTier, error) {
	for tier := core.AssetTier(0); tier < core.TierCount; tier++ {
		if tier.String() == name {
			return tier, nil
		}
	}
	return 0, errors.Wrapf(core.ErrInvalidConfig, "tier: %q", name)
}

// Params converts the decoded file into validated engine parameters.
func (f *File) Params() (core.ProtocolParams, error) {
	params := core.ProtocolParams{
		LiquidityAssetId:  f.LiquidityAssetId,
		GovernanceAssetId: f.GovernanceAssetId,
		FlashLoanFeeBps:   f.FlashLoanFeeBps,
		RewardInterval:    f.RewardInterval,
		OracleMaxAge:      f.OracleMaxAge,
	}

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"base_borrow_rate", f.BaseBorrowRate, &params.BaseBorrowRate},
		{"base_profit_target", f.BaseProfitTarget, &params.BaseProfitTarget},
		{"optimal_utilization", f.OptimalUtilization, &params.OptimalUtilization},
		{"jump_multiplier", f.JumpMultiplier, &params.JumpMultiplier},
		{"rewardable_supply", f.RewardableSupply, &params.RewardableSupply},
		{"target_reward", f.TargetReward, &params.TargetReward},
		{"max_reward", f.MaxReward, &params.MaxReward},
		{"liquidator_stake_threshold", f.LiquidatorStakeThreshold, &params.LiquidatorStakeThreshold},
	}
	for _, field := range fields {
		d, err := parseDecimal(field.name, field.value)
		if err != nil {
			return core.ProtocolParams{}, err
		}
		*field.dst = d
	}

	if params.OracleMaxAge == 0 {
		params.OracleMaxAge = core.DEFAULT_ORACLE_MAX_AGE
	}
	if err := params.Validate(); err != nil {
		return core.ProtocolParams{}, err
	}
	return params, nil
}

// TierRates converts the per-tier entries into the engine's rate table.
func (f *File) TierRates() ([core.TierCount]core.TierRates, error) {
	var rates [core.TierCount]core.TierRates
	for _, entry := range f.Tiers {
		tier, err := parseTier(entry.Tier)
		if err != nil {
			return rates, err
		}
		borrowRate, err := parseDecimal("borrow_rate", entry.BorrowRate)
		if err != nil {
			return rates, err
		}
		bonusRate, err := parseDecimal("bonus_rate", entry.BonusRate)
		if err != nil {
			return rates, err
		}
		if borrowRate.IsNegative() || bonusRate.IsNegative() {
			return rates, core.ErrNegativeRate
		}
		rates[tier] = core.TierRates{BorrowRate: borrowRate, BonusRate: bonusRate}
	}
	return rates, nil
}
