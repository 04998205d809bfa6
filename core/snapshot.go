package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProtocolSnapshot is the read-only aggregate view for external consumers.
// It stays callable while the protocol is paused.
type ProtocolSnapshot struct {
	Utilization decimal.Decimal `json:"utilization"`

	TotalSupplied decimal.Decimal `json:"totalSupplied"`
	TotalBorrow   decimal.Decimal `json:"totalBorrow"`
	Vault         decimal.Decimal `json:"vault"`
	TotalShares   decimal.Decimal `json:"totalShares"`

	FlashLoanFeeRevenue decimal.Decimal `json:"flashLoanFeeRevenue"`

	TotalCollateral map[string]decimal.Decimal `json:"totalCollateral"`

	Params ProtocolParams `json:"params"`
	Paused bool           `json:"paused"`

	TierBorrowRates [TierCount]decimal.Decimal `json:"tierBorrowRates"`
	TierBonusRates  [TierCount]decimal.Decimal `json:"tierBonusRates"`
}

func (e *Engine) GetProtocolSnapshot(ctx context.Context) *ProtocolSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	collateral := make(map[string]decimal.Decimal, len(e.state.TotalCollateral))
	for assetId, tvl := range e.state.TotalCollateral {
		collateral[assetId] = tvl
	}

	snapshot := &ProtocolSnapshot{
		Utilization:         e.utilization(),
		TotalSupplied:       e.state.TotalSupplied,
		TotalBorrow:         e.state.TotalBorrow,
		Vault:               e.state.Vault,
		TotalShares:         e.state.TotalShares,
		FlashLoanFeeRevenue: e.state.FlashLoanFeeRevenue,
		TotalCollateral:     collateral,
		Params:              e.params,
		Paused:              e.paused,
	}
	for tier := 0; tier < TierCount; tier++ {
		snapshot.TierBorrowRates[tier] = e.tierRates[tier].BorrowRate
		snapshot.TierBonusRates[tier] = e.tierRates[tier].BonusRate
	}
	return snapshot
}
