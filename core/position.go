package core

import (
	"context"
	"strconv"

	"github.com/CrestLend/core/utils"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	PositionStore interface {
		GetPosition(ctx context.Context, accountId uuid.UUID, index uint64) (*Position, error)
		CountPositions(ctx context.Context, accountId uuid.UUID) (uint64, error)
		CreatePosition(ctx context.Context, position *Position) error
		UpdatePosition(ctx context.Context, position *Position) error
		ListPositions(ctx context.Context, accountId uuid.UUID) ([]*Position, error)
	}

	// BalanceStore is the fungible token ledger backing every transfer the
	// engine performs: collateral in/out, borrow payouts, repayments,
	// liquidation payments and flash-loan settlement.
	BalanceStore interface {
		GetBalance(ctx context.Context, accountId uuid.UUID, assetId string) (decimal.Decimal, error)
		SetBalance(ctx context.Context, accountId uuid.UUID, assetId string, amount decimal.Decimal) error
	}

	CollateralEntry struct {
		AssetId string          `json:"assetId"`
		Amount  decimal.Decimal `json:"amount"`
	}

	Position struct {
		Id        uuid.UUID `json:"id"`
		AccountId uuid.UUID `json:"accountId"`
		Index     uint64    `json:"index"`

		Isolated        bool   `json:"isolated"`
		IsolatedAssetId string `json:"isolatedAssetId,omitempty"`

		// Debt principal in liquidity-asset smallest units, as of LastAccrual.
		DebtPrincipal decimal.Decimal `json:"debtPrincipal"`
		LastAccrual   int64           `json:"lastAccrual"`

		Status PositionStatus `json:"status"`

		// Ordered by first supply; entries always carry a positive amount.
		Collateral []CollateralEntry `json:"collateral"`

		CreatedAt  int64 `json:"createdAt"`
		LastUpdate int64 `json:"lastUpdate"`
	}
)

type PositionStatus uint8

const (
	PositionStatusActive PositionStatus = iota
	PositionStatusClosed
	PositionStatusLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case PositionStatusActive:
		return "Active"
	case PositionStatusClosed:
		return "Closed"
	case PositionStatusLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

func NewPosition(clk clock.Clock, accountId uuid.UUID, index uint64, isolated bool, isolatedAssetId string) *Position {
	if !isolated {
		isolatedAssetId = ""
	}
	return &Position{
		Id:              uuid.Must(uuid.FromString(utils.GenUuidFromStrings(accountId.String(), strconv.FormatUint(index, 10)))),
		AccountId:       accountId,
		Index:           index,
		Isolated:        isolated,
		IsolatedAssetId: isolatedAssetId,
		DebtPrincipal:   decimal.Zero,
		LastAccrual:     clk.Now().Unix(),
		Status:          PositionStatusActive,
		Collateral:      nil,
		CreatedAt:       clk.Now().Unix(),
		LastUpdate:      clk.Now().Unix(),
	}
}

func (p *Position) Clone() *Position {
	cloned := *p
	cloned.Collateral = make([]CollateralEntry, len(p.Collateral))
	copy(cloned.Collateral, p.Collateral)
	return &cloned
}

func (p *Position) IsActive() bool {
	return p.Status == PositionStatusActive
}

// AssertActive rejects any mutation of a terminal position.
func (p *Position) AssertActive() error {
	if !p.IsActive() {
		return &InactivePositionError{AccountId: p.AccountId, Index: p.Index, Status: p.Status}
	}
	return nil
}

func (p *Position) CollateralAmount(assetId string) decimal.Decimal {
	for _, entry := range p.Collateral {
		if entry.AssetId == assetId {
			return entry.Amount
		}
	}
	return decimal.Zero
}

func (p *Position) CollateralAssets() []string {
	assets := make([]string, 0, len(p.Collateral))
	for _, entry := range p.Collateral {
		assets = append(assets, entry.AssetId)
	}
	return assets
}

// addCollateral increases an entry, appending on first supply.
func (p *Position) addCollateral(assetId string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	for i, entry := range p.Collateral {
		if entry.AssetId == assetId {
			p.Collateral[i].Amount = entry.Amount.Add(amount)
			return
		}
	}
	p.Collateral = append(p.Collateral, CollateralEntry{AssetId: assetId, Amount: amount})
}

// subCollateral decreases an entry, pruning it at zero.
func (p *Position) subCollateral(assetId string, amount decimal.Decimal) error {
	for i, entry := range p.Collateral {
		if entry.AssetId != assetId {
			continue
		}
		remaining := entry.Amount.Sub(amount)
		if remaining.IsNegative() {
			return ErrInsufficientBalance
		}
		if remaining.IsZero() {
			p.Collateral = append(p.Collateral[:i], p.Collateral[i+1:]...)
		} else {
			p.Collateral[i].Amount = remaining
		}
		return nil
	}
	return ErrInsufficientBalance
}

func (p *Position) hasDebt() bool {
	return p.DebtPrincipal.IsPositive()
}

// close marks the position terminal after a voluntary exit.
func (p *Position) close(clk clock.Clock) error {
	if p.hasDebt() {
		return ErrOutstandingDebt
	}
	p.Status = PositionStatusClosed
	p.Collateral = nil
	p.LastUpdate = clk.Now().Unix()
	return nil
}

// markLiquidated marks the position terminal after a liquidation.
func (p *Position) markLiquidated(clk clock.Clock) {
	p.Status = PositionStatusLiquidated
	p.DebtPrincipal = decimal.Zero
	p.Collateral = nil
	p.LastUpdate = clk.Now().Unix()
}
