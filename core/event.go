package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	EventStore interface {
		CreateEvent(ctx context.Context, event *Event) error
		ListEvents(ctx context.Context, accountId uuid.UUID, limit int64) ([]*Event, error)
	}

	// Event is the notification record appended once per state change.
	Event struct {
		Id        uuid.UUID `json:"id"`
		Type      EventType `json:"type"`
		AccountId uuid.UUID `json:"accountId"`

		PositionIndex uint64          `json:"positionIndex,omitempty"`
		AssetId       string          `json:"assetId,omitempty"`
		Amount        decimal.Decimal `json:"amount,omitempty"`
		Detail        string          `json:"detail,omitempty"`

		CreatedAt int64 `json:"createdAt"`
	}
)

type EventType uint8

const (
	EventPositionCreated EventType = iota + 1
	EventCollateralSupplied
	EventCollateralWithdrawn
	EventBorrow
	EventRepay
	EventPositionClosed
	EventPositionLiquidated
	EventFlashLoan
	EventLiquiditySupplied
	EventLiquidityExchanged
	EventParameterUpdated
	EventPaused
	EventUnpaused
)

func (t EventType) String() string {
	switch t {
	case EventPositionCreated:
		return "PositionCreated"
	case EventCollateralSupplied:
		return "CollateralSupplied"
	case EventCollateralWithdrawn:
		return "CollateralWithdrawn"
	case EventBorrow:
		return "Borrow"
	case EventRepay:
		return "Repay"
	case EventPositionClosed:
		return "PositionClosed"
	case EventPositionLiquidated:
		return "PositionLiquidated"
	case EventFlashLoan:
		return "FlashLoan"
	case EventLiquiditySupplied:
		return "LiquiditySupplied"
	case EventLiquidityExchanged:
		return "LiquidityExchanged"
	case EventParameterUpdated:
		return "ParameterUpdated"
	case EventPaused:
		return "Paused"
	case EventUnpaused:
		return "Unpaused"
	default:
		return "Unknown"
	}
}

func NewEvent(clk clock.Clock, typ EventType, accountId uuid.UUID) *Event {
	return &Event{
		Id:        uuid.Must(uuid.NewV4()),
		Type:      typ,
		AccountId: accountId,
		Amount:    decimal.Zero,
		CreatedAt: clk.Now().Unix(),
	}
}
