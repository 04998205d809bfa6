package core

import (
	"context"

	"github.com/shopspring/decimal"
)

type (
	// PriceAdapter is the oracle gateway contract the core consumes. The
	// core never sources prices itself; it only validates what it is
	// handed: positive answer, round consistency, bounded staleness.
	PriceAdapter interface {
		GetPriceData(ctx context.Context, oracleId string) (*PriceData, error)
	}

	PriceData struct {
		Price           decimal.Decimal `json:"price"`
		UpdatedAt       int64           `json:"updatedAt"`
		RoundId         uint64          `json:"roundId"`
		AnsweredInRound uint64          `json:"answeredInRound"`
	}
)

// Validate enforces the oracle contract relative to the given time.
func (p *PriceData) Validate(oracleId string, now, maxAge int64) error {
	if !p.Price.IsPositive() {
		return &OracleInvalidPriceError{OracleId: oracleId, Price: p.Price}
	}
	if p.AnsweredInRound < p.RoundId {
		return &OracleStalePriceError{OracleId: oracleId, RoundId: p.RoundId, AnsweredInRound: p.AnsweredInRound}
	}
	if now-p.UpdatedAt > maxAge {
		return &OracleTimeoutError{OracleId: oracleId, PriceTimestamp: p.UpdatedAt, Now: now, MaxAge: maxAge}
	}
	return nil
}
