package core

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Every condition the engine can reject with is a distinct identity so
// callers can match with errors.Is / errors.As and react programmatically.
var (
	ErrUnauthorized  = errors.New("caller is not authorized")
	ErrEnforcedPause = errors.New("protocol is paused")
	ErrExpectedPause = errors.New("protocol is not paused")

	ErrInvalidConfig          = errors.New("invalid asset config")
	ErrAssetNotListed         = errors.New("asset not listed")
	ErrAssetDisabled          = errors.New("asset disabled")
	ErrIsolationModeRequired  = errors.New("asset requires an isolated position")
	ErrIsolatedCollateralOnly = errors.New("isolated position accepts a single collateral asset")

	ErrInvalidPosition  = errors.New("position does not exist")
	ErrInactivePosition = errors.New("position is closed or liquidated")

	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidBorrowAmount     = errors.New("invalid borrow amount")
	ErrInsufficientCollateral  = errors.New("insufficient collateral")
	ErrIsolationDebtCapReached = errors.New("isolation debt cap reached")
	ErrOutstandingDebt         = errors.New("position has outstanding debt")
	ErrPositionNotUnhealthy    = errors.New("position is not liquidatable")
	ErrInsufficientStake       = errors.New("liquidator stake below threshold")

	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientLiquidity = errors.New("insufficient protocol liquidity")
	ErrNoSharesOutstanding   = errors.New("no LP shares outstanding")

	ErrDivisionByZero = errors.New("division by zero")
	ErrNegativeRate   = errors.New("negative interest rate")

	ErrOracleInvalidPrice = errors.New("oracle returned a non-positive price")
	ErrOracleStalePrice   = errors.New("oracle round is stale")
	ErrOracleTimeout      = errors.New("oracle price is too old")

	ErrFlashLoanFailed           = errors.New("flash loan receiver reported failure")
	ErrFlashLoanFundsNotReturned = errors.New("flash loan funds not returned")
	ErrFlashLoanLiquidity        = errors.New("insufficient flash loan liquidity")
	ErrOnlyLiquidityAsset        = errors.New("only the liquidity asset can be flash loaned")
	ErrReentrancy                = errors.New("operation already in progress")

	ErrFeeTooHigh = errors.New("fee above maximum")
)

type InvalidPositionError struct {
	AccountId uuid.UUID
	Index     uint64
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("position %s/%d does not exist", e.AccountId, e.Index)
}

func (e *InvalidPositionError) Unwrap() error { return ErrInvalidPosition }

type InactivePositionError struct {
	AccountId uuid.UUID
	Index     uint64
	Status    PositionStatus
}

func (e *InactivePositionError) Error() string {
	return fmt.Sprintf("position %s/%d is %s", e.AccountId, e.Index, e.Status)
}

func (e *InactivePositionError) Unwrap() error { return ErrInactivePosition }

type SupplyCapExceededError struct {
	AssetId   string
	Attempted decimal.Decimal
	Cap       decimal.Decimal
}

func (e *SupplyCapExceededError) Error() string {
	return fmt.Sprintf("supply cap exceeded for %s: attempted %s, cap %s", e.AssetId, e.Attempted, e.Cap)
}

type OracleInvalidPriceError struct {
	OracleId string
	Price    decimal.Decimal
}

func (e *OracleInvalidPriceError) Error() string {
	return fmt.Sprintf("oracle %s returned invalid price %s", e.OracleId, e.Price)
}

func (e *OracleInvalidPriceError) Unwrap() error { return ErrOracleInvalidPrice }

type OracleStalePriceError struct {
	OracleId        string
	RoundId         uint64
	AnsweredInRound uint64
}

func (e *OracleStalePriceError) Error() string {
	return fmt.Sprintf("oracle %s answered round %d behind latest round %d", e.OracleId, e.AnsweredInRound, e.RoundId)
}

func (e *OracleStalePriceError) Unwrap() error { return ErrOracleStalePrice }

type OracleTimeoutError struct {
	OracleId       string
	PriceTimestamp int64
	Now            int64
	MaxAge         int64
}

func (e *OracleTimeoutError) Error() string {
	return fmt.Sprintf("oracle %s price from %d is older than %ds at %d", e.OracleId, e.PriceTimestamp, e.MaxAge, e.Now)
}

func (e *OracleTimeoutError) Unwrap() error { return ErrOracleTimeout }

type OnlyLiquidityAssetError struct {
	AssetId string
}

func (e *OnlyLiquidityAssetError) Error() string {
	return fmt.Sprintf("asset %s is not the flash loan liquidity asset", e.AssetId)
}

func (e *OnlyLiquidityAssetError) Unwrap() error { return ErrOnlyLiquidityAsset }

type InsufficientFlashLoanLiquidityError struct {
	AssetId   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFlashLoanLiquidityError) Error() string {
	return fmt.Sprintf("flash loan of %s %s exceeds available %s", e.Requested, e.AssetId, e.Available)
}

func (e *InsufficientFlashLoanLiquidityError) Unwrap() error { return ErrFlashLoanLiquidity }

type FlashLoanFundsNotReturnedError struct {
	Required decimal.Decimal
	Actual   decimal.Decimal
}

func (e *FlashLoanFundsNotReturnedError) Error() string {
	return fmt.Sprintf("flash loan settlement short: required %s, actual %s", e.Required, e.Actual)
}

func (e *FlashLoanFundsNotReturnedError) Unwrap() error { return ErrFlashLoanFundsNotReturned }

type FeeTooHighError struct {
	Attempted int64
	Max       int64
}

func (e *FeeTooHighError) Error() string {
	return fmt.Sprintf("fee %d bps above maximum %d bps", e.Attempted, e.Max)
}

func (e *FeeTooHighError) Unwrap() error { return ErrFeeTooHigh }
