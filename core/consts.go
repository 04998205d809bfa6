package core

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	SECONDS_PER_YEAR = 31_536_000

	// Oracle answers older than this are rejected outright.
	DEFAULT_ORACLE_MAX_AGE = 8 * 60 * 60

	// Threshold values are expressed in permille of collateral value.
	THRESHOLD_SCALE = 1000

	BPS_SCALE = 10_000

	MAX_FLASH_LOAN_FEE_BPS = 500
)

var (
	ONE = decimal.NewFromInt(1)
	TWO = decimal.NewFromInt(2)

	// RAY is the internal high-precision scale, WAD the external-facing
	// one (also the smallest-unit scale of the liquidity asset).
	RAY      = decimal.New(1, 27)
	HALF_RAY = decimal.New(5, 26)
	WAD      = decimal.New(1, 6)
	HALF_WAD = decimal.New(5, 5)

	SECONDS_PER_YEAR_DEC = decimal.NewFromInt(SECONDS_PER_YEAR)
	THRESHOLD_SCALE_DEC  = decimal.NewFromInt(THRESHOLD_SCALE)
	BPS_SCALE_DEC        = decimal.NewFromInt(BPS_SCALE)

	// Health factor reported for positions with no debt.
	MaxHealthFactor = decimal.NewFromUint64(math.MaxUint64)
)
