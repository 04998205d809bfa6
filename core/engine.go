package core

import (
	"context"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	// ProtocolParams is the explicit configuration aggregate owned by the
	// engine. Tests construct independent engines with distinct params.
	ProtocolParams struct {
		LiquidityAssetId  string `json:"liquidityAssetId"`
		GovernanceAssetId string `json:"governanceAssetId"`

		FlashLoanFeeBps int64 `json:"flashLoanFeeBps"`

		// Annual fractions.
		BaseBorrowRate   decimal.Decimal `json:"baseBorrowRate"`
		BaseProfitTarget decimal.Decimal `json:"baseProfitTarget"`

		// Jump-rate model: above OptimalUtilization the marginal rate
		// steepens by JumpMultiplier per unit of excess utilization.
		OptimalUtilization decimal.Decimal `json:"optimalUtilization"`
		JumpMultiplier     decimal.Decimal `json:"jumpMultiplier"`

		RewardInterval   int64           `json:"rewardInterval"`
		RewardableSupply decimal.Decimal `json:"rewardableSupply"`
		TargetReward     decimal.Decimal `json:"targetReward"`
		MaxReward        decimal.Decimal `json:"maxReward"`

		LiquidatorStakeThreshold decimal.Decimal `json:"liquidatorStakeThreshold"`

		OracleMaxAge int64 `json:"oracleMaxAge"`
	}

	// ProtocolState carries the aggregates every mutating action touches.
	// TotalSupplied is the LP-owned protocol value: it grows with accrued
	// interest and flash-loan fees, never from price movement.
	ProtocolState struct {
		TotalSupplied decimal.Decimal
		TotalBorrow   decimal.Decimal
		Vault         decimal.Decimal
		TotalShares   decimal.Decimal

		FlashLoanFeeRevenue decimal.Decimal

		// Per-asset total collateral held by the protocol.
		TotalCollateral map[string]decimal.Decimal
	}

	Stores struct {
		Assets    AssetStore
		Positions PositionStore
		Balances  BalanceStore
		Holders   ShareStore
		Events    EventStore
	}

	// Engine is the accounting and risk core. Every public operation runs
	// under one mutex: a single, globally serialized, atomic transaction
	// against shared ledger state.
	Engine struct {
		mu sync.Mutex

		clk    clock.Clock
		log    Log
		prices PriceAdapter

		assets    AssetStore
		positions PositionStore
		balances  BalanceStore
		holders   ShareStore
		events    EventStore

		admin     uuid.UUID
		params    ProtocolParams
		tierRates [TierCount]TierRates
		state     ProtocolState

		paused      bool
		inFlashLoan bool
	}
)

func (p *ProtocolParams) Validate() error {
	if p.LiquidityAssetId == "" || p.GovernanceAssetId == "" {
		return ErrInvalidConfig
	}
	if p.FlashLoanFeeBps < 0 || p.FlashLoanFeeBps > MAX_FLASH_LOAN_FEE_BPS {
		return ErrInvalidConfig
	}
	if p.BaseBorrowRate.IsNegative() || p.BaseProfitTarget.IsNegative() || p.JumpMultiplier.IsNegative() {
		return ErrNegativeRate
	}
	if p.OptimalUtilization.IsNegative() || p.OptimalUtilization.GreaterThan(ONE) {
		return ErrInvalidConfig
	}
	if p.RewardInterval <= 0 {
		return ErrInvalidConfig
	}
	if p.RewardableSupply.IsNegative() || p.TargetReward.IsNegative() || p.MaxReward.IsNegative() {
		return ErrInvalidConfig
	}
	if p.LiquidatorStakeThreshold.IsNegative() {
		return ErrInvalidConfig
	}
	if p.OracleMaxAge <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

type EngineOption func(e *Engine)

func WithClock(clk clock.Clock) EngineOption {
	return func(e *Engine) { e.clk = clk }
}

func WithLog(log Log) EngineOption {
	return func(e *Engine) { e.log = log }
}

func NewEngine(stores Stores, prices PriceAdapter, admin uuid.UUID, params ProtocolParams, opts ...EngineOption) (*Engine, error) {
	if params.OracleMaxAge == 0 {
		params.OracleMaxAge = DEFAULT_ORACLE_MAX_AGE
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	nop := zerolog.Nop()
	e := &Engine{
		clk:       clock.New(),
		log:       &nop,
		prices:    prices,
		assets:    stores.Assets,
		positions: stores.Positions,
		balances:  stores.Balances,
		holders:   stores.Holders,
		events:    stores.Events,
		admin:     admin,
		params:    params,
		state: ProtocolState{
			TotalSupplied:       decimal.Zero,
			TotalBorrow:         decimal.Zero,
			Vault:               decimal.Zero,
			TotalShares:         decimal.Zero,
			FlashLoanFeeRevenue: decimal.Zero,
			TotalCollateral:     make(map[string]decimal.Decimal),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ------------ guards

func (e *Engine) requireAdmin(caller uuid.UUID) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) requireRunning() error {
	if e.paused {
		return ErrEnforcedPause
	}
	if e.inFlashLoan {
		return ErrReentrancy
	}
	return nil
}

// ------------ pause

func (e *Engine) Pause(ctx context.Context, caller uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if e.paused {
		return ErrEnforcedPause
	}
	e.paused = true
	return e.emit(ctx, NewEvent(e.clk, EventPaused, caller))
}

func (e *Engine) Unpause(ctx context.Context, caller uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !e.paused {
		return ErrExpectedPause
	}
	e.paused = false
	return e.emit(ctx, NewEvent(e.clk, EventUnpaused, caller))
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// ------------ token ledger helpers

func (e *Engine) balanceOf(ctx context.Context, accountId uuid.UUID, assetId string) (decimal.Decimal, error) {
	balance, err := e.balances.GetBalance(ctx, accountId, assetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return balance, nil
}

func (e *Engine) credit(ctx context.Context, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	balance, err := e.balanceOf(ctx, accountId, assetId)
	if err != nil {
		return err
	}
	return e.balances.SetBalance(ctx, accountId, assetId, balance.Add(amount))
}

func (e *Engine) debit(ctx context.Context, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	balance, err := e.balanceOf(ctx, accountId, assetId)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return e.balances.SetBalance(ctx, accountId, assetId, balance.Sub(amount))
}

// checkDebit verifies a debit would succeed without performing it, so
// operations can front-load every check before the first write.
func (e *Engine) checkDebit(ctx context.Context, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	balance, err := e.balanceOf(ctx, accountId, assetId)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return nil
}

// Mint credits an account's token balance. Admin surface used to fund
// accounts (and governance stakes) in tests and operations tooling.
func (e *Engine) Mint(ctx context.Context, caller, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidConfig
	}
	return e.credit(ctx, accountId, assetId, amount)
}

// BalanceOf is the read-only token balance view.
func (e *Engine) BalanceOf(ctx context.Context, accountId uuid.UUID, assetId string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balanceOf(ctx, accountId, assetId)
}

// GovernanceStake is the caller's stake in the governance asset.
func (e *Engine) GovernanceStake(ctx context.Context, accountId uuid.UUID) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balanceOf(ctx, accountId, e.params.GovernanceAssetId)
}

// ------------ position lookup

func (e *Engine) loadPosition(ctx context.Context, accountId uuid.UUID, index uint64) (*Position, error) {
	position, err := e.positions.GetPosition(ctx, accountId, index)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &InvalidPositionError{AccountId: accountId, Index: index}
		}
		return nil, err
	}
	return position, nil
}

func (e *Engine) loadListedAsset(ctx context.Context, assetId string) (*AssetConfig, error) {
	config, err := e.assets.GetAsset(ctx, assetId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrAssetNotListed, assetId)
		}
		return nil, err
	}
	if !config.Listed() {
		return nil, errors.Wrap(ErrAssetNotListed, assetId)
	}
	return config, nil
}

// ------------ events

func (e *Engine) emit(ctx context.Context, event *Event) error {
	if err := e.events.CreateEvent(ctx, event); err != nil {
		return errors.Wrap(err, "emit event")
	}
	e.log.Debug().Str("event", event.Type.String()).Str("account", event.AccountId.String()).Msg("event emitted")
	return nil
}

func (e *Engine) totalCollateral(assetId string) decimal.Decimal {
	if tvl, ok := e.state.TotalCollateral[assetId]; ok {
		return tvl
	}
	return decimal.Zero
}

// Clone stages the aggregates for one operation. Mutating entry points
// work on the staged copy and commit it only after every check passed, so
// an aborted operation leaves no partial state.
func (s *ProtocolState) Clone() *ProtocolState {
	cloned := *s
	cloned.TotalCollateral = make(map[string]decimal.Decimal, len(s.TotalCollateral))
	for assetId, tvl := range s.TotalCollateral {
		cloned.TotalCollateral[assetId] = tvl
	}
	return &cloned
}
