package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// FlashLoanReceiver is the callback the engine invokes synchronously with
// the borrowed funds already credited. Settlement is pull-based: after the
// callback returns, the engine collects amount plus fee from the
// receiver's balance.
type FlashLoanReceiver interface {
	OnFlashLoan(ctx context.Context, assetId string, amount, fee decimal.Decimal, data []byte) error
}

// FlashLoan lends the liquidity asset for the duration of one callback.
// The reentrancy flag stays set across the callback: nested mutating entry
// points fail instead of interleaving, while read-only queries stay
// available. Any failure reverts the payout entirely.
func (e *Engine) FlashLoan(ctx context.Context, receiverId uuid.UUID, receiver FlashLoanReceiver, assetId string, amount decimal.Decimal, data []byte) error {
	e.mu.Lock()

	if err := e.requireRunning(); err != nil {
		e.mu.Unlock()
		return err
	}
	if assetId != e.params.LiquidityAssetId {
		e.mu.Unlock()
		return &OnlyLiquidityAssetError{AssetId: assetId}
	}
	if !amount.IsPositive() {
		e.mu.Unlock()
		return ErrInvalidAmount
	}
	if amount.GreaterThan(e.state.Vault) {
		available := e.state.Vault
		e.mu.Unlock()
		return &InsufficientFlashLoanLiquidityError{AssetId: assetId, Requested: amount, Available: available}
	}

	fee := amount.Mul(decimal.NewFromInt(e.params.FlashLoanFeeBps)).Div(BPS_SCALE_DEC).Floor()
	preBalance := e.state.Vault

	if err := e.credit(ctx, receiverId, assetId, amount); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Vault = e.state.Vault.Sub(amount)
	e.inFlashLoan = true
	e.mu.Unlock()

	callbackErr := receiver.OnFlashLoan(ctx, assetId, amount, fee, data)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlashLoan = false

	revert := func() error {
		if err := e.debit(ctx, receiverId, assetId, amount); err != nil {
			return err
		}
		e.state.Vault = preBalance
		return nil
	}

	if callbackErr != nil {
		if err := revert(); err != nil {
			return err
		}
		return errors.Wrap(ErrFlashLoanFailed, callbackErr.Error())
	}

	required := amount.Add(fee)
	balance, err := e.balanceOf(ctx, receiverId, assetId)
	if err != nil {
		return err
	}
	if balance.LessThan(required) {
		actual := e.state.Vault.Add(balance)
		if err := revert(); err != nil {
			return err
		}
		return &FlashLoanFundsNotReturnedError{Required: preBalance.Add(fee), Actual: actual}
	}

	if err := e.debit(ctx, receiverId, assetId, required); err != nil {
		return err
	}
	e.state.Vault = e.state.Vault.Add(required)
	e.state.TotalSupplied = e.state.TotalSupplied.Add(fee)
	e.state.FlashLoanFeeRevenue = e.state.FlashLoanFeeRevenue.Add(fee)

	e.log.Info().
		Str("receiver", receiverId.String()).
		Str("amount", amount.String()).
		Str("fee", fee.String()).
		Msg("flash loan settled")

	event := NewEvent(e.clk, EventFlashLoan, receiverId)
	event.AssetId = assetId
	event.Amount = amount
	event.Detail = "fee:" + fee.String()
	return e.emit(ctx, event)
}
