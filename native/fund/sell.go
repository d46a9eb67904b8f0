package fund

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"basketfund/core/events"
)

// SellReceipt reports the outcome of a sell workflow.
type SellReceipt struct {
	WorkflowID     string   `json:"workflowId"`
	Account        string   `json:"account"`
	Tokens         *big.Int `json:"tokens"`
	Burned         *big.Int `json:"burned"`
	AdminFee       *big.Int `json:"adminFee"`
	FundFee        *big.Int `json:"fundFee"`
	Price          *big.Int `json:"price"`
	Payout         *big.Int `json:"payout"`
	DegradedQuotes int      `json:"degradedQuotes"`
}

// Sell redeems fund units for native currency. The fee shares move from
// the seller to the fee accounts first, then a pro-rata slice of every
// tracked asset is liquidated at the venue, the remainder is valued with
// a fresh quote fan-out over the pre-swap snapshot, and the seller's net
// share is burned against the implied price. Settlement withdraws the
// proceeds from the venue, unwraps them and pays the seller.
//
// A failed liquidation swap aborts before the burn; the fee shares have
// already moved and stay moved. Once the burn has happened settlement
// errors are reported but never rolled back: the snapshot refresh still
// runs and the receipt is returned alongside the error.
func (e *Engine) Sell(ctx context.Context, account string, tokens *big.Int) (*SellReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, fmt.Errorf("fund: account required")
	}
	if tokens == nil || tokens.Sign() <= 0 {
		return nil, ErrTokensRequired
	}
	balance, err := e.ledger.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(tokens) < 0 {
		return nil, ErrInsufficientBalance
	}

	workflowID := e.newID()
	started := e.now()
	tokens = cloneAmount(tokens)
	shares := splitFee(tokens)

	if shares.Admin.Sign() > 0 {
		if err := e.ledger.Transfer(account, e.identities.Admin, shares.Admin); err != nil {
			return nil, err
		}
	}
	if shares.Fund.Sign() > 0 {
		if err := e.ledger.Transfer(account, e.identities.Fund, shares.Fund); err != nil {
			return nil, err
		}
	}

	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	snap := e.snapshot.Clone()

	instructions := e.prorataInstructions(snap, shares.Recipient, supply)
	if len(instructions) > 0 {
		if _, err := e.exchange.Swap(ctx, instructions, e.referral); err != nil {
			e.record(ctx, WorkflowRecord{
				ID:         workflowID,
				Kind:       WorkflowSell,
				Account:    account,
				AmountIn:   cloneAmount(tokens),
				Status:     StatusFailed,
				Detail:     err.Error(),
				StartedAt:  started,
				FinishedAt: e.now(),
			})
			return nil, fmt.Errorf("fund: liquidation swap: %w", err)
		}
	}

	legs := e.quoteBasket(ctx, snap)
	totalValue, degraded := e.valueBasket(snap, legs)
	price := unitPrice(totalValue, supply)
	payout := nativeForTokens(shares.Recipient, price)

	if shares.Recipient.Sign() > 0 {
		if err := e.ledger.Withdraw(account, shares.Recipient); err != nil {
			return nil, err
		}
	}
	e.emitter.Emit(events.TokenBurned{
		Account:    account,
		Amount:     cloneAmount(shares.Recipient),
		Payout:     cloneAmount(payout),
		WorkflowID: workflowID,
	})
	e.logger.Info("fund units burned",
		"account", account, "tokens", tokens.String(),
		"burned", shares.Recipient.String(), "price", price.String(),
		"payout", payout.String(), "degradedQuotes", degraded,
		"workflowId", workflowID)

	receipt := &SellReceipt{
		WorkflowID:     workflowID,
		Account:        account,
		Tokens:         tokens,
		Burned:         shares.Recipient,
		AdminFee:       shares.Admin,
		FundFee:        shares.Fund,
		Price:          price,
		Payout:         payout,
		DegradedQuotes: degraded,
	}

	settleErr := e.settleSell(ctx, account, payout, workflowID)

	record := WorkflowRecord{
		ID:         workflowID,
		Kind:       WorkflowSell,
		Account:    account,
		AmountIn:   cloneAmount(tokens),
		AmountOut:  cloneAmount(payout),
		Status:     StatusCompleted,
		StartedAt:  started,
		FinishedAt: e.now(),
	}
	if settleErr != nil {
		record.Status = StatusFailed
		record.Detail = settleErr.Error()
	}
	e.record(ctx, record)
	if settleErr != nil {
		return receipt, settleErr
	}
	return receipt, nil
}

// settleSell moves the proceeds back to the seller: withdraw from the
// venue, unwrap, refresh the snapshot, pay. The refresh runs even when
// an earlier settlement step failed; the payment does not, since paying
// out funds the venue never released would drain the treasury.
func (e *Engine) settleSell(ctx context.Context, account string, payout *big.Int, workflowID string) error {
	var settleErr error
	if payout.Sign() > 0 {
		if err := e.exchange.Withdraw(ctx, e.basket.NativeToken, payout, false); err != nil {
			settleErr = fmt.Errorf("fund: venue withdraw: %w", err)
		} else if err := e.wrapper.Unwrap(ctx, payout); err != nil {
			settleErr = fmt.Errorf("fund: unwrap payout: %w", err)
		}
	}
	e.refreshSnapshotLocked(ctx, workflowID)
	if settleErr != nil {
		return settleErr
	}
	if payout.Sign() > 0 {
		if err := e.payer.Pay(ctx, account, payout); err != nil {
			return fmt.Errorf("fund: payout transfer: %w", err)
		}
	}
	return nil
}

// prorataInstructions builds one liquidation leg per tracked asset,
// sized as the seller's share of the cached balance. Slices that floor
// to zero produce no leg.
func (e *Engine) prorataInstructions(snap *Snapshot, share, supply *big.Int) []SwapInstruction {
	if supply.Sign() == 0 {
		return nil
	}
	instructions := make([]SwapInstruction, 0, len(e.basket.Assets))
	for i, asset := range e.basket.Assets {
		value := mulDiv(snap.Asset(i), share, supply)
		if value.Sign() == 0 {
			continue
		}
		instructions = append(instructions, SwapInstruction{
			PoolID:       asset.PoolID,
			AssetIn:      asset.TokenID,
			AmountIn:     value,
			AssetOut:     e.basket.NativeToken,
			MinAmountOut: big.NewInt(1),
		})
	}
	return instructions
}
