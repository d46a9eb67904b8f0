package fund

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"basketfund/core/events"
)

// BuyReceipt reports the outcome of a buy workflow.
type BuyReceipt struct {
	WorkflowID     string   `json:"workflowId"`
	Account        string   `json:"account"`
	Deposit        *big.Int `json:"deposit"`
	Price          *big.Int `json:"price"`
	Minted         *big.Int `json:"minted"`
	Received       *big.Int `json:"received"`
	AdminFee       *big.Int `json:"adminFee"`
	FundFee        *big.Int `json:"fundFee"`
	DegradedQuotes int      `json:"degradedQuotes"`
}

// Buy exchanges a native deposit for newly minted fund units. The basket
// is valued with a parallel quote fan-out over the cached snapshot, the
// deposit is priced at the implied unit price, and the minted amount is
// split between the buyer and the two fee accounts. The deposit is then
// wrapped and forwarded to the venue and the snapshot refreshed.
//
// Units are minted before settlement. If forwarding the deposit fails
// the mint stands: the receipt is returned alongside the error and the
// snapshot refresh still runs.
func (e *Engine) Buy(ctx context.Context, account string, deposit *big.Int) (*BuyReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, fmt.Errorf("fund: account required")
	}
	if deposit == nil || deposit.Sign() <= 0 {
		return nil, ErrDepositRequired
	}
	if err := e.ledger.EnsureRegistered(account); err != nil {
		return nil, err
	}

	workflowID := e.newID()
	started := e.now()
	deposit = cloneAmount(deposit)

	snap := e.snapshot.Clone()
	legs := e.quoteBasket(ctx, snap)
	totalValue, degraded := e.valueBasket(snap, legs)

	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	price := unitPrice(totalValue, supply)
	minted := tokensForDeposit(deposit, price)
	shares := splitFee(minted)

	if err := e.mintShares(account, shares); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.TokenMinted{
		Account:    account,
		Amount:     cloneAmount(minted),
		Price:      cloneAmount(price),
		WorkflowID: workflowID,
	})
	e.logger.Info("fund units minted",
		"account", account, "deposit", deposit.String(),
		"price", price.String(), "minted", minted.String(),
		"degradedQuotes", degraded, "workflowId", workflowID)

	receipt := &BuyReceipt{
		WorkflowID:     workflowID,
		Account:        account,
		Deposit:        deposit,
		Price:          price,
		Minted:         minted,
		Received:       shares.Recipient,
		AdminFee:       shares.Admin,
		FundFee:        shares.Fund,
		DegradedQuotes: degraded,
	}

	settleErr := e.settleBuy(ctx, deposit)
	e.refreshSnapshotLocked(ctx, workflowID)

	record := WorkflowRecord{
		ID:         workflowID,
		Kind:       WorkflowBuy,
		Account:    account,
		AmountIn:   cloneAmount(deposit),
		AmountOut:  cloneAmount(minted),
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

func (e *Engine) settleBuy(ctx context.Context, deposit *big.Int) error {
	if err := e.wrapper.Wrap(ctx, deposit); err != nil {
		return fmt.Errorf("fund: wrap deposit: %w", err)
	}
	if err := e.exchange.TransferCall(ctx, e.venueAccount, e.basket.NativeToken, deposit, ""); err != nil {
		return fmt.Errorf("fund: forward deposit: %w", err)
	}
	return nil
}

// mintShares credits the three fee-split shares, skipping any that
// floored to zero.
func (e *Engine) mintShares(account string, shares feeShares) error {
	if shares.Recipient.Sign() > 0 {
		if err := e.ledger.Deposit(account, shares.Recipient); err != nil {
			return err
		}
	}
	if shares.Admin.Sign() > 0 {
		if err := e.ledger.Deposit(e.identities.Admin, shares.Admin); err != nil {
			return err
		}
	}
	if shares.Fund.Sign() > 0 {
		if err := e.ledger.Deposit(e.identities.Fund, shares.Fund); err != nil {
			return err
		}
	}
	return nil
}
