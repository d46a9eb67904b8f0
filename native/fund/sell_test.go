package fund

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestSellFullPosition(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t, 100)
	rig.seedSnapshot(t, 100, 50, 30, 20)
	rig.exchange.setQuotes(50, 30, 20)

	receipt, err := rig.engine.Sell(context.Background(), testOwner, big.NewInt(100))
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	// 100 units split 98/1/1; the fee units move, the rest burns.
	if receipt.Burned.Cmp(big.NewInt(98)) != 0 {
		t.Fatalf("burned = %s, want 98", receipt.Burned)
	}
	if got := rig.balance(t, testOwner); got.Sign() != 0 {
		t.Fatalf("seller balance = %s, want 0", got)
	}
	if got := rig.balance(t, testAdmin); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("admin balance = %s, want 1", got)
	}
	if got := rig.balance(t, testFund); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("fund balance = %s, want 1", got)
	}
	if got := rig.supply(t); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("supply = %s, want 2", got)
	}
	// Price over the pre-swap snapshot: value 200 over supply 100.
	wantPrice := new(big.Int).Mul(big.NewInt(2), Precision)
	if receipt.Price.Cmp(wantPrice) != 0 {
		t.Fatalf("price = %s, want %s", receipt.Price, wantPrice)
	}
	if receipt.Payout.Cmp(big.NewInt(196)) != 0 {
		t.Fatalf("payout = %s, want 196", receipt.Payout)
	}
	if len(rig.exchange.withdrawals) != 1 || rig.exchange.withdrawals[0].Cmp(big.NewInt(196)) != 0 {
		t.Fatalf("withdrawals = %v, want one of 196", rig.exchange.withdrawals)
	}
	if len(rig.wrapper.unwrapped) != 1 || rig.wrapper.unwrapped[0].Cmp(big.NewInt(196)) != 0 {
		t.Fatalf("unwrapped = %v, want one of 196", rig.wrapper.unwrapped)
	}
	if len(rig.payer.payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(rig.payer.payments))
	}
	if rig.payer.payments[0].account != testOwner || rig.payer.payments[0].amount.Cmp(big.NewInt(196)) != 0 {
		t.Fatalf("payment = %+v, want 196 to %s", rig.payer.payments[0], testOwner)
	}
}

func TestSellProRataInstructions(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t, 100)
	rig.seedSnapshot(t, 100, 50, 30, 20)
	rig.exchange.setQuotes(50, 30, 20)

	if _, err := rig.engine.Sell(context.Background(), testOwner, big.NewInt(100)); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if len(rig.exchange.swaps) != 1 {
		t.Fatalf("swap batches = %d, want 1", len(rig.exchange.swaps))
	}
	legs := rig.exchange.swaps[0]
	// 98 units of 100 supply: 50->49, 30->29, 20->19, all floored.
	wantAmounts := []int64{49, 29, 19}
	if len(legs) != len(wantAmounts) {
		t.Fatalf("legs = %d, want %d", len(legs), len(wantAmounts))
	}
	for i, leg := range legs {
		if leg.AmountIn.Cmp(big.NewInt(wantAmounts[i])) != 0 {
			t.Fatalf("leg %d amount = %s, want %d", i, leg.AmountIn, wantAmounts[i])
		}
		if leg.AssetOut != "wrap.token" {
			t.Fatalf("leg %d out = %s, want wrap.token", i, leg.AssetOut)
		}
		if leg.MinAmountOut.Cmp(big.NewInt(1)) != 0 {
			t.Fatalf("leg %d min out = %s, want 1", i, leg.MinAmountOut)
		}
	}
}

func TestSellRejectsBadAmounts(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t, 100)

	if _, err := rig.engine.Sell(context.Background(), testOwner, new(big.Int)); err != ErrTokensRequired {
		t.Fatalf("zero: got %v, want ErrTokensRequired", err)
	}
	if _, err := rig.engine.Sell(context.Background(), testOwner, big.NewInt(101)); err != ErrInsufficientBalance {
		t.Fatalf("over balance: got %v, want ErrInsufficientBalance", err)
	}
	if _, err := rig.engine.Sell(context.Background(), testBuyer, big.NewInt(1)); err != ErrInsufficientBalance {
		t.Fatalf("stranger: got %v, want ErrInsufficientBalance", err)
	}
}

func TestSellSwapFailureAbortsBeforeBurn(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t, 100)
	rig.seedSnapshot(t, 100, 50, 30, 20)
	rig.exchange.swapErr = errors.New("venue rejected batch")

	_, err := rig.engine.Sell(context.Background(), testOwner, big.NewInt(100))
	if err == nil {
		t.Fatal("expected swap error")
	}
	// The fee shares moved before the swap and stay moved; the net
	// share was not burned.
	if got := rig.balance(t, testOwner); got.Cmp(big.NewInt(98)) != 0 {
		t.Fatalf("seller balance = %s, want 98", got)
	}
	if got := rig.balance(t, testAdmin); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("admin balance = %s, want 1", got)
	}
	if got := rig.supply(t); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s, want 100", got)
	}
	if len(rig.payer.payments) != 0 {
		t.Fatalf("payments = %d, want 0", len(rig.payer.payments))
	}
}

func TestSellWithdrawFailureSkipsPayout(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t, 100)
	rig.seedSnapshot(t, 100, 50, 30, 20)
	rig.exchange.setQuotes(50, 30, 20)
	rig.exchange.withdrawErr = errors.New("venue withdraw stuck")

	receipt, err := rig.engine.Sell(context.Background(), testOwner, big.NewInt(100))
	if err == nil {
		t.Fatal("expected settlement error")
	}
	if receipt == nil {
		t.Fatal("receipt missing on settlement failure")
	}
	// The burn stands even though the proceeds never left the venue.
	if got := rig.supply(t); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("supply = %s, want 2", got)
	}
	if len(rig.payer.payments) != 0 {
		t.Fatalf("payments = %d, want 0 after failed withdraw", len(rig.payer.payments))
	}
}

func TestSellEmptyBasketSkipsSwap(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t, 100)

	receipt, err := rig.engine.Sell(context.Background(), testOwner, big.NewInt(100))
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if len(rig.exchange.swaps) != 0 {
		t.Fatalf("swap batches = %d, want 0", len(rig.exchange.swaps))
	}
	// Empty basket values at zero, so the payout passes through the
	// burned amount unit for unit.
	if receipt.Payout.Cmp(big.NewInt(98)) != 0 {
		t.Fatalf("payout = %s, want 98", receipt.Payout)
	}
}

func TestBuySellRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t, 100)
	rig.seedSnapshot(t, 100, 50, 30, 20)
	rig.exchange.setQuotes(50, 30, 20)

	receipt, err := rig.engine.Buy(context.Background(), testBuyer, big.NewInt(1000))
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	// Basket value 200 over supply 100: 1000 native buys 500 units,
	// 490 of which reach the buyer.
	if receipt.Minted.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("minted = %s, want 500", receipt.Minted)
	}
	if receipt.Received.Cmp(big.NewInt(490)) != 0 {
		t.Fatalf("received = %s, want 490", receipt.Received)
	}

	// The deposit reached the venue, so the native pool grew by it;
	// with unchanged quotes the unit price holds at 2x the base.
	rig.exchange.setBalances(1100, 50, 30, 20)
	if _, err := rig.engine.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	sellReceipt, err := rig.engine.Sell(context.Background(), testBuyer, big.NewInt(490))
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	wantPrice := new(big.Int).Mul(big.NewInt(2), Precision)
	if sellReceipt.Price.Cmp(wantPrice) != 0 {
		t.Fatalf("sell price = %s, want %s", sellReceipt.Price, wantPrice)
	}
	// Selling the full minted position pays out the fee rate squared
	// of the original deposit, short only the flooring dust:
	// 98% of 500 minted, then 98% of 490 sold, 480 * 2 = 960.
	if sellReceipt.Payout.Cmp(big.NewInt(960)) != 0 {
		t.Fatalf("payout = %s, want 960", sellReceipt.Payout)
	}
	if len(rig.payer.payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(rig.payer.payments))
	}
	if rig.payer.payments[0].account != testBuyer || rig.payer.payments[0].amount.Cmp(big.NewInt(960)) != 0 {
		t.Fatalf("payment = %+v, want 960 to %s", rig.payer.payments[0], testBuyer)
	}
	// Only fee-flooring dust remains with the buyer.
	if got := rig.balance(t, testBuyer); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("buyer balance = %s, want 2", got)
	}
}
