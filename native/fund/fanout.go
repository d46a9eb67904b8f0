package fund

import (
	"context"
	"math/big"
	"sync"
)

// quoteLeg is one asset valuation returned from the quote fan-out.
type quoteLeg struct {
	index int
	value *big.Int
	err   error
}

// balanceLeg is one deposit balance returned from the balance fan-out.
type balanceLeg struct {
	index   int
	balance *big.Int
	err     error
}

// quoteBasket values each tracked asset in native terms concurrently.
// Positions with a zero cached balance contribute nothing, so their
// venue call is skipped and the leg reports zero. All legs are joined
// before returning so results line up positionally with the basket.
func (e *Engine) quoteBasket(ctx context.Context, snap *Snapshot) []quoteLeg {
	legs := make([]quoteLeg, len(e.basket.Assets))
	var wg sync.WaitGroup
	for i, asset := range e.basket.Assets {
		balance := snap.Asset(i)
		if balance.Sign() == 0 {
			legs[i] = quoteLeg{index: i, value: new(big.Int)}
			continue
		}
		amount := cloneAmount(balance)
		wg.Add(1)
		go func(i int, asset Asset, amount *big.Int) {
			defer wg.Done()
			value, err := e.exchange.Quote(ctx, asset.PoolID, asset.TokenID, amount, e.basket.NativeToken)
			if err != nil {
				legs[i] = quoteLeg{index: i, err: err}
				return
			}
			legs[i] = quoteLeg{index: i, value: value}
		}(i, asset, amount)
	}
	wg.Wait()
	return legs
}

// valueBasket folds joined quote legs with the cached native balance into
// the total basket value. Failed legs contribute zero and are counted so
// callers can surface the degradation.
func (e *Engine) valueBasket(snap *Snapshot, legs []quoteLeg) (*big.Int, int) {
	total := cloneAmount(snap.Native())
	failed := 0
	for _, leg := range legs {
		if leg.err != nil {
			failed++
			e.logger.Warn("quote leg failed",
				"asset", e.basket.Assets[leg.index].TokenID, "err", leg.err)
			continue
		}
		if leg.value != nil {
			total.Add(total, leg.value)
		}
	}
	return total, failed
}

// depositBalances reads every venue deposit balance concurrently, one leg
// per basket position including the native wrap, and joins before
// returning.
func (e *Engine) depositBalances(ctx context.Context) []balanceLeg {
	positions := e.basket.Positions()
	legs := make([]balanceLeg, positions)
	var wg sync.WaitGroup
	for i := 0; i < positions; i++ {
		asset := e.basket.NativeToken
		if i > 0 {
			asset = e.basket.Assets[i-1].TokenID
		}
		wg.Add(1)
		go func(i int, asset string) {
			defer wg.Done()
			balance, err := e.exchange.DepositBalance(ctx, e.venueAccount, asset)
			if err != nil {
				legs[i] = balanceLeg{index: i, err: err}
				return
			}
			legs[i] = balanceLeg{index: i, balance: balance}
		}(i, asset)
	}
	wg.Wait()
	return legs
}
