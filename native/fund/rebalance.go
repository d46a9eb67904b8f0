package fund

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"basketfund/core/events"
)

// RebalanceReceipt reports the outcome of a rebalance workflow.
type RebalanceReceipt struct {
	WorkflowID string   `json:"workflowId"`
	Weights    Weights  `json:"weights"`
	Liquidated int      `json:"liquidated"`
	Allocated  int      `json:"allocated"`
	NativePool *big.Int `json:"nativePool"`
}

// Rebalance retargets the portfolio to the given parts-per-thousand
// weights. Phase one liquidates every tracked asset with a nonzero
// cached balance into the native token. The pooled native deposit is
// then read back from the venue and phase two buys each asset up to
// weight[i+1]/1000 of that pool; weight[0] stays in the native slot.
// A full snapshot refresh closes the run. Owner-only.
func (e *Engine) Rebalance(ctx context.Context, caller string, weights Weights) (*RebalanceReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(caller), e.identities.Owner) {
		return nil, ErrNotOwner
	}
	if err := weights.Validate(len(e.basket.Assets)); err != nil {
		return nil, err
	}

	workflowID := e.newID()
	started := e.now()
	snap := e.snapshot.Clone()

	liquidations := make([]SwapInstruction, 0, len(e.basket.Assets))
	for i, asset := range e.basket.Assets {
		balance := snap.Asset(i)
		if balance.Sign() == 0 {
			continue
		}
		liquidations = append(liquidations, SwapInstruction{
			PoolID:       asset.PoolID,
			AssetIn:      asset.TokenID,
			AmountIn:     balance,
			AssetOut:     e.basket.NativeToken,
			MinAmountOut: big.NewInt(1),
		})
	}
	if len(liquidations) > 0 {
		if _, err := e.exchange.Swap(ctx, liquidations, e.referral); err != nil {
			e.recordRebalance(ctx, workflowID, started, StatusFailed, err.Error())
			return nil, fmt.Errorf("fund: liquidation swap: %w", err)
		}
	}

	// The allocation is sized off the pooled native deposit alone, so
	// that is the only balance read mid-workflow; the closing refresh
	// re-reads every position.
	nativePool, err := e.exchange.DepositBalance(ctx, e.venueAccount, e.basket.NativeToken)
	if err != nil {
		e.recordRebalance(ctx, workflowID, started, StatusFailed, err.Error())
		return nil, fmt.Errorf("fund: native deposit query: %w", err)
	}
	nativePool = cloneAmount(nativePool)

	allocations := make([]SwapInstruction, 0, len(e.basket.Assets))
	for i, asset := range e.basket.Assets {
		value := mulDiv(nativePool, new(big.Int).SetUint64(weights[i+1]), weightScaleInt)
		if value.Sign() == 0 {
			continue
		}
		allocations = append(allocations, SwapInstruction{
			PoolID:       asset.PoolID,
			AssetIn:      e.basket.NativeToken,
			AmountIn:     value,
			AssetOut:     asset.TokenID,
			MinAmountOut: big.NewInt(1),
		})
	}

	var allocErr error
	if len(allocations) > 0 {
		if _, err := e.exchange.Swap(ctx, allocations, e.referral); err != nil {
			allocErr = fmt.Errorf("fund: allocation swap: %w", err)
		}
	}
	e.refreshSnapshotLocked(ctx, workflowID)

	if allocErr != nil {
		e.recordRebalance(ctx, workflowID, started, StatusFailed, allocErr.Error())
		return nil, allocErr
	}
	e.emitter.Emit(events.PortfolioRebalanced{
		Liquidated: len(liquidations),
		Allocated:  len(allocations),
		WorkflowID: workflowID,
	})
	e.logger.Info("portfolio rebalanced",
		"liquidated", len(liquidations), "allocated", len(allocations),
		"nativePool", nativePool.String(), "workflowId", workflowID)
	e.recordRebalance(ctx, workflowID, started, StatusCompleted, "")
	return &RebalanceReceipt{
		WorkflowID: workflowID,
		Weights:    weights,
		Liquidated: len(liquidations),
		Allocated:  len(allocations),
		NativePool: nativePool,
	}, nil
}

func (e *Engine) recordRebalance(ctx context.Context, workflowID string, started time.Time, status, detail string) {
	e.record(ctx, WorkflowRecord{
		ID:         workflowID,
		Kind:       WorkflowRebalance,
		Status:     status,
		Detail:     detail,
		StartedAt:  started,
		FinishedAt: e.now(),
	})
}
