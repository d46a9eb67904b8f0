package events

import (
	"math/big"
	"strconv"
	"strings"

	"basketfund/core/types"
)

const (
	// TypeTokenMinted is emitted whenever new fund units enter circulation.
	TypeTokenMinted = "fund.token.minted"
	// TypeTokenBurned is emitted when previously issued units are removed.
	TypeTokenBurned = "fund.token.burned"
	// TypeSnapshotRefreshed marks a completed deposit-balance refresh pass.
	TypeSnapshotRefreshed = "fund.snapshot.refreshed"
	// TypePortfolioRebalanced marks a completed two-phase rebalance run.
	TypePortfolioRebalanced = "fund.portfolio.rebalanced"
)

// TokenMinted carries the account credited and the gross amount issued.
type TokenMinted struct {
	Account    string
	Amount     *big.Int
	Price      *big.Int
	WorkflowID string
}

func (TokenMinted) EventType() string { return TypeTokenMinted }

// Event converts the payload into its wire representation.
func (e TokenMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMinted,
		Attributes: map[string]string{
			"account":    strings.TrimSpace(e.Account),
			"amount":     amountString(e.Amount),
			"price":      amountString(e.Price),
			"workflowId": e.WorkflowID,
		},
	}
}

// TokenBurned carries the account debited and the gross amount removed.
type TokenBurned struct {
	Account    string
	Amount     *big.Int
	Payout     *big.Int
	WorkflowID string
}

func (TokenBurned) EventType() string { return TypeTokenBurned }

// Event converts the payload into its wire representation.
func (e TokenBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenBurned,
		Attributes: map[string]string{
			"account":    strings.TrimSpace(e.Account),
			"amount":     amountString(e.Amount),
			"payout":     amountString(e.Payout),
			"workflowId": e.WorkflowID,
		},
	}
}

// SnapshotRefreshed reports how many balance queries landed.
type SnapshotRefreshed struct {
	Updated    int
	Failed     int
	WorkflowID string
}

func (SnapshotRefreshed) EventType() string { return TypeSnapshotRefreshed }

// Event converts the payload into its wire representation.
func (e SnapshotRefreshed) Event() *types.Event {
	return &types.Event{
		Type: TypeSnapshotRefreshed,
		Attributes: map[string]string{
			"updated":    strconv.Itoa(e.Updated),
			"failed":     strconv.Itoa(e.Failed),
			"workflowId": e.WorkflowID,
		},
	}
}

// PortfolioRebalanced reports the outcome of a rebalance run.
type PortfolioRebalanced struct {
	Liquidated int
	Allocated  int
	WorkflowID string
}

func (PortfolioRebalanced) EventType() string { return TypePortfolioRebalanced }

// Event converts the payload into its wire representation.
func (e PortfolioRebalanced) Event() *types.Event {
	return &types.Event{
		Type: TypePortfolioRebalanced,
		Attributes: map[string]string{
			"liquidated": strconv.Itoa(e.Liquidated),
			"allocated":  strconv.Itoa(e.Allocated),
			"workflowId": e.WorkflowID,
		},
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
