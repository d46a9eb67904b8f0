package fund

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrWeightLength indicates a target weight vector of the wrong size.
	ErrWeightLength = errors.New("fund: weight vector must cover native plus every tracked asset")
	// ErrWeightSum indicates the weights do not sum to the weight scale.
	ErrWeightSum = errors.New("fund: weights must sum to exactly 1000")
)

// Asset identifies one tracked basket position at the exchange venue.
type Asset struct {
	Symbol  string `yaml:"symbol"`
	TokenID string `yaml:"token_id"`
	PoolID  uint64 `yaml:"pool_id"`
}

// Basket fixes the contract-wide asset order: position 0 is the wrapped
// native token, positions 1..N the tracked assets.
type Basket struct {
	NativeToken string
	Assets      []Asset
}

// Validate checks the basket configuration is usable.
func (b Basket) Validate() error {
	if strings.TrimSpace(b.NativeToken) == "" {
		return fmt.Errorf("fund: native token required")
	}
	if len(b.Assets) == 0 {
		return fmt.Errorf("fund: at least one tracked asset required")
	}
	for i, asset := range b.Assets {
		if strings.TrimSpace(asset.TokenID) == "" {
			return fmt.Errorf("fund: asset %d token id required", i)
		}
	}
	return nil
}

// Positions is the snapshot length: native plus every tracked asset.
func (b Basket) Positions() int {
	return len(b.Assets) + 1
}

// SwapInstruction is one leg of an atomic exchange batch. AmountIn may be
// nil, in which case the venue consumes the previous leg's output.
type SwapInstruction struct {
	PoolID       uint64   `json:"pool_id"`
	AssetIn      string   `json:"token_in"`
	AmountIn     *big.Int `json:"amount_in,omitempty"`
	AssetOut     string   `json:"token_out"`
	MinAmountOut *big.Int `json:"min_amount_out"`
}

// Weights is a parts-per-thousand allocation target over the basket:
// index 0 is the native slot, indices 1..N the tracked assets.
type Weights []uint64

// Validate checks the vector covers every position and sums to exactly
// the weight scale. No single weight may exceed the scale, which also
// keeps the running sum from wrapping.
func (w Weights) Validate(assets int) error {
	if len(w) != assets+1 {
		return ErrWeightLength
	}
	var sum uint64
	for _, weight := range w {
		if weight > weightScale {
			return ErrWeightSum
		}
		sum += weight
	}
	if sum != weightScale {
		return ErrWeightSum
	}
	return nil
}
