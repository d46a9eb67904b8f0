package fund

import (
	"fmt"
	"math/big"
)

// Snapshot is the cached per-position deposit-balance vector used as the
// valuation input: position 0 holds the native balance at the venue,
// positions 1..N each tracked asset's balance. Values are best-effort
// cached external state and may be stale between refresh passes.
type Snapshot struct {
	balances []*big.Int
}

// NewSnapshot returns a zeroed snapshot covering the given position count.
func NewSnapshot(positions int) *Snapshot {
	balances := make([]*big.Int, positions)
	for i := range balances {
		balances[i] = big.NewInt(0)
	}
	return &Snapshot{balances: balances}
}

// snapshotFromValues adopts a stored balance vector, copying each value.
func snapshotFromValues(values []*big.Int) *Snapshot {
	snap := NewSnapshot(len(values))
	for i, v := range values {
		if v != nil {
			snap.balances[i] = new(big.Int).Set(v)
		}
	}
	return snap
}

// Positions returns the vector length (native plus tracked assets).
func (s *Snapshot) Positions() int {
	return len(s.balances)
}

// Native returns a copy of the cached native balance.
func (s *Snapshot) Native() *big.Int {
	return cloneAmount(s.balances[0])
}

// Asset returns a copy of the cached balance for tracked asset i
// (zero-based over the assets, i.e. snapshot position i+1).
func (s *Snapshot) Asset(i int) *big.Int {
	return cloneAmount(s.balances[i+1])
}

// Clone returns an independent copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	return snapshotFromValues(s.balances)
}

// Values returns a copy of the raw balance vector.
func (s *Snapshot) Values() []*big.Int {
	out := make([]*big.Int, len(s.balances))
	for i, v := range s.balances {
		out[i] = cloneAmount(v)
	}
	return out
}

// setPosition overwrites one slot. Callers hold the engine lock.
func (s *Snapshot) setPosition(i int, value *big.Int) error {
	if i < 0 || i >= len(s.balances) {
		return fmt.Errorf("fund: snapshot position %d out of range", i)
	}
	s.balances[i] = cloneAmount(value)
	return nil
}
