package fund

import (
	"fmt"
	"math/big"
	"strings"
)

var (
	fundConfigKey   = []byte("fund/config")
	fundSnapshotKey = []byte("fund/snapshot")
)

// Storage abstracts the subset of KV functionality the fund state needs.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Identities are the three fixed accounts set at initialization.
type Identities struct {
	Owner string
	Admin string
	Fund  string
}

// Validate checks all three identities are present and distinct where it
// matters (owner must not be empty; admin and fund receive fee shares).
func (id Identities) Validate() error {
	if strings.TrimSpace(id.Owner) == "" {
		return fmt.Errorf("fund: owner account required")
	}
	if strings.TrimSpace(id.Admin) == "" {
		return fmt.Errorf("fund: admin account required")
	}
	if strings.TrimSpace(id.Fund) == "" {
		return fmt.Errorf("fund: fund account required")
	}
	return nil
}

type storedFundConfig struct {
	Owner string
	Admin string
	Fund  string
}

type storedSnapshot struct {
	Balances []*big.Int
}

// State persists the fund's durable configuration and snapshot vector.
type State struct {
	store Storage
}

// NewState binds the fund state to a storage backend.
func NewState(store Storage) *State {
	return &State{store: store}
}

// Identities loads the stored identity accounts. The boolean reports
// whether the fund has been initialized.
func (s *State) Identities() (Identities, bool, error) {
	if s == nil || s.store == nil {
		return Identities{}, false, fmt.Errorf("fund: state not initialised")
	}
	var stored storedFundConfig
	ok, err := s.store.KVGet(fundConfigKey, &stored)
	if err != nil || !ok {
		return Identities{}, ok, err
	}
	return Identities{Owner: stored.Owner, Admin: stored.Admin, Fund: stored.Fund}, true, nil
}

// PutIdentities stores the identity accounts.
func (s *State) PutIdentities(id Identities) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("fund: state not initialised")
	}
	if err := id.Validate(); err != nil {
		return err
	}
	stored := storedFundConfig{
		Owner: strings.TrimSpace(id.Owner),
		Admin: strings.TrimSpace(id.Admin),
		Fund:  strings.TrimSpace(id.Fund),
	}
	return s.store.KVPut(fundConfigKey, &stored)
}

// Snapshot loads the persisted balance vector.
func (s *State) Snapshot() ([]*big.Int, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, fmt.Errorf("fund: state not initialised")
	}
	var stored storedSnapshot
	ok, err := s.store.KVGet(fundSnapshotKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.Balances, true, nil
}

// PutSnapshot stores the balance vector.
func (s *State) PutSnapshot(balances []*big.Int) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("fund: state not initialised")
	}
	normalized := make([]*big.Int, len(balances))
	for i, v := range balances {
		if v == nil {
			normalized[i] = big.NewInt(0)
		} else {
			normalized[i] = new(big.Int).Set(v)
		}
	}
	return s.store.KVPut(fundSnapshotKey, &storedSnapshot{Balances: normalized})
}
