package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

var (
	// ErrNotRegistered indicates the account has no ledger entry.
	ErrNotRegistered = errors.New("token: account not registered")
	// ErrAlreadyRegistered indicates a duplicate registration attempt.
	ErrAlreadyRegistered = errors.New("token: account already registered")
	// ErrInsufficientBalance indicates a withdrawal exceeding the balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrAmountPositive indicates a zero or negative amount was supplied.
	ErrAmountPositive = errors.New("token: amount must be positive")
	// ErrBalanceOverflow indicates a deposit would exceed the balance cap.
	ErrBalanceOverflow = errors.New("token: balance exceeds maximum")
	// ErrBalanceHeld indicates an unregister attempt with funds remaining.
	ErrBalanceHeld = errors.New("token: balance must be zero to unregister")
)

// MaxBalance caps every balance and the total supply at 2^128-1, the
// widest amount the wire format represents.
var MaxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

var (
	accountPrefix = []byte("token/acct/")
	supplyKey     = []byte("token/supply")
	metadataKey   = []byte("token/meta")
)

// Storage abstracts the subset of KV functionality the ledger requires.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedAccount struct {
	Balance     *big.Int
	StorageBond *big.Int
}

type storedSupply struct {
	Total *big.Int
}

// Ledger keeps fungible unit balances and the total supply in the
// underlying key-value store. All mutations are synchronous and local.
// The ledger carries its own lock: callers may mutate it from any
// goroutine and every read-modify-write runs whole.
type Ledger struct {
	mu    sync.RWMutex
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// Register creates an empty ledger entry for the account, recording the
// attached storage bond. Registering an existing account fails.
func (l *Ledger) Register(account string, bond *big.Int) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registerLocked(account, bond)
}

func (l *Ledger) registerLocked(account string, bond *big.Int) error {
	key, err := accountKey(account)
	if err != nil {
		return err
	}
	var existing storedAccount
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyRegistered
	}
	stored := storedAccount{Balance: big.NewInt(0), StorageBond: big.NewInt(0)}
	if bond != nil && bond.Sign() > 0 {
		stored.StorageBond = new(big.Int).Set(bond)
	}
	return l.store.KVPut(key, &stored)
}

// EnsureRegistered registers the account with a zero bond when absent.
func (l *Ledger) EnsureRegistered(account string) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key, err := accountKey(account)
	if err != nil {
		return err
	}
	var existing storedAccount
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return l.registerLocked(account, nil)
}

// Registered reports whether the account holds a ledger entry.
func (l *Ledger) Registered(account string) (bool, error) {
	if l == nil || l.store == nil {
		return false, fmt.Errorf("token: ledger not initialised")
	}
	key, err := accountKey(account)
	if err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var stored storedAccount
	return l.store.KVGet(key, &stored)
}

// Unregister removes the account entry and returns the refundable storage
// bond. The balance must be zero.
func (l *Ledger) Unregister(account string) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("token: ledger not initialised")
	}
	key, err := accountKey(account)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var stored storedAccount
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	if stored.Balance != nil && stored.Balance.Sign() > 0 {
		return nil, ErrBalanceHeld
	}
	refund := big.NewInt(0)
	if stored.StorageBond != nil {
		refund = new(big.Int).Set(stored.StorageBond)
	}
	stored.Balance = big.NewInt(0)
	stored.StorageBond = big.NewInt(0)
	if err := l.store.KVPut(key, &stored); err != nil {
		return nil, err
	}
	return refund, nil
}

// Deposit credits the account and grows the total supply by the same
// amount. The account must already be registered.
func (l *Ledger) Deposit(account string, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	key, err := accountKey(account)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var stored storedAccount
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}
	balance := ensureAmount(stored.Balance)
	balance.Add(balance, amount)
	if balance.Cmp(MaxBalance) > 0 {
		return ErrBalanceOverflow
	}
	supply, err := l.totalSupplyLocked()
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	if supply.Cmp(MaxBalance) > 0 {
		return ErrBalanceOverflow
	}
	stored.Balance = balance
	if err := l.store.KVPut(key, &stored); err != nil {
		return err
	}
	return l.store.KVPut(supplyKey, &storedSupply{Total: supply})
}

// Withdraw debits the account and shrinks the total supply by the same
// amount.
func (l *Ledger) Withdraw(account string, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	key, err := accountKey(account)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var stored storedAccount
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}
	balance := ensureAmount(stored.Balance)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	supply, err := l.totalSupplyLocked()
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return fmt.Errorf("token: supply underflow withdrawing %s", amount)
	}
	supply.Sub(supply, amount)
	stored.Balance = balance
	if err := l.store.KVPut(key, &stored); err != nil {
		return err
	}
	return l.store.KVPut(supplyKey, &storedSupply{Total: supply})
}

// Transfer moves amount between two registered accounts without touching
// the total supply. The credit is persisted before the debit, so a
// storage fault mid-transfer can at worst leave the amount counted
// twice, never destroyed.
func (l *Ledger) Transfer(from, to string, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	fromKey, err := accountKey(from)
	if err != nil {
		return err
	}
	toKey, err := accountKey(to)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var source storedAccount
	ok, err := l.store.KVGet(fromKey, &source)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}
	var dest storedAccount
	ok, err = l.store.KVGet(toKey, &dest)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}
	sourceBalance := ensureAmount(source.Balance)
	if sourceBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	destBalance := ensureAmount(dest.Balance)
	destBalance.Add(destBalance, amount)
	if destBalance.Cmp(MaxBalance) > 0 {
		return ErrBalanceOverflow
	}
	sourceBalance.Sub(sourceBalance, amount)
	source.Balance = sourceBalance
	dest.Balance = destBalance
	if err := l.store.KVPut(toKey, &dest); err != nil {
		return err
	}
	return l.store.KVPut(fromKey, &source)
}

// BalanceOf returns the account balance, zero when unregistered.
func (l *Ledger) BalanceOf(account string) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("token: ledger not initialised")
	}
	key, err := accountKey(account)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var stored storedAccount
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return ensureAmount(stored.Balance), nil
}

// TotalSupply returns the number of units currently outstanding.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("token: ledger not initialised")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupplyLocked()
}

func (l *Ledger) totalSupplyLocked() (*big.Int, error) {
	var stored storedSupply
	ok, err := l.store.KVGet(supplyKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return ensureAmount(stored.Total), nil
}

func accountKey(account string) ([]byte, error) {
	trimmed := strings.TrimSpace(account)
	if trimmed == "" {
		return nil, fmt.Errorf("token: account required")
	}
	buf := make([]byte, len(accountPrefix)+len(trimmed))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], trimmed)
	return buf, nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountPositive
	}
	if amount.Cmp(MaxBalance) > 0 {
		return ErrBalanceOverflow
	}
	return nil
}

func ensureAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
