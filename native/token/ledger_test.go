package token

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"basketfund/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(storage.NewKV(storage.NewMemDB()))
}

func TestRegisterDepositWithdraw(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.Register("alice", big.NewInt(250)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ledger.Deposit("alice", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s, want 100", supply)
	}
	if err := ledger.Withdraw("alice", big.NewInt(40)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	balance, err := ledger.BalanceOf("alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", balance)
	}
	supply, _ = ledger.TotalSupply()
	if supply.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("supply = %s, want 60", supply)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.Register("alice", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ledger.Register("alice", nil); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := ledger.EnsureRegistered("alice"); err != nil {
		t.Fatalf("ensure registered should be idempotent: %v", err)
	}
}

func TestDepositUnregistered(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.Deposit("ghost", big.NewInt(1)); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestWithdrawInsufficient(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.Register("alice", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ledger.Deposit("alice", big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.Withdraw("alice", big.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransferPreservesSupply(t *testing.T) {
	ledger := newTestLedger(t)
	for _, account := range []string{"alice", "bob"} {
		if err := ledger.Register(account, nil); err != nil {
			t.Fatalf("register %s: %v", account, err)
		}
	}
	if err := ledger.Deposit("alice", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.Transfer("alice", "bob", big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBalance, _ := ledger.BalanceOf("alice")
	bobBalance, _ := ledger.BalanceOf("bob")
	if aliceBalance.Cmp(big.NewInt(70)) != 0 || bobBalance.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("balances = %s/%s, want 70/30", aliceBalance, bobBalance)
	}
	supply, _ := ledger.TotalSupply()
	if supply.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s, want 100", supply)
	}
}

func TestDepositBalanceCap(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.Register("alice", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ledger.Deposit("alice", new(big.Int).Set(MaxBalance)); err != nil {
		t.Fatalf("deposit at cap: %v", err)
	}
	if err := ledger.Deposit("alice", big.NewInt(1)); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	over := new(big.Int).Add(MaxBalance, big.NewInt(1))
	if err := ledger.Deposit("alice", over); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow for oversize amount, got %v", err)
	}
}

func TestUnregisterRefundsBond(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.Register("alice", big.NewInt(500)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ledger.Deposit("alice", big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := ledger.Unregister("alice"); !errors.Is(err, ErrBalanceHeld) {
		t.Fatalf("expected ErrBalanceHeld, got %v", err)
	}
	if err := ledger.Withdraw("alice", big.NewInt(5)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	refund, err := ledger.Unregister("alice")
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if refund.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("refund = %s, want 500", refund)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	ledger := newTestLedger(t)
	meta := Metadata{Name: "Basket Index", Symbol: "BKT", Decimals: 24}
	if err := ledger.SetMetadata(meta); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	got, ok, err := ledger.Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if !ok {
		t.Fatalf("metadata missing")
	}
	if got != meta {
		t.Fatalf("metadata = %+v, want %+v", got, meta)
	}
	if err := ledger.SetMetadata(Metadata{Symbol: "X"}); err == nil {
		t.Fatalf("expected validation failure for empty name")
	}
}

func TestConcurrentMutationsKeepSupplyExact(t *testing.T) {
	ledger := newTestLedger(t)
	for _, account := range []string{"alice", "bob"} {
		if err := ledger.Register(account, nil); err != nil {
			t.Fatalf("register %s: %v", account, err)
		}
	}
	if err := ledger.Deposit("alice", big.NewInt(1000)); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	const workers = 8
	const rounds = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if err := ledger.Deposit("bob", big.NewInt(1)); err != nil {
					t.Errorf("deposit: %v", err)
					return
				}
				if err := ledger.Transfer("alice", "bob", big.NewInt(1)); err != nil {
					t.Errorf("transfer: %v", err)
					return
				}
				if _, err := ledger.BalanceOf("bob"); err != nil {
					t.Errorf("balance: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	aliceBalance, _ := ledger.BalanceOf("alice")
	bobBalance, _ := ledger.BalanceOf("bob")
	supply, _ := ledger.TotalSupply()
	minted := int64(1000 + workers*rounds)
	if supply.Cmp(big.NewInt(minted)) != 0 {
		t.Fatalf("supply = %s, want %d", supply, minted)
	}
	total := new(big.Int).Add(aliceBalance, bobBalance)
	if total.Cmp(supply) != 0 {
		t.Fatalf("balance sum %s != supply %s", total, supply)
	}
	if aliceBalance.Cmp(big.NewInt(1000-workers*rounds)) != 0 {
		t.Fatalf("alice balance = %s, want %d", aliceBalance, 1000-workers*rounds)
	}
}

// faultStore fails writes to one key, exercising partial-write paths.
type faultStore struct {
	Storage
	failKey string
}

func (f *faultStore) KVPut(key []byte, value interface{}) error {
	if string(key) == f.failKey {
		return errors.New("disk full")
	}
	return f.Storage.KVPut(key, value)
}

func TestTransferFaultNeverDestroysUnits(t *testing.T) {
	kv := storage.NewKV(storage.NewMemDB())
	seed := NewLedger(kv)
	for _, account := range []string{"alice", "bob"} {
		if err := seed.Register(account, nil); err != nil {
			t.Fatalf("register %s: %v", account, err)
		}
	}
	if err := seed.Deposit("alice", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// The debit write fails after the credit landed. The amount must
	// still exist somewhere; it is never destroyed.
	ledger := NewLedger(&faultStore{Storage: kv, failKey: "token/acct/alice"})
	if err := ledger.Transfer("alice", "bob", big.NewInt(30)); err == nil {
		t.Fatalf("expected transfer to surface the storage fault")
	}
	aliceBalance, _ := seed.BalanceOf("alice")
	bobBalance, _ := seed.BalanceOf("bob")
	if aliceBalance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice balance = %s, want 100", aliceBalance)
	}
	if bobBalance.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("bob balance = %s, want 30", bobBalance)
	}
}
