package fund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"basketfund/core/events"
	"basketfund/native/token"
)

var (
	// ErrNotInitialized indicates the fund has not been constructed yet.
	ErrNotInitialized = errors.New("fund: not initialized")
	// ErrAlreadyInitialized indicates a repeated initialization attempt.
	ErrAlreadyInitialized = errors.New("fund: already initialized")
	// ErrDepositRequired indicates a buy without an attached deposit.
	ErrDepositRequired = errors.New("fund: deposit must be positive")
	// ErrTokensRequired indicates a sell of zero units.
	ErrTokensRequired = errors.New("fund: token amount must be positive")
	// ErrInsufficientBalance indicates the seller holds fewer units than requested.
	ErrInsufficientBalance = errors.New("fund: insufficient token balance")
	// ErrNotOwner indicates a restricted entry point was called by a non-owner.
	ErrNotOwner = errors.New("fund: caller is not the owner")
)

// Exchange is the venue the fund trades through. Calls are issued in
// batches of goroutines and joined before any continuation logic runs.
type Exchange interface {
	Quote(ctx context.Context, poolID uint64, assetIn string, amountIn *big.Int, assetOut string) (*big.Int, error)
	Swap(ctx context.Context, instructions []SwapInstruction, referral string) (*big.Int, error)
	DepositBalance(ctx context.Context, account, asset string) (*big.Int, error)
	Withdraw(ctx context.Context, asset string, amount *big.Int, unregister bool) error
	RegisterAssets(ctx context.Context, assets []string) error
	StorageDeposit(ctx context.Context, account string, registrationOnly bool) error
	TransferCall(ctx context.Context, receiver, asset string, amount *big.Int, msg string) error
}

// Wrapper converts the native currency to and from the venue's wrapped
// deposit representation.
type Wrapper interface {
	Wrap(ctx context.Context, amount *big.Int) error
	Unwrap(ctx context.Context, amount *big.Int) error
}

// Payer settles native currency back to an account after a sell.
type Payer interface {
	Pay(ctx context.Context, account string, amount *big.Int) error
}

// Ledger is the subset of token ledger functionality the engine drives.
type Ledger interface {
	EnsureRegistered(account string) error
	Deposit(account string, amount *big.Int) error
	Withdraw(account string, amount *big.Int) error
	Transfer(from, to string, amount *big.Int) error
	BalanceOf(account string) (*big.Int, error)
	TotalSupply() (*big.Int, error)
	SetMetadata(meta token.Metadata) error
}

// WorkflowRecord is the audit row written after every orchestration run.
type WorkflowRecord struct {
	ID         string
	Kind       string
	Account    string
	AmountIn   *big.Int
	AmountOut  *big.Int
	Status     string
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists workflow records for audit. Failures are logged, not
// propagated; the audit trail is best effort.
type Recorder interface {
	RecordWorkflow(ctx context.Context, record WorkflowRecord) error
}

// Workflow kinds written to the audit store.
const (
	WorkflowBuy       = "buy"
	WorkflowSell      = "sell"
	WorkflowRebalance = "rebalance"
	WorkflowRefresh   = "refresh"
)

// Workflow statuses written to the audit store.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Config wires the engine's collaborators.
type Config struct {
	Ledger       Ledger
	Exchange     Exchange
	Wrapper      Wrapper
	Payer        Payer
	State        *State
	Basket       Basket
	VenueAccount string
	Referral     string
}

// Option tweaks optional engine collaborators.
type Option func(*Engine)

// WithEmitter installs an event emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithRecorder installs a workflow audit recorder.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// WithLogger installs a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine orchestrates the buy, sell, rebalance and refresh workflows and
// owns the cached balance snapshot. One workflow runs at a time; the
// mutex keeps each run atomic with respect to the snapshot and ledger.
type Engine struct {
	mu sync.Mutex

	ledger   Ledger
	exchange Exchange
	wrapper  Wrapper
	payer    Payer
	state    *State
	emitter  events.Emitter
	recorder Recorder
	logger   *slog.Logger

	basket       Basket
	venueAccount string
	referral     string

	identities  Identities
	initialized bool
	snapshot    *Snapshot

	newID func() string
	now   func() time.Time
}

// NewEngine constructs the orchestration engine and restores any
// persisted identity and snapshot state.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("fund: ledger required")
	}
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("fund: exchange required")
	}
	if cfg.Wrapper == nil {
		return nil, fmt.Errorf("fund: wrapper required")
	}
	if cfg.Payer == nil {
		return nil, fmt.Errorf("fund: payer required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("fund: state required")
	}
	if err := cfg.Basket.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.VenueAccount) == "" {
		return nil, fmt.Errorf("fund: venue account required")
	}
	engine := &Engine{
		ledger:       cfg.Ledger,
		exchange:     cfg.Exchange,
		wrapper:      cfg.Wrapper,
		payer:        cfg.Payer,
		state:        cfg.State,
		emitter:      events.NoopEmitter{},
		logger:       slog.Default(),
		basket:       cfg.Basket,
		venueAccount: strings.TrimSpace(cfg.VenueAccount),
		referral:     strings.TrimSpace(cfg.Referral),
		snapshot:     NewSnapshot(cfg.Basket.Positions()),
		newID:        func() string { return uuid.NewString() },
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	identities, ok, err := cfg.State.Identities()
	if err != nil {
		return nil, err
	}
	if ok {
		engine.identities = identities
		engine.initialized = true
	}
	if values, ok, err := cfg.State.Snapshot(); err != nil {
		return nil, err
	} else if ok && len(values) == cfg.Basket.Positions() {
		engine.snapshot = snapshotFromValues(values)
	}
	return engine, nil
}

// SetClock overrides the time source, primarily for deterministic tests.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// SetIDSource overrides workflow ID generation for deterministic tests.
func (e *Engine) SetIDSource(newID func() string) {
	if e == nil || newID == nil {
		return
	}
	e.newID = newID
}

// Initialize performs the one-time fund construction: it registers the
// three identity accounts, mints the initial supply to the owner, stores
// the token metadata and seeds a zeroed snapshot.
func (e *Engine) Initialize(id Identities, initialSupply *big.Int, meta token.Metadata) error {
	if e == nil {
		return fmt.Errorf("fund: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return ErrAlreadyInitialized
	}
	if err := id.Validate(); err != nil {
		return err
	}
	if initialSupply == nil || initialSupply.Sign() <= 0 {
		return fmt.Errorf("fund: initial supply must be positive")
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	for _, account := range []string{id.Owner, id.Admin, id.Fund} {
		if err := e.ledger.EnsureRegistered(account); err != nil {
			return err
		}
	}
	if err := e.ledger.SetMetadata(meta); err != nil {
		return err
	}
	if err := e.ledger.Deposit(id.Owner, initialSupply); err != nil {
		return err
	}
	if err := e.state.PutIdentities(id); err != nil {
		return err
	}
	if err := e.state.PutSnapshot(e.snapshot.Values()); err != nil {
		return err
	}
	e.identities = id
	e.initialized = true
	e.emitter.Emit(events.TokenMinted{
		Account: id.Owner,
		Amount:  cloneAmount(initialSupply),
		Price:   new(big.Int).Set(Precision),
	})
	e.logger.Info("fund initialized",
		"owner", id.Owner, "admin", id.Admin, "fund", id.Fund,
		"initialSupply", initialSupply.String())
	return nil
}

// Initialized reports whether the one-time construction has run.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Identities returns the fixed identity accounts.
func (e *Engine) Identities() (Identities, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return Identities{}, ErrNotInitialized
	}
	return e.identities, nil
}

// RegisterVenue onboards the fund at the exchange: it posts the storage
// deposit, registers the wrapped native token and every tracked asset,
// then runs a full snapshot refresh. Owner-only.
func (e *Engine) RegisterVenue(ctx context.Context, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	if !strings.EqualFold(strings.TrimSpace(caller), e.identities.Owner) {
		return ErrNotOwner
	}
	if err := e.exchange.StorageDeposit(ctx, e.venueAccount, false); err != nil {
		return fmt.Errorf("fund: storage deposit: %w", err)
	}
	assets := make([]string, 0, e.basket.Positions())
	assets = append(assets, e.basket.NativeToken)
	for _, asset := range e.basket.Assets {
		assets = append(assets, asset.TokenID)
	}
	if err := e.exchange.RegisterAssets(ctx, assets); err != nil {
		return fmt.Errorf("fund: register assets: %w", err)
	}
	e.refreshSnapshotLocked(ctx, e.newID())
	return nil
}

// Basket returns the tracked portfolio definition.
func (e *Engine) Basket() Basket {
	assets := make([]Asset, len(e.basket.Assets))
	copy(assets, e.basket.Assets)
	return Basket{NativeToken: e.basket.NativeToken, Assets: assets}
}

// SnapshotView returns a copy of the cached balance vector.
func (e *Engine) SnapshotView() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Clone()
}

// Price values the basket with fresh quotes over the cached snapshot and
// returns the implied unit price. Read-only.
func (e *Engine) Price(ctx context.Context) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	snap := e.snapshot.Clone()
	legs := e.quoteBasket(ctx, snap)
	totalValue, _ := e.valueBasket(snap, legs)
	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	return unitPrice(totalValue, supply), nil
}

func (e *Engine) record(ctx context.Context, rec WorkflowRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordWorkflow(ctx, rec); err != nil {
		e.logger.Warn("workflow audit write failed", "workflowId", rec.ID, "err", err)
	}
}

func (e *Engine) requireInitialized() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	return nil
}
