package market

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	coreerrors "nhbmarket/core/errors"
	"nhbmarket/core/events"
	"nhbmarket/core/types"
	"nhbmarket/native/bank"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
)

var errNilState = errors.New("market: state not configured")

type engineState interface {
	MarketListingGet(key types.AssetKey) (*types.Listing, bool, error)
	MarketListingPut(*types.Listing) error
	MarketListingDelete(key types.AssetKey) error
	MarketAuctionGet(key types.AssetKey) (*types.Auction, bool, error)
	MarketAuctionPut(*types.Auction) error
	MarketAuctionDelete(key types.AssetKey) error
	MarketFeeGet() (uint32, bool, error)
	MarketFeePut(uint32) error
	MarketClockGet() (int64, bool, error)
	MarketClockPut(int64) error

	EscrowGet(key types.AssetKey) (*escrow.Escrow, bool, error)
	EscrowPut(*escrow.Escrow) error
	EscrowDelete(key types.AssetKey) error

	Snapshot() int
	RevertToSnapshot(int)
	Commit() error
	Discard()
}

// Engine is the marketplace façade. It owns the listing, auction and escrow
// tables for every asset key plus the global fee configuration, and executes
// one command at a time.
//
// Each command runs as a transaction over the configured state: internal
// tables are updated before any ledger call, a failed ledger call discards the
// whole command, and events reach the emitter only after commit. Ledgers that
// call back into the engine must pass the context they were handed; such calls
// join the running transaction and see its updated state. Calls that do not
// carry the context wait for the running command to finish, at most
// Params.LockTimeout; a call that gives up while a ledger call is in flight
// fails with ErrReentrant.
type Engine struct {
	params  Params
	state   engineState
	assets  bank.AssetLedger
	value   bank.ValueLedger
	vault   *escrow.Vault
	emitter events.Emitter

	lock        chan struct{}
	active      *txn
	ledgerCalls atomic.Int32
}

type txKey struct{}

type txn struct {
	buffer events.Buffer
}

// NewEngine creates an engine for the supplied parameters.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.LockTimeout == 0 {
		params.LockTimeout = DefaultLockTimeout
	}
	e := &Engine{
		params:  params,
		emitter: events.NoopEmitter{},
		lock:    make(chan struct{}, 1),
		vault:   escrow.NewVault(params.Custody, params.Treasury),
	}
	e.vault.SetReleaser(params.Custody)
	e.vault.SetEmitter(scopedEmitter{engine: e})
	return e, nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// SetState configures the transactional state backend.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.vault.SetState(state)
}

// SetLedgers configures the external asset and value ledgers.
func (e *Engine) SetLedgers(assets bank.AssetLedger, value bank.ValueLedger) {
	e.assets, e.value = nil, nil
	if assets != nil {
		e.assets = trackedAssets{engine: e, inner: assets}
	}
	if value != nil {
		e.value = trackedValue{engine: e, inner: value}
	}
	e.vault.SetValueLedger(e.value)
}

// trackedAssets and trackedValue count in-flight ledger calls so a callback
// that lost the command context can be told apart from ordinary contention.
type trackedAssets struct {
	engine *Engine
	inner  bank.AssetLedger
}

func (t trackedAssets) TransferAsset(ctx context.Context, key types.AssetKey, from, to [20]byte) error {
	t.engine.ledgerCalls.Add(1)
	defer t.engine.ledgerCalls.Add(-1)
	return t.inner.TransferAsset(ctx, key, from, to)
}

type trackedValue struct {
	engine *Engine
	inner  bank.ValueLedger
}

func (t trackedValue) Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error {
	t.engine.ledgerCalls.Add(1)
	defer t.engine.ledgerCalls.Add(-1)
	return t.inner.Transfer(ctx, from, to, amount)
}

// SetEmitter configures the emitter receiving committed events. Passing nil
// resets it to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// scopedEmitter routes events into the buffer of the running transaction.
type scopedEmitter struct {
	engine *Engine
}

func (s scopedEmitter) Emit(evt events.Event) {
	if s.engine.active != nil {
		s.engine.active.buffer.Emit(evt)
	}
}

func (e *Engine) emit(evt *types.Event) {
	scopedEmitter{engine: e}.Emit(marketEvent{evt: evt})
}

// run executes fn as one atomic command.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx, ok := ctx.Value(txKey{}).(*txn); ok && tx != nil && tx == e.active {
		snap := e.state.Snapshot()
		mark := tx.buffer.Len()
		if err := fn(ctx); err != nil {
			e.state.RevertToSnapshot(snap)
			tx.buffer.Truncate(mark)
			return err
		}
		return nil
	}

	timer := time.NewTimer(e.params.LockTimeout)
	defer timer.Stop()
	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if e.ledgerCalls.Load() > 0 {
			return ErrReentrant
		}
		return ErrEngineBusy
	}
	defer func() { <-e.lock }()
	if e.state == nil {
		return errNilState
	}

	tx := &txn{}
	e.active = tx
	defer func() { e.active = nil }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.Discard()
		return err
	}
	// The lock is still held, so emitters observe events in commit order.
	tx.buffer.Flush(e.emitter)
	return nil
}

// Update runs fn inside an engine transaction. Hosts use it to apply their own
// state changes (for example ledger seeding) atomically with respect to market
// commands.
func (e *Engine) Update(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.run(ctx, fn)
}

// tick enforces non-decreasing logical time and records now as the latest
// command time.
func (e *Engine) tick(now int64) error {
	if now < 0 {
		return ErrTimeRegression
	}
	last, ok, err := e.state.MarketClockGet()
	if err != nil {
		return err
	}
	if ok && now < last {
		return ErrTimeRegression
	}
	if ok && now == last {
		return nil
	}
	return e.state.MarketClockPut(now)
}

// ensureFree rejects keys that already carry an active listing or auction and
// removes terminal residue left by a previous offer.
func (e *Engine) ensureFree(key types.AssetKey) error {
	listing, listed, err := e.state.MarketListingGet(key)
	if err != nil {
		return err
	}
	if listed && listing.Active {
		return ErrAlreadyActive
	}
	auction, auctioned, err := e.state.MarketAuctionGet(key)
	if err != nil {
		return err
	}
	if auctioned && auction.Active() {
		return ErrAlreadyActive
	}
	if listed {
		if err := e.state.MarketListingDelete(key); err != nil {
			return err
		}
	}
	if auctioned {
		if err := e.state.MarketAuctionDelete(key); err != nil {
			return err
		}
	}
	return e.vault.Clear(key)
}

func (e *Engine) moveAsset(ctx context.Context, op string, key types.AssetKey, from, to [20]byte) error {
	if e.assets == nil {
		return coreerrors.Transfer(op, errors.New("asset ledger not configured"))
	}
	return coreerrors.Transfer(op, e.assets.TransferAsset(ctx, key, from, to))
}

func (e *Engine) pay(ctx context.Context, op string, to [20]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() == 0 {
		return nil
	}
	if e.value == nil {
		return coreerrors.Transfer(op, errors.New("value ledger not configured"))
	}
	return coreerrors.Transfer(op, e.value.Transfer(ctx, e.params.Custody, to, amt))
}

func (e *Engine) feePercentage() (uint32, error) {
	pct, ok, err := e.state.MarketFeeGet()
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.params.DefaultFeePercentage, nil
	}
	return pct, nil
}

// SetFeePercentage changes the protocol fee. Only the configured fee authority
// may call it.
func (e *Engine) SetFeePercentage(ctx context.Context, caller [20]byte, pct uint32, now int64) error {
	return e.run(ctx, func(ctx context.Context) error {
		if caller != e.params.FeeAuthority {
			return ErrNotAuthorized
		}
		if err := fees.ValidatePercentage(pct); err != nil {
			return err
		}
		if err := e.tick(now); err != nil {
			return err
		}
		old, err := e.feePercentage()
		if err != nil {
			return err
		}
		if err := e.state.MarketFeePut(pct); err != nil {
			return err
		}
		e.emit(NewFeeUpdatedEvent(caller, old, pct))
		return nil
	})
}

// FeePercentage returns the active protocol fee.
func (e *Engine) FeePercentage(ctx context.Context) (uint32, error) {
	var pct uint32
	err := e.run(ctx, func(context.Context) error {
		var err error
		pct, err = e.feePercentage()
		return err
	})
	return pct, err
}

// Listing returns the listing stored for key.
func (e *Engine) Listing(ctx context.Context, key types.AssetKey) (*types.Listing, bool, error) {
	var (
		listing *types.Listing
		ok      bool
	)
	err := e.run(ctx, func(context.Context) error {
		var err error
		listing, ok, err = e.state.MarketListingGet(key)
		return err
	})
	return listing, ok, err
}

// Auction returns the auction stored for key.
func (e *Engine) Auction(ctx context.Context, key types.AssetKey) (*types.Auction, bool, error) {
	var (
		auction *types.Auction
		ok      bool
	)
	err := e.run(ctx, func(context.Context) error {
		var err error
		auction, ok, err = e.state.MarketAuctionGet(key)
		return err
	})
	return auction, ok, err
}

// Escrow returns the escrow entry stored for key.
func (e *Engine) Escrow(ctx context.Context, key types.AssetKey) (*escrow.Escrow, bool, error) {
	var (
		esc *escrow.Escrow
		ok  bool
	)
	err := e.run(ctx, func(context.Context) error {
		var err error
		esc, ok, err = e.vault.Get(key)
		return err
	})
	return esc, ok, err
}

// Clock returns the logical time of the last committed command.
func (e *Engine) Clock(ctx context.Context) (int64, error) {
	var now int64
	err := e.run(ctx, func(context.Context) error {
		var err error
		now, _, err = e.state.MarketClockGet()
		return err
	})
	return now, err
}
