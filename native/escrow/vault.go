package escrow

import (
	"context"
	"errors"
	"math/big"

	coreerrors "nhbmarket/core/errors"
	"nhbmarket/core/events"
	"nhbmarket/core/types"
	"nhbmarket/native/bank"
	"nhbmarket/native/fees"
)

var errNilState = errors.New("escrow vault: state not configured")

type vaultState interface {
	EscrowGet(key types.AssetKey) (*Escrow, bool, error)
	EscrowPut(*Escrow) error
	EscrowDelete(key types.AssetKey) error
}

// Vault holds buyer funds for listed assets between purchase and confirmation.
// Funds are custodied in a single account; the vault only records who paid what
// and pays out exactly once.
//
// Vault mutates state before issuing value transfers and never rolls back on its
// own: callers run it inside a state transaction that is discarded when a
// transfer fails.
type Vault struct {
	state    vaultState
	value    bank.ValueLedger
	emitter  events.Emitter
	custody  [20]byte
	treasury [20]byte
	releaser [20]byte
}

// NewVault creates a vault paying out of custody and sending fees to treasury.
func NewVault(custody, treasury [20]byte) *Vault {
	return &Vault{
		emitter:  events.NoopEmitter{},
		custody:  custody,
		treasury: treasury,
	}
}

// SetState configures the state backend used by the vault.
func (v *Vault) SetState(state vaultState) { v.state = state }

// SetValueLedger configures the ledger used for payouts and refunds.
func (v *Vault) SetValueLedger(ledger bank.ValueLedger) { v.value = ledger }

// SetReleaser authorizes an additional actor, besides the buyer, to release
// funds. The market engine registers its custody account here.
func (v *Vault) SetReleaser(addr [20]byte) { v.releaser = addr }

// SetEmitter configures the event emitter used by the vault. Passing nil resets
// the emitter to a no-op implementation.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		v.emitter = events.NoopEmitter{}
		return
	}
	v.emitter = emitter
}

func (v *Vault) emit(event *types.Event) {
	if v == nil || v.emitter == nil || event == nil {
		return
	}
	v.emitter.Emit(escrowEvent{evt: event})
}

// Get returns a copy of the escrow stored under key.
func (v *Vault) Get(key types.AssetKey) (*Escrow, bool, error) {
	if v == nil || v.state == nil {
		return nil, false, errNilState
	}
	esc, ok, err := v.state.EscrowGet(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return esc.Clone(), true, nil
}

// Status returns the lifecycle state for key, EscrowEmpty when absent.
func (v *Vault) Status(key types.AssetKey) (EscrowStatus, error) {
	esc, ok, err := v.Get(key)
	if err != nil {
		return EscrowEmpty, err
	}
	if !ok {
		return EscrowEmpty, nil
	}
	return esc.Status, nil
}

// Fund records that buyer paid amount into custody for key. No transfer is
// issued: the payment reached custody with the command that carried it.
func (v *Vault) Fund(_ context.Context, key types.AssetKey, buyer [20]byte, amount *big.Int, now int64) error {
	if amount == nil || amount.Sign() <= 0 || amount.BitLen() > fees.MaxAmountBits {
		return ErrInvalidAmount
	}
	status, err := v.Status(key)
	if err != nil {
		return err
	}
	if status != EscrowEmpty {
		return ErrAlreadyFunded
	}
	esc := &Escrow{
		Key:      key,
		Buyer:    buyer,
		Amount:   new(big.Int).Set(amount),
		FundedAt: now,
		Status:   EscrowFunded,
	}
	if err := v.state.EscrowPut(esc); err != nil {
		return err
	}
	v.emit(NewFundedEvent(esc))
	return nil
}

// Release pays the funded amount minus the protocol fee to payee and the fee to
// the treasury. Only the buyer or the registered releaser may release. The
// entry is marked released before any transfer is issued, so a callback into the
// vault from the value ledger observes a released escrow and is rejected.
func (v *Vault) Release(ctx context.Context, key types.AssetKey, caller, payee [20]byte, feePercentage uint32) (fees.Split, error) {
	esc, ok, err := v.Get(key)
	if err != nil {
		return fees.Split{}, err
	}
	if !ok {
		return fees.Split{}, ErrNotFunded
	}
	switch esc.Status {
	case EscrowFunded:
	case EscrowReleased:
		return fees.Split{}, ErrAlreadyReleased
	default:
		return fees.Split{}, ErrNotFunded
	}
	if caller != esc.Buyer && (v.releaser == ([20]byte{}) || caller != v.releaser) {
		return fees.Split{}, ErrNotAuthorized
	}
	split, err := fees.Compute(esc.Amount, feePercentage)
	if err != nil {
		return fees.Split{}, err
	}
	esc.Status = EscrowReleased
	esc.Payee = payee
	esc.Fee = new(big.Int).Set(split.Fee)
	if err := v.state.EscrowPut(esc); err != nil {
		return fees.Split{}, err
	}
	v.emit(NewReleasedEvent(esc))

	if err := v.pay(ctx, payee, split.Net); err != nil {
		return fees.Split{}, coreerrors.Transfer("escrow payout", err)
	}
	if err := v.pay(ctx, v.treasury, split.Fee); err != nil {
		return fees.Split{}, coreerrors.Transfer("escrow fee", err)
	}
	return split, nil
}

// Reclaim refunds the full funded amount to refundee without a fee.
func (v *Vault) Reclaim(ctx context.Context, key types.AssetKey, refundee [20]byte) (*big.Int, error) {
	esc, ok, err := v.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok || esc.Status != EscrowFunded {
		return nil, ErrNotFunded
	}
	esc.Status = EscrowReclaimed
	if err := v.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	v.emit(NewReclaimedEvent(esc))

	if err := v.pay(ctx, refundee, esc.Amount); err != nil {
		return nil, coreerrors.Transfer("escrow refund", err)
	}
	return new(big.Int).Set(esc.Amount), nil
}

// Clear drops a terminal entry so the key can be funded again. Clearing an
// empty key is a no-op; clearing funded escrow fails.
func (v *Vault) Clear(key types.AssetKey) error {
	esc, ok, err := v.Get(key)
	if err != nil || !ok {
		return err
	}
	if esc.Status == EscrowFunded {
		return ErrAlreadyFunded
	}
	return v.state.EscrowDelete(key)
}

func (v *Vault) pay(ctx context.Context, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if v.value == nil {
		return errors.New("escrow vault: value ledger not configured")
	}
	return v.value.Transfer(ctx, v.custody, to, amount)
}
