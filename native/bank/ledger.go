package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"nhbmarket/core/types"
)

var (
	// ErrInsufficientBalance is returned when the payer cannot cover a transfer.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrNotOwner is returned when the asset is not held by the sender.
	ErrNotOwner = errors.New("bank: sender does not own asset")
	// ErrUnknownAsset is returned when the asset has never been registered.
	ErrUnknownAsset = errors.New("bank: asset not registered")
)

// AssetLedger records which party holds transfer rights over a unique asset.
// Implementations must apply a move atomically or not at all. They may call
// back into the market; such callbacks must reuse the supplied context, or
// they fail once the market's lock timeout elapses.
type AssetLedger interface {
	TransferAsset(ctx context.Context, key types.AssetKey, from, to [20]byte) error
}

// ValueLedger moves monetary consideration between accounts. Same contract as
// AssetLedger.
type ValueLedger interface {
	Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error
}

type ledgerState interface {
	BankBalance(addr [20]byte) (*big.Int, error)
	BankSetBalance(addr [20]byte, amount *big.Int) error
	BankAssetOwner(key types.AssetKey) ([20]byte, bool, error)
	BankSetAssetOwner(key types.AssetKey, owner [20]byte) error
}

// Ledger is a reference AssetLedger and ValueLedger that keeps balances and
// owners in market state, so its moves share the command journal and roll back
// together with the market tables.
type Ledger struct {
	state ledgerState
}

// NewLedger creates a ledger over the provided state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Transfer implements ValueLedger.
func (l *Ledger) Transfer(_ context.Context, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state not configured")
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("bank: negative transfer amount")
	}
	if amt.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := l.state.BankBalance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.state.BankBalance(to)
	if err != nil {
		return err
	}
	if err := l.state.BankSetBalance(from, new(big.Int).Sub(fromBal, amt)); err != nil {
		return err
	}
	return l.state.BankSetBalance(to, new(big.Int).Add(toBal, amt))
}

// TransferAsset implements AssetLedger.
func (l *Ledger) TransferAsset(_ context.Context, key types.AssetKey, from, to [20]byte) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state not configured")
	}
	owner, ok, err := l.state.BankAssetOwner(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownAsset
	}
	if owner != from {
		return ErrNotOwner
	}
	return l.state.BankSetAssetOwner(key, to)
}

// Credit adds amount to addr. Used to seed development balances and to model
// payments entering custody.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("bank: credit must be positive")
	}
	current, err := l.state.BankBalance(addr)
	if err != nil {
		return err
	}
	return l.state.BankSetBalance(addr, current.Add(current, amt))
}

// Balance returns the balance held by addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	return l.state.BankBalance(addr)
}

// RegisterAsset records the initial owner of an asset. Registering an existing
// asset fails.
func (l *Ledger) RegisterAsset(key types.AssetKey, owner [20]byte) error {
	_, ok, err := l.state.BankAssetOwner(key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("bank: asset %s already registered", key)
	}
	return l.state.BankSetAssetOwner(key, owner)
}

// Owner returns the current holder of an asset.
func (l *Ledger) Owner(key types.AssetKey) ([20]byte, bool, error) {
	return l.state.BankAssetOwner(key)
}
