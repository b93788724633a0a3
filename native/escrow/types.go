package escrow

import (
	"fmt"
	"math/big"

	coreerrors "nhbmarket/core/errors"
	"nhbmarket/core/types"
)

// EscrowStatus represents the lifecycle states of a vault entry.
type EscrowStatus uint8

const (
	EscrowEmpty EscrowStatus = iota
	EscrowFunded
	EscrowReleased
	EscrowReclaimed
)

func (s EscrowStatus) String() string {
	switch s {
	case EscrowEmpty:
		return "empty"
	case EscrowFunded:
		return "funded"
	case EscrowReleased:
		return "released"
	case EscrowReclaimed:
		return "reclaimed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowEmpty, EscrowFunded, EscrowReleased, EscrowReclaimed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowReclaimed
}

// Escrow holds the consideration a buyer paid for a listed asset until the sale
// is confirmed or cancelled.
type Escrow struct {
	Key      types.AssetKey
	Buyer    [20]byte
	Amount   *big.Int
	FundedAt int64
	Status   EscrowStatus
	// Set on release.
	Payee [20]byte
	Fee   *big.Int
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if e.Fee != nil {
		clone.Fee = new(big.Int).Set(e.Fee)
	} else {
		clone.Fee = big.NewInt(0)
	}
	return &clone
}

// SanitizeEscrow validates the supplied escrow and returns a cloned instance
// with non-nil amount fields. The function does not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow amount must be non-negative")
	}
	if clone.Fee.Sign() < 0 || clone.Fee.Cmp(clone.Amount) > 0 {
		return nil, fmt.Errorf("escrow fee out of range")
	}
	if clone.FundedAt < 0 {
		return nil, fmt.Errorf("escrow funding time must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}

var (
	ErrAlreadyFunded   = coreerrors.New(coreerrors.KindState, "already_funded", "escrow: already funded")
	ErrNotFunded       = coreerrors.New(coreerrors.KindState, "not_funded", "escrow: not funded")
	ErrAlreadyReleased = coreerrors.New(coreerrors.KindState, "already_released", "escrow: already released")
	ErrNotAuthorized   = coreerrors.New(coreerrors.KindAuthorization, "not_authorized", "escrow: caller not authorized")
	ErrInvalidAmount   = coreerrors.New(coreerrors.KindValidation, "invalid_amount", "escrow: amount must be positive")
)
