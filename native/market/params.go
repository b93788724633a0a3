package market

import (
	"fmt"
	"time"

	"nhbmarket/crypto"
	"nhbmarket/native/fees"
)

// CustodyModuleName seeds the default custody account.
const CustodyModuleName = "nhbmarket/custody"

// DefaultEscrowDuration is one day of logical time in seconds.
const DefaultEscrowDuration int64 = 86400

// DefaultLockTimeout bounds how long a command waits for the engine lock.
const DefaultLockTimeout = 5 * time.Second

// Params configures a marketplace engine.
type Params struct {
	// Custody holds listed assets and escrowed funds.
	Custody [20]byte
	// Treasury receives protocol fees.
	Treasury [20]byte
	// FeeAuthority is the only actor allowed to change the fee percentage.
	FeeAuthority [20]byte
	// DefaultFeePercentage applies until the authority stores a value.
	DefaultFeePercentage uint32
	// EscrowDuration is added to the start time of escrow-timeout auctions.
	EscrowDuration int64
	// LockTimeout bounds the wait for the engine lock. Zero selects
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// DefaultParams returns parameters with the module custody account, a 2% fee
// and a one day escrow duration. Treasury and fee authority are left unset.
func DefaultParams() Params {
	return Params{
		Custody:              crypto.ModuleAddress(CustodyModuleName),
		DefaultFeePercentage: 2,
		EscrowDuration:       DefaultEscrowDuration,
		LockTimeout:          DefaultLockTimeout,
	}
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	var zero [20]byte
	if p.Custody == zero {
		return fmt.Errorf("market: custody address required")
	}
	if p.Treasury == zero {
		return fmt.Errorf("market: treasury address required")
	}
	if p.Treasury == p.Custody {
		return fmt.Errorf("market: treasury must differ from custody")
	}
	if p.FeeAuthority == zero {
		return fmt.Errorf("market: fee authority required")
	}
	if err := fees.ValidatePercentage(p.DefaultFeePercentage); err != nil {
		return fmt.Errorf("market: default fee: %w", err)
	}
	if p.EscrowDuration <= 0 {
		return fmt.Errorf("market: escrow duration must be positive")
	}
	if p.LockTimeout < 0 {
		return fmt.Errorf("market: lock timeout must not be negative")
	}
	return nil
}
