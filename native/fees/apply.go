package fees

import (
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "nhbmarket/core/errors"
)

// Denominator is the fixed scale of fee percentages.
const Denominator = 100

var (
	// ErrInvalidPercentage is returned for percentages outside [0, 100).
	ErrInvalidPercentage = coreerrors.New(coreerrors.KindValidation, "invalid_percentage", "fees: percentage must be below 100")
	// ErrInvalidAmount is returned for negative amounts or amounts wider than 256 bits.
	ErrInvalidAmount = coreerrors.New(coreerrors.KindValidation, "invalid_fee_amount", "fees: amount out of range")
)

// MaxAmountBits is the widest amount Compute accepts.
const MaxAmountBits = 256

// Split is the outcome of applying the protocol cut to a sale amount.
type Split struct {
	Gross *big.Int
	Fee   *big.Int
	Net   *big.Int
}

// ValidatePercentage reports whether percentage is an acceptable fee setting.
func ValidatePercentage(percentage uint32) error {
	if percentage >= Denominator {
		return ErrInvalidPercentage
	}
	return nil
}

// Compute returns floor(amount*percentage/100) as the fee and the remainder as
// the seller amount. The product is evaluated in 512-bit precision so every
// 256-bit amount is supported without overflow.
func Compute(amount *big.Int, percentage uint32) (Split, error) {
	if err := ValidatePercentage(percentage); err != nil {
		return Split{}, err
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return Split{}, ErrInvalidAmount
	}
	gross, overflow := uint256.FromBig(amount)
	if overflow {
		return Split{}, ErrInvalidAmount
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(gross, uint256.NewInt(uint64(percentage)), uint256.NewInt(Denominator))
	if overflow {
		return Split{}, ErrInvalidAmount
	}
	net := new(uint256.Int).Sub(gross, fee)
	return Split{
		Gross: gross.ToBig(),
		Fee:   fee.ToBig(),
		Net:   net.ToBig(),
	}, nil
}
