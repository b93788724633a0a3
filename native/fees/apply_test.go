package fees

import (
	"errors"
	"math/big"
	"testing"

	"pgregory.net/rapid"
)

func TestComputeTable(t *testing.T) {
	cases := []struct {
		name       string
		amount     int64
		percentage uint32
		fee        int64
		net        int64
	}{
		{name: "two percent of 100", amount: 100, percentage: 2, fee: 2, net: 98},
		{name: "rounds down to zero", amount: 1, percentage: 2, fee: 0, net: 1},
		{name: "auction settlement", amount: 200, percentage: 2, fee: 4, net: 196},
		{name: "zero percent", amount: 12345, percentage: 0, fee: 0, net: 12345},
		{name: "max percent", amount: 100, percentage: 99, fee: 99, net: 1},
		{name: "floor", amount: 149, percentage: 1, fee: 1, net: 148},
		{name: "zero amount", amount: 0, percentage: 50, fee: 0, net: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			split, err := Compute(big.NewInt(tc.amount), tc.percentage)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if split.Fee.Cmp(big.NewInt(tc.fee)) != 0 {
				t.Fatalf("expected fee %d got %s", tc.fee, split.Fee)
			}
			if split.Net.Cmp(big.NewInt(tc.net)) != 0 {
				t.Fatalf("expected net %d got %s", tc.net, split.Net)
			}
			if split.Gross.Cmp(big.NewInt(tc.amount)) != 0 {
				t.Fatalf("expected gross %d got %s", tc.amount, split.Gross)
			}
		})
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	if _, err := Compute(big.NewInt(100), 100); !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected ErrInvalidPercentage, got %v", err)
	}
	if _, err := Compute(big.NewInt(-1), 2); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := Compute(tooWide, 2); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for 257-bit amount, got %v", err)
	}
}

func TestComputeMaxAmountDoesNotOverflow(t *testing.T) {
	maxAmount := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	split, err := Compute(maxAmount, 99)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	expectedFee := new(big.Int).Div(new(big.Int).Mul(maxAmount, big.NewInt(99)), big.NewInt(100))
	if split.Fee.Cmp(expectedFee) != 0 {
		t.Fatalf("unexpected fee %s", split.Fee)
	}
}

func TestComputeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Uint64().Draw(t, "amount")
		percentage := rapid.Uint32Range(0, 99).Draw(t, "percentage")

		split, err := Compute(new(big.Int).SetUint64(amount), percentage)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		sum := new(big.Int).Add(split.Fee, split.Net)
		if sum.Cmp(new(big.Int).SetUint64(amount)) != 0 {
			t.Fatalf("fee %s + net %s != amount %d", split.Fee, split.Net, amount)
		}
		expected := new(big.Int).Mul(new(big.Int).SetUint64(amount), big.NewInt(int64(percentage)))
		expected.Div(expected, big.NewInt(Denominator))
		if split.Fee.Cmp(expected) != 0 {
			t.Fatalf("fee %s != floor(%d*%d/100)", split.Fee, amount, percentage)
		}
	})
}
