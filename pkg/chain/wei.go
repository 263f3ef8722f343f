package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Wei is an amount of native value in base units. One ether is 1e18 wei.
type Wei uint64

const (
	Gwei  Wei = 1_000_000_000
	Ether Wei = 1_000_000_000_000_000_000
)

// Add returns w+o or ErrOverflow.
func (w Wei) Add(o Wei) (Wei, error) {
	sum := w + o
	if sum < w {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Ether renders w in ether with no trailing zeros ("0.1", "2").
func (w Wei) Ether() string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(w)), -18).String()
}

func (w Wei) String() string {
	return fmt.Sprintf("%d wei", uint64(w))
}

// ParseEther converts a decimal ether string such as "0.2" into wei.
func ParseEther(s string) (Wei, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse ether %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse ether %q: negative amount", s)
	}
	scaled := d.Shift(18)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("parse ether %q: more precise than 1 wei", s)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("parse ether %q: %w", s, ErrOverflow)
	}
	return Wei(bi.Uint64()), nil
}

// MustEther is ParseEther for constants; it panics on malformed input.
func MustEther(s string) Wei {
	w, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return w
}
