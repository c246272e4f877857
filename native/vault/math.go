package vault

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

var (
	errDivisionByZero    = errors.New("vault math: division by zero")
	errDivisionInvariant = errors.New("vault math: quotient invariant violated")
	errOverflow          = errors.New("vault math: intermediate value exceeds uint64")
)

// MaxHealthFactor is the sentinel returned for a vault with zero debt. A vault
// that owes nothing is treated as infinitely healthy.
const MaxHealthFactor = math.MaxUint64

// IntegerDivide computes floor(x / y) and fails hard on a zero denominator.
// The quotient/remainder invariant x == q*y + r with r < y is re-checked after
// the divide; the circuit this arithmetic mirrors asserts it as an explicit
// constraint rather than trusting the divider.
func IntegerDivide(x, y uint64) (uint64, error) {
	if y == 0 {
		return 0, errDivisionByZero
	}
	q := x / y
	r := x - q*y
	if r >= y || q*y+r != x {
		return 0, errDivisionInvariant
	}
	return q, nil
}

// SafeDivide behaves like IntegerDivide except a zero denominator yields the
// MaxHealthFactor sentinel instead of an error.
func SafeDivide(numerator, denominator uint64) uint64 {
	if denominator == 0 {
		return MaxHealthFactor
	}
	return numerator / denominator
}

// MulDiv computes floor(a * b / den) with a 256-bit intermediate product, so
// the multiplication never wraps before the divide. The result must still fit
// a uint64 once narrowed.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, errDivisionByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := new(uint256.Int).Div(product, uint256.NewInt(den))
	if !quotient.IsUint64() {
		return 0, errOverflow
	}
	return quotient.Uint64(), nil
}
