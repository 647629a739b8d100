package slamm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every fee and share expressed in bps.
const BasisPoints = 10_000

var (
	bpsDenominator = uint256.NewInt(BasisPoints)
	// RatePrecision scales locked rates and per-unit indices.
	RatePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

func toU256Pair(a, b *big.Int) (*uint256.Int, *uint256.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// CheckedAdd returns a+b, failing when the sum leaves the 256-bit range.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	x, y, err := toU256Pair(a, b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum.ToBig(), nil
}

// CheckedSub returns a-b, failing on underflow.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	x, y, err := toU256Pair(a, b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrNegativeValue
	}
	return diff.ToBig(), nil
}

// CheckedMul returns a*b, failing when the product leaves the 256-bit range.
func CheckedMul(a, b *big.Int) (*big.Int, error) {
	x, y, err := toU256Pair(a, b)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.ToBig(), nil
}

// MulDiv returns floor(a*b/d) using a 512-bit intermediate product.
func MulDiv(a, b, d *big.Int) (*big.Int, error) {
	q, _, err := mulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	return q.ToBig(), nil
}

// MulDivUp returns ceil(a*b/d).
func MulDivUp(a, b, d *big.Int) (*big.Int, error) {
	q, inexact, err := mulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	if inexact {
		var overflow bool
		q, overflow = new(uint256.Int).AddOverflow(q, uint256.NewInt(1))
		if overflow {
			return nil, ErrArithmeticOverflow
		}
	}
	return q.ToBig(), nil
}

func mulDiv(a, b, d *big.Int) (*uint256.Int, bool, error) {
	x, y, err := toU256Pair(a, b)
	if err != nil {
		return nil, false, err
	}
	den, err := toU256(d)
	if err != nil {
		return nil, false, err
	}
	if den.IsZero() {
		return nil, false, ErrDivisionByZero
	}
	q, overflow := new(uint256.Int).MulDivOverflow(x, y, den)
	if overflow {
		return nil, false, ErrArithmeticOverflow
	}
	rem := new(uint256.Int).MulMod(x, y, den)
	return q, !rem.IsZero(), nil
}

// ApplyBps returns floor(amount*bps/10000).
func ApplyBps(amount *big.Int, bps uint32) (*big.Int, error) {
	x, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	q, overflow := new(uint256.Int).MulDivOverflow(x, uint256.NewInt(uint64(bps)), bpsDenominator)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return q.ToBig(), nil
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
