package slamm

import (
	"errors"
	"math/big"
	"testing"
)

func TestMulDivRounding(t *testing.T) {
	down, err := MulDiv(bi(10), bi(10), bi(3))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	up, err := MulDivUp(bi(10), bi(10), bi(3))
	if err != nil {
		t.Fatalf("muldivup: %v", err)
	}
	if down.Cmp(bi(33)) != 0 || up.Cmp(bi(34)) != 0 {
		t.Fatalf("got floor %s ceil %s", down, up)
	}
	exact, err := MulDivUp(bi(10), bi(9), bi(3))
	if err != nil {
		t.Fatalf("muldivup: %v", err)
	}
	if exact.Cmp(bi(30)) != 0 {
		t.Fatalf("exact division rounded to %s", exact)
	}
	if _, err := MulDiv(bi(1), bi(1), bi(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestCheckedArithmeticBounds(t *testing.T) {
	maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := CheckedAdd(maxU256, bi(1)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := CheckedMul(maxU256, bi(2)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := CheckedSub(bi(1), bi(2)); !errors.Is(err, ErrNegativeValue) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := CheckedAdd(bi(-1), bi(2)); !errors.Is(err, ErrNegativeValue) {
		t.Fatalf("expected negative rejection, got %v", err)
	}
	// The intermediate product may exceed 256 bits as long as the quotient fits.
	q, err := MulDiv(maxU256, bi(4), bi(8))
	if err != nil {
		t.Fatalf("wide muldiv: %v", err)
	}
	if q.Cmp(new(big.Int).Rsh(maxU256, 1)) != 0 {
		t.Fatalf("wide muldiv = %s", q)
	}
}

func TestApplyBps(t *testing.T) {
	cases := []struct {
		amount int64
		bps    uint32
		want   int64
	}{
		{200_000_000, 100, 2_000_000},
		{99, 100, 0},
		{12345, 10_000, 12345},
		{12345, 0, 0},
	}
	for _, tc := range cases {
		got, err := ApplyBps(bi(tc.amount), tc.bps)
		if err != nil {
			t.Fatalf("apply %d@%d: %v", tc.amount, tc.bps, err)
		}
		if got.Cmp(bi(tc.want)) != 0 {
			t.Fatalf("apply %d@%d = %s want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}
