package slamm

import (
	"fmt"
	"math/big"
)

// FeeMode selects how a trade fee is split.
type FeeMode uint8

const (
	// FeeModeRecovery routes the whole fee to liquidity providers.
	FeeModeRecovery FeeMode = iota
	// FeeModeActive applies the bin, creator and LP waterfall.
	FeeModeActive
)

func (m FeeMode) String() string {
	switch m {
	case FeeModeRecovery:
		return "recovery"
	case FeeModeActive:
		return "active"
	default:
		return fmt.Sprintf("FeeMode(%d)", uint8(m))
	}
}

// FeeSchedule is the fee configuration applied to a single trade.
type FeeSchedule struct {
	SwapFeeBps         uint32
	BinFeeShareBps     uint32
	CreatorFeeShareBps uint32
	Mode               FeeMode
}

// Validate ensures each share is expressed within the basis point range.
func (s FeeSchedule) Validate() error {
	if s.SwapFeeBps > BasisPoints {
		return fmt.Errorf("%w: swap fee %d bps", ErrInvalidAmount, s.SwapFeeBps)
	}
	if s.BinFeeShareBps > BasisPoints {
		return fmt.Errorf("%w: bin share %d bps", ErrInvalidAmount, s.BinFeeShareBps)
	}
	if s.CreatorFeeShareBps > BasisPoints {
		return fmt.Errorf("%w: creator share %d bps", ErrInvalidAmount, s.CreatorFeeShareBps)
	}
	if s.Mode != FeeModeRecovery && s.Mode != FeeModeActive {
		return fmt.Errorf("%w: unknown fee mode %d", ErrInvalidAmount, s.Mode)
	}
	return nil
}

// FeeSplit records where one trade fee went. Total always equals
// Lp + Creator + Bin.
type FeeSplit struct {
	Total   *big.Int
	Lp      *big.Int
	Creator *big.Int
	Bin     *big.Int
	// BinCredits lists the bonus actually credited per bin.
	BinCredits []Allocation
}

func zeroSplit() FeeSplit {
	return FeeSplit{
		Total:   big.NewInt(0),
		Lp:      big.NewInt(0),
		Creator: big.NewInt(0),
		Bin:     big.NewInt(0),
	}
}

// distributeFees splits fee according to the schedule, credits bin bonuses to
// the touched bins and books the result on the pool. Bin shares that cannot be
// credited and every rounding remainder fall through to LPs.
func (p *Pool) distributeFees(fee *big.Int, touched []Allocation, schedule FeeSchedule) (FeeSplit, error) {
	split := zeroSplit()
	if !isPositive(fee) {
		return split, nil
	}
	split.Total = new(big.Int).Set(fee)
	if schedule.Mode == FeeModeRecovery {
		split.Lp = new(big.Int).Set(fee)
		return split, p.bookFees(split)
	}

	binPart, err := ApplyBps(fee, schedule.BinFeeShareBps)
	if err != nil {
		return split, err
	}
	rest := new(big.Int).Sub(fee, binPart)
	creator, err := ApplyBps(rest, schedule.CreatorFeeShareBps)
	if err != nil {
		return split, err
	}
	lp := new(big.Int).Sub(rest, creator)

	credited, err := p.creditBins(binPart, touched, &split)
	if err != nil {
		return split, err
	}
	lp.Add(lp, new(big.Int).Sub(binPart, credited))

	split.Creator = creator
	split.Bin = credited
	split.Lp = lp
	return split, p.bookFees(split)
}

func (p *Pool) creditBins(binPart *big.Int, touched []Allocation, split *FeeSplit) (*big.Int, error) {
	credited := big.NewInt(0)
	if binPart.Sign() == 0 {
		return credited, nil
	}
	volume := big.NewInt(0)
	for _, alloc := range touched {
		volume.Add(volume, alloc.Asset)
	}
	if volume.Sign() == 0 {
		return credited, nil
	}
	for _, alloc := range touched {
		share, err := MulDiv(binPart, alloc.Asset, volume)
		if err != nil {
			return nil, err
		}
		ok, err := p.Ledger.CreditFeeBonus(alloc.Index, share)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		credited.Add(credited, share)
		split.BinCredits = append(split.BinCredits, Allocation{Index: alloc.Index, Asset: new(big.Int).Set(alloc.Asset), Base: share})
	}
	return credited, nil
}

func (p *Pool) bookFees(split FeeSplit) error {
	conserved := new(big.Int).Add(split.Lp, split.Creator)
	conserved.Add(conserved, split.Bin)
	if conserved.Cmp(split.Total) != 0 {
		return fmt.Errorf("%w: fee %s split into %s", ErrShareConservation, split.Total, conserved)
	}
	var err error
	if p.TotalFeesCollected, err = CheckedAdd(p.TotalFeesCollected, split.Total); err != nil {
		return err
	}
	if p.LpFeesAccrued, err = CheckedAdd(p.LpFeesAccrued, split.Lp); err != nil {
		return err
	}
	if p.CreatorFeesAccrued, err = CheckedAdd(p.CreatorFeesAccrued, split.Creator); err != nil {
		return err
	}
	if p.BinBonusCredited, err = CheckedAdd(p.BinBonusCredited, split.Bin); err != nil {
		return err
	}
	if p.TotalRecovered, err = CheckedAdd(p.TotalRecovered, split.Lp); err != nil {
		return err
	}
	perBps, err := MulDiv(split.Lp, RatePrecision, big.NewInt(BasisPoints))
	if err != nil {
		return err
	}
	if p.LpFeeIndex, err = CheckedAdd(p.LpFeeIndex, perBps); err != nil {
		return err
	}
	if !p.RecoveryComplete && p.TotalRecovered.Cmp(p.RecoveryTarget) >= 0 {
		p.RecoveryComplete = true
	}
	return nil
}
