package slamm

import (
	"fmt"
	"math/big"
)

// Pool is the bin-segmented constant-product market of one sovereign. Base
// held for LP and creator fees is tracked by the fee counters and sits outside
// BaseReserve; bin bonuses are paid back into BaseReserve so sells can redeem
// them.
type Pool struct {
	TotalSupply  *big.Int
	BaseReserve  *big.Int
	AssetReserve *big.Int
	// InitialReserve is the solvency floor. It drops to zero when the lock
	// is released at unwind.
	InitialReserve *big.Int
	Ledger         *Ledger

	TotalFeesCollected *big.Int
	LpFeesAccrued      *big.Int
	CreatorFeesAccrued *big.Int
	BinBonusCredited   *big.Int
	LpFeesClaimed      *big.Int
	CreatorFeesClaimed *big.Int
	// LpFeeIndex is cumulative LP fees per basis point of share, scaled by
	// RatePrecision.
	LpFeeIndex *big.Int

	RecoveryTarget   *big.Int
	TotalRecovered   *big.Int
	RecoveryComplete bool
	LockReleased     *big.Int
}

// NewPool seeds a pool with initialReserve base against totalSupply asset
// split into binCount bins.
func NewPool(totalSupply, initialReserve *big.Int, binCount uint32, recoveryTarget *big.Int) (*Pool, error) {
	if !isPositive(initialReserve) {
		return nil, fmt.Errorf("%w: initial reserve must be positive", ErrInvalidAmount)
	}
	if recoveryTarget == nil || recoveryTarget.Sign() < 0 {
		return nil, fmt.Errorf("%w: recovery target", ErrInvalidAmount)
	}
	ledger, err := NewLedger(totalSupply, binCount)
	if err != nil {
		return nil, err
	}
	return &Pool{
		TotalSupply:        new(big.Int).Set(totalSupply),
		BaseReserve:        new(big.Int).Set(initialReserve),
		AssetReserve:       new(big.Int).Set(totalSupply),
		InitialReserve:     new(big.Int).Set(initialReserve),
		Ledger:             ledger,
		TotalFeesCollected: big.NewInt(0),
		LpFeesAccrued:      big.NewInt(0),
		CreatorFeesAccrued: big.NewInt(0),
		BinBonusCredited:   big.NewInt(0),
		LpFeesClaimed:      big.NewInt(0),
		CreatorFeesClaimed: big.NewInt(0),
		LpFeeIndex:         big.NewInt(0),
		RecoveryTarget:     new(big.Int).Set(recoveryTarget),
		TotalRecovered:     big.NewInt(0),
		RecoveryComplete:   recoveryTarget.Sign() == 0,
		LockReleased:       big.NewInt(0),
	}, nil
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalSupply = newBigInt(p.TotalSupply)
	clone.BaseReserve = newBigInt(p.BaseReserve)
	clone.AssetReserve = newBigInt(p.AssetReserve)
	clone.InitialReserve = newBigInt(p.InitialReserve)
	clone.Ledger = p.Ledger.Clone()
	clone.TotalFeesCollected = newBigInt(p.TotalFeesCollected)
	clone.LpFeesAccrued = newBigInt(p.LpFeesAccrued)
	clone.CreatorFeesAccrued = newBigInt(p.CreatorFeesAccrued)
	clone.BinBonusCredited = newBigInt(p.BinBonusCredited)
	clone.LpFeesClaimed = newBigInt(p.LpFeesClaimed)
	clone.CreatorFeesClaimed = newBigInt(p.CreatorFeesClaimed)
	clone.LpFeeIndex = newBigInt(p.LpFeeIndex)
	clone.RecoveryTarget = newBigInt(p.RecoveryTarget)
	clone.TotalRecovered = newBigInt(p.TotalRecovered)
	clone.LockReleased = newBigInt(p.LockReleased)
	return &clone
}

// SpotPrice is the marginal curve price of one asset unit in base, scaled by
// RatePrecision.
func (p *Pool) SpotPrice() *big.Int {
	if p == nil || !isPositive(p.AssetReserve) {
		return big.NewInt(0)
	}
	price, err := MulDiv(p.BaseReserve, RatePrecision, p.AssetReserve)
	if err != nil {
		return big.NewInt(0)
	}
	return price
}

// Summary exposes the aggregate bin state.
func (p *Pool) Summary() BinSummary {
	if p == nil {
		return (*Ledger)(nil).Summary()
	}
	return p.Ledger.Summary()
}

// LpOwed returns the LP fees accrued to a position of shareBps since its
// checkpoint, along with the checkpoint to store once paid.
func (p *Pool) LpOwed(shareBps uint32, checkpoint *big.Int) (*big.Int, *big.Int, error) {
	if shareBps > BasisPoints {
		return nil, nil, fmt.Errorf("%w: share %d bps", ErrShareConservation, shareBps)
	}
	current := newBigInt(p.LpFeeIndex)
	last := newBigInt(checkpoint)
	if last.Cmp(current) > 0 {
		return nil, nil, fmt.Errorf("%w: checkpoint ahead of fee index", ErrNegativeValue)
	}
	delta := new(big.Int).Sub(current, last)
	owed, err := MulDiv(delta, new(big.Int).SetUint64(uint64(shareBps)), RatePrecision)
	if err != nil {
		return nil, nil, err
	}
	return owed, current, nil
}

// PayLp records amount as claimed from the LP fee pot.
func (p *Pool) PayLp(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	claimed, err := CheckedAdd(p.LpFeesClaimed, amount)
	if err != nil {
		return err
	}
	if claimed.Cmp(p.LpFeesAccrued) > 0 {
		return ErrInsufficientFees
	}
	p.LpFeesClaimed = claimed
	return nil
}

// CreatorOwed reports the unclaimed creator fees.
func (p *Pool) CreatorOwed() *big.Int {
	return new(big.Int).Sub(newBigInt(p.CreatorFeesAccrued), newBigInt(p.CreatorFeesClaimed))
}

// PayCreator marks every accrued creator fee as claimed and returns the
// amount paid.
func (p *Pool) PayCreator() (*big.Int, error) {
	owed := p.CreatorOwed()
	if owed.Sign() <= 0 {
		return nil, ErrInsufficientFees
	}
	p.CreatorFeesClaimed = newBigInt(p.CreatorFeesAccrued)
	return owed, nil
}

// ReleaseLock removes the permanent reserve lock and returns the base freed
// for the unwind pool. Outstanding bin claims stay backed by the remaining
// reserve.
func (p *Pool) ReleaseLock() (*big.Int, error) {
	released := newBigInt(p.InitialReserve)
	reserve, err := CheckedSub(p.BaseReserve, released)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve below lock", ErrSolvencyViolation)
	}
	p.BaseReserve = reserve
	p.InitialReserve = big.NewInt(0)
	p.LockReleased = released
	return new(big.Int).Set(released), nil
}

// CheckInvariants verifies the conservation properties that must hold
// between trades.
func (p *Pool) CheckInvariants() error {
	if p == nil || p.Ledger == nil {
		return ErrPoolNotInitialised
	}
	if p.BaseReserve.Cmp(p.InitialReserve) < 0 {
		return fmt.Errorf("%w: reserve %s below floor %s", ErrSolvencyViolation, p.BaseReserve, p.InitialReserve)
	}
	if p.Ledger.Capacity().Cmp(p.TotalSupply) != 0 {
		return fmt.Errorf("%w: bin capacity differs from supply", ErrShareConservation)
	}
	allocated := p.Ledger.Allocated()
	accounted := new(big.Int).Add(allocated, p.Ledger.FillableCapacity())
	if accounted.Cmp(p.TotalSupply) != 0 {
		return fmt.Errorf("%w: allocation plus unfilled capacity %s differs from supply %s", ErrShareConservation, accounted, p.TotalSupply)
	}
	circulating := new(big.Int).Add(p.AssetReserve, allocated)
	if circulating.Cmp(p.TotalSupply) != 0 {
		return fmt.Errorf("%w: reserve plus allocation %s differs from supply %s", ErrShareConservation, circulating, p.TotalSupply)
	}
	routed := new(big.Int).Add(p.LpFeesAccrued, p.CreatorFeesAccrued)
	routed.Add(routed, p.BinBonusCredited)
	if routed.Cmp(p.TotalFeesCollected) != 0 {
		return fmt.Errorf("%w: fees routed %s of %s", ErrShareConservation, routed, p.TotalFeesCollected)
	}
	if p.LpFeesClaimed.Cmp(p.LpFeesAccrued) > 0 || p.CreatorFeesClaimed.Cmp(p.CreatorFeesAccrued) > 0 {
		return fmt.Errorf("%w: fees claimed beyond accrual", ErrInsufficientFees)
	}
	return nil
}
