package slamm

import (
	"fmt"
	"math/big"
)

// Bin is a slice of the asset supply. Buyers fill it at curve prices; once
// full its average purchase price is locked and every later sell against the
// bin redeems at that rate plus the accrued fee bonus. Units sold back into a
// locked bin leave its capacity and reopen at the tail of the ledger.
type Bin struct {
	Index          uint32
	Capacity       *big.Int
	AssetAllocated *big.Int
	BaseReceived   *big.Int
	// LockedRate is BaseReceived/Capacity scaled by RatePrecision. Zero
	// until Locked is set and immutable afterwards.
	LockedRate *big.Int
	// FeeBonusAccrued is the cumulative base credited to the bin.
	FeeBonusAccrued *big.Int
	// BonusPerUnit is the cumulative bonus per allocated unit, scaled by
	// RatePrecision.
	BonusPerUnit *big.Int
	Locked       bool
	// Drained is the cumulative asset sold back out of the bin.
	Drained *big.Int
}

// Clone returns a deep copy of the bin.
func (b *Bin) Clone() *Bin {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Capacity = newBigInt(b.Capacity)
	clone.AssetAllocated = newBigInt(b.AssetAllocated)
	clone.BaseReceived = newBigInt(b.BaseReceived)
	clone.LockedRate = newBigInt(b.LockedRate)
	clone.FeeBonusAccrued = newBigInt(b.FeeBonusAccrued)
	clone.BonusPerUnit = newBigInt(b.BonusPerUnit)
	clone.Drained = newBigInt(b.Drained)
	return &clone
}

// remaining reports the capacity still open to buys. A locked bin's capacity
// always equals its allocation, so it has none.
func (b *Bin) remaining() *big.Int {
	if b.Locked {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(b.Capacity, b.AssetAllocated)
}

// RedemptionRate is the scaled base paid per unit sold against the bin.
func (b *Bin) RedemptionRate() *big.Int {
	if !b.Locked {
		return big.NewInt(0)
	}
	return new(big.Int).Add(b.LockedRate, b.BonusPerUnit)
}

// Allocation is the slice of a trade routed through one bin.
type Allocation struct {
	Index int
	Asset *big.Int
	Base  *big.Int
}

// Ledger is the ordered bin collection of a pool.
type Ledger struct {
	Bins []*Bin
}

// NewLedger splits totalSupply into count equal bins, the last bin absorbing
// any remainder so capacities always sum to the supply.
func NewLedger(totalSupply *big.Int, count uint32) (*Ledger, error) {
	if !isPositive(totalSupply) {
		return nil, ErrInvalidAmount
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: bin count must be positive", ErrBinIndex)
	}
	size := new(big.Int).Quo(totalSupply, big.NewInt(int64(count)))
	if size.Sign() == 0 {
		return nil, fmt.Errorf("%w: supply %s too small for %d bins", ErrInvalidAmount, totalSupply, count)
	}
	ledger := &Ledger{Bins: make([]*Bin, count)}
	for i := uint32(0); i < count; i++ {
		capacity := new(big.Int).Set(size)
		if i == count-1 {
			used := new(big.Int).Mul(size, big.NewInt(int64(count-1)))
			capacity = new(big.Int).Sub(totalSupply, used)
		}
		ledger.Bins[i] = openBin(i, capacity)
	}
	return ledger, nil
}

func openBin(index uint32, capacity *big.Int) *Bin {
	return &Bin{
		Index:           index,
		Capacity:        capacity,
		AssetAllocated:  big.NewInt(0),
		BaseReceived:    big.NewInt(0),
		LockedRate:      big.NewInt(0),
		FeeBonusAccrued: big.NewInt(0),
		BonusPerUnit:    big.NewInt(0),
		Drained:         big.NewInt(0),
	}
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := &Ledger{Bins: make([]*Bin, len(l.Bins))}
	for i, bin := range l.Bins {
		clone.Bins[i] = bin.Clone()
	}
	return clone
}

func (l *Ledger) bin(index int) (*Bin, error) {
	if l == nil || index < 0 || index >= len(l.Bins) || l.Bins[index] == nil {
		return nil, fmt.Errorf("%w: %d", ErrBinIndex, index)
	}
	return l.Bins[index], nil
}

// Fill credits assetAmount and baseAmount to an open bin and locks its rate
// once the capacity is reached.
func (l *Ledger) Fill(index int, assetAmount, baseAmount *big.Int) error {
	bin, err := l.bin(index)
	if err != nil {
		return err
	}
	if !isPositive(assetAmount) || baseAmount == nil || baseAmount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if assetAmount.Cmp(bin.remaining()) > 0 {
		return fmt.Errorf("%w: bin %d", ErrBinOverfill, index)
	}
	allocated, err := CheckedAdd(bin.AssetAllocated, assetAmount)
	if err != nil {
		return err
	}
	received, err := CheckedAdd(bin.BaseReceived, baseAmount)
	if err != nil {
		return err
	}
	var rate *big.Int
	if allocated.Cmp(bin.Capacity) == 0 {
		rate, err = MulDiv(received, RatePrecision, bin.Capacity)
		if err != nil {
			return err
		}
	}
	bin.AssetAllocated = allocated
	bin.BaseReceived = received
	if rate != nil {
		bin.LockedRate = rate
		bin.Locked = true
	}
	return nil
}

// Payout prices assetAmount against the bin without mutating it.
func (l *Ledger) Payout(index int, assetAmount *big.Int) (*big.Int, error) {
	bin, err := l.bin(index)
	if err != nil {
		return nil, err
	}
	if !bin.Locked {
		return nil, fmt.Errorf("%w: bin %d", ErrBinNotLocked, index)
	}
	if !isPositive(assetAmount) {
		return nil, ErrInvalidAmount
	}
	if assetAmount.Cmp(bin.AssetAllocated) > 0 {
		return nil, fmt.Errorf("%w: bin %d", ErrBinUnderdrain, index)
	}
	return MulDiv(assetAmount, bin.RedemptionRate(), RatePrecision)
}

// Drain removes assetAmount from a locked bin and returns the base owed for it
// at the bin's current redemption rate. The drained units move to the open
// tail of the ledger; the locked rate is untouched.
func (l *Ledger) Drain(index int, assetAmount *big.Int) (*big.Int, error) {
	payout, err := l.Payout(index, assetAmount)
	if err != nil {
		return nil, err
	}
	bin := l.Bins[index]
	bin.AssetAllocated = new(big.Int).Sub(bin.AssetAllocated, assetAmount)
	bin.Capacity = new(big.Int).Sub(bin.Capacity, assetAmount)
	bin.Drained = new(big.Int).Add(newBigInt(bin.Drained), assetAmount)
	l.reopen(assetAmount)
	return payout, nil
}

// reopen returns amount to buyable capacity: the tail bin grows while it is
// still open, otherwise a new open bin is appended.
func (l *Ledger) reopen(amount *big.Int) {
	if tail := l.Bins[len(l.Bins)-1]; !tail.Locked {
		tail.Capacity = new(big.Int).Add(tail.Capacity, amount)
		return
	}
	l.Bins = append(l.Bins, openBin(uint32(len(l.Bins)), new(big.Int).Set(amount)))
}

// CreditFeeBonus raises the redemption rate of a locked bin. It reports false
// without mutation when the bin cannot carry a bonus (unlocked or empty), so
// the caller can route the amount elsewhere.
func (l *Ledger) CreditFeeBonus(index int, baseAmount *big.Int) (bool, error) {
	bin, err := l.bin(index)
	if err != nil {
		return false, err
	}
	if !isPositive(baseAmount) || !bin.Locked || bin.AssetAllocated.Sign() == 0 {
		return false, nil
	}
	perUnit, err := MulDiv(baseAmount, RatePrecision, bin.AssetAllocated)
	if err != nil {
		return false, err
	}
	if perUnit.Sign() == 0 {
		return false, nil
	}
	accrued, err := CheckedAdd(bin.FeeBonusAccrued, baseAmount)
	if err != nil {
		return false, err
	}
	bonusIndex, err := CheckedAdd(bin.BonusPerUnit, perUnit)
	if err != nil {
		return false, err
	}
	bin.FeeBonusAccrued = accrued
	bin.BonusPerUnit = bonusIndex
	return true, nil
}

// PlanFills splits assetOut across open bins, lowest index first.
func (l *Ledger) PlanFills(assetOut *big.Int) ([]Allocation, error) {
	if !isPositive(assetOut) {
		return nil, ErrInvalidAmount
	}
	if assetOut.Cmp(l.FillableCapacity()) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	left := new(big.Int).Set(assetOut)
	plan := make([]Allocation, 0, 2)
	for i, bin := range l.Bins {
		if left.Sign() == 0 {
			break
		}
		open := bin.remaining()
		if open.Sign() == 0 {
			continue
		}
		take := minBig(open, left)
		plan = append(plan, Allocation{Index: i, Asset: take, Base: big.NewInt(0)})
		left.Sub(left, take)
	}
	return plan, nil
}

// PlanDrains splits assetIn across locked bins holding allocation, lowest
// index first.
func (l *Ledger) PlanDrains(assetIn *big.Int) ([]Allocation, error) {
	if !isPositive(assetIn) {
		return nil, ErrInvalidAmount
	}
	if assetIn.Cmp(l.FilledSupply()) > 0 {
		return nil, ErrInsufficientFilledSupply
	}
	left := new(big.Int).Set(assetIn)
	plan := make([]Allocation, 0, 2)
	for i, bin := range l.Bins {
		if left.Sign() == 0 {
			break
		}
		if !bin.Locked || bin.AssetAllocated.Sign() == 0 {
			continue
		}
		take := minBig(bin.AssetAllocated, left)
		plan = append(plan, Allocation{Index: i, Asset: take, Base: big.NewInt(0)})
		left.Sub(left, take)
	}
	return plan, nil
}

// FillableCapacity is the asset still purchasable across open bins.
func (l *Ledger) FillableCapacity() *big.Int {
	total := big.NewInt(0)
	for _, bin := range l.Bins {
		total.Add(total, bin.remaining())
	}
	return total
}

// FilledSupply is the allocation held in locked bins, i.e. sellable supply.
func (l *Ledger) FilledSupply() *big.Int {
	total := big.NewInt(0)
	for _, bin := range l.Bins {
		if bin.Locked {
			total.Add(total, bin.AssetAllocated)
		}
	}
	return total
}

// Allocated is the asset currently in circulation across all bins.
func (l *Ledger) Allocated() *big.Int {
	total := big.NewInt(0)
	for _, bin := range l.Bins {
		total.Add(total, bin.AssetAllocated)
	}
	return total
}

// Capacity is the sum of all bin capacities.
func (l *Ledger) Capacity() *big.Int {
	total := big.NewInt(0)
	for _, bin := range l.Bins {
		total.Add(total, bin.Capacity)
	}
	return total
}

// BinSummary is the aggregate bin view exposed to observers. Raw bins stay
// internal so the representation can change.
type BinSummary struct {
	BinCount         int      `json:"binCount"`
	LockedBins       int      `json:"lockedBins"`
	ActiveBin        int      `json:"activeBin"`
	TotalCapacity    *big.Int `json:"totalCapacity"`
	FilledSupply     *big.Int `json:"filledSupply"`
	PendingSupply    *big.Int `json:"pendingSupply"`
	UnfilledCapacity *big.Int `json:"unfilledCapacity"`
	DrainedSupply    *big.Int `json:"drainedSupply"`
	// BlendedRate is the allocation-weighted redemption rate of locked bins,
	// scaled by RatePrecision.
	BlendedRate *big.Int `json:"blendedRate"`
}

// Summary aggregates the ledger for read-only consumers.
func (l *Ledger) Summary() BinSummary {
	summary := BinSummary{
		ActiveBin:        -1,
		TotalCapacity:    big.NewInt(0),
		FilledSupply:     big.NewInt(0),
		PendingSupply:    big.NewInt(0),
		UnfilledCapacity: big.NewInt(0),
		DrainedSupply:    big.NewInt(0),
		BlendedRate:      big.NewInt(0),
	}
	if l == nil {
		return summary
	}
	summary.BinCount = len(l.Bins)
	weighted := big.NewInt(0)
	for i, bin := range l.Bins {
		summary.TotalCapacity.Add(summary.TotalCapacity, bin.Capacity)
		if bin.Locked {
			summary.LockedBins++
			summary.FilledSupply.Add(summary.FilledSupply, bin.AssetAllocated)
			summary.DrainedSupply.Add(summary.DrainedSupply, newBigInt(bin.Drained))
			weighted.Add(weighted, new(big.Int).Mul(bin.AssetAllocated, bin.RedemptionRate()))
			continue
		}
		if summary.ActiveBin < 0 {
			summary.ActiveBin = i
		}
		summary.PendingSupply.Add(summary.PendingSupply, bin.AssetAllocated)
		summary.UnfilledCapacity.Add(summary.UnfilledCapacity, bin.remaining())
	}
	if summary.FilledSupply.Sign() > 0 {
		summary.BlendedRate = weighted.Quo(weighted, summary.FilledSupply)
	}
	return summary
}
