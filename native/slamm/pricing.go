package slamm

import (
	"fmt"
	"math/big"
)

// BuyQuote describes a buy priced on the constant-product curve.
type BuyQuote struct {
	BaseIn      *big.Int
	Fee         *big.Int
	BaseForPool *big.Int
	AssetOut    *big.Int
	Fills       []Allocation
	Split       FeeSplit
	// PriceBefore and PriceAfter are spot prices scaled by RatePrecision.
	PriceBefore *big.Int
	PriceAfter  *big.Int
}

// SellQuote describes a sell redeemed against locked bin rates.
type SellQuote struct {
	AssetIn   *big.Int
	GrossBase *big.Int
	Fee       *big.Int
	BaseOut   *big.Int
	Drains    []Allocation
	Split     FeeSplit
}

// QuoteBuy prices baseIn without mutating the pool. It runs the same path as
// Buy on a copy, so a quote that succeeds commits identically.
func (p *Pool) QuoteBuy(baseIn *big.Int, schedule FeeSchedule) (*BuyQuote, error) {
	return p.Clone().applyBuy(baseIn, schedule)
}

// Buy executes a buy, enforcing minAssetOut. The pool is left untouched on
// any error.
func (p *Pool) Buy(baseIn, minAssetOut *big.Int, schedule FeeSchedule) (*BuyQuote, error) {
	next := p.Clone()
	quote, err := next.applyBuy(baseIn, schedule)
	if err != nil {
		return nil, err
	}
	if minAssetOut != nil && quote.AssetOut.Cmp(minAssetOut) < 0 {
		return nil, fmt.Errorf("%w: asset out %s below %s", ErrSlippageExceeded, quote.AssetOut, minAssetOut)
	}
	*p = *next
	return quote, nil
}

// QuoteSell prices assetIn without mutating the pool.
func (p *Pool) QuoteSell(assetIn *big.Int, schedule FeeSchedule) (*SellQuote, error) {
	return p.Clone().applySell(assetIn, schedule)
}

// Sell executes a sell, enforcing minBaseOut. The pool is left untouched on
// any error.
func (p *Pool) Sell(assetIn, minBaseOut *big.Int, schedule FeeSchedule) (*SellQuote, error) {
	next := p.Clone()
	quote, err := next.applySell(assetIn, schedule)
	if err != nil {
		return nil, err
	}
	if minBaseOut != nil && quote.BaseOut.Cmp(minBaseOut) < 0 {
		return nil, fmt.Errorf("%w: base out %s below %s", ErrSlippageExceeded, quote.BaseOut, minBaseOut)
	}
	*p = *next
	return quote, nil
}

func (p *Pool) applyBuy(baseIn *big.Int, schedule FeeSchedule) (*BuyQuote, error) {
	if p == nil || p.Ledger == nil || !isPositive(p.BaseReserve) {
		return nil, ErrPoolNotInitialised
	}
	if !isPositive(baseIn) {
		return nil, ErrInvalidAmount
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	fee, err := ApplyBps(baseIn, schedule.SwapFeeBps)
	if err != nil {
		return nil, err
	}
	baseForPool := new(big.Int).Sub(baseIn, fee)
	if baseForPool.Sign() == 0 {
		return nil, ErrTradeTooSmall
	}

	newBase, err := CheckedAdd(p.BaseReserve, baseForPool)
	if err != nil {
		return nil, err
	}
	// Remaining asset rounds up so the pool never gives away the remainder.
	newAsset, err := MulDivUp(p.BaseReserve, p.AssetReserve, newBase)
	if err != nil {
		return nil, err
	}
	assetOut, err := CheckedSub(p.AssetReserve, newAsset)
	if err != nil {
		return nil, err
	}
	if assetOut.Sign() == 0 {
		return nil, ErrTradeTooSmall
	}
	fills, err := p.Ledger.PlanFills(assetOut)
	if err != nil {
		return nil, err
	}

	quote := &BuyQuote{
		BaseIn:      new(big.Int).Set(baseIn),
		Fee:         fee,
		BaseForPool: baseForPool,
		AssetOut:    assetOut,
		PriceBefore: p.SpotPrice(),
	}
	apportioned := big.NewInt(0)
	for i := range fills {
		if i == len(fills)-1 {
			fills[i].Base = new(big.Int).Sub(baseForPool, apportioned)
		} else {
			share, err := MulDiv(baseForPool, fills[i].Asset, assetOut)
			if err != nil {
				return nil, err
			}
			fills[i].Base = share
		}
		apportioned.Add(apportioned, fills[i].Base)
		if err := p.Ledger.Fill(fills[i].Index, fills[i].Asset, fills[i].Base); err != nil {
			return nil, err
		}
	}
	p.BaseReserve = newBase
	p.AssetReserve = newAsset

	split, err := p.distributeFees(fee, fills, schedule)
	if err != nil {
		return nil, err
	}
	if p.BaseReserve, err = CheckedAdd(p.BaseReserve, split.Bin); err != nil {
		return nil, err
	}
	if err := p.checkSolvency(); err != nil {
		return nil, err
	}
	quote.Fills = fills
	quote.Split = split
	quote.PriceAfter = p.SpotPrice()
	return quote, nil
}

func (p *Pool) applySell(assetIn *big.Int, schedule FeeSchedule) (*SellQuote, error) {
	if p == nil || p.Ledger == nil {
		return nil, ErrPoolNotInitialised
	}
	if !isPositive(assetIn) {
		return nil, ErrInvalidAmount
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	drains, err := p.Ledger.PlanDrains(assetIn)
	if err != nil {
		return nil, err
	}
	gross := big.NewInt(0)
	for i := range drains {
		payout, err := p.Ledger.Drain(drains[i].Index, drains[i].Asset)
		if err != nil {
			return nil, err
		}
		drains[i].Base = payout
		gross.Add(gross, payout)
	}
	if gross.Sign() == 0 {
		return nil, ErrTradeTooSmall
	}
	fee, err := ApplyBps(gross, schedule.SwapFeeBps)
	if err != nil {
		return nil, err
	}
	reserve, err := CheckedSub(p.BaseReserve, gross)
	if err != nil {
		return nil, fmt.Errorf("%w: payout %s exceeds reserve %s", ErrSolvencyViolation, gross, p.BaseReserve)
	}
	p.BaseReserve = reserve
	if p.AssetReserve, err = CheckedAdd(p.AssetReserve, assetIn); err != nil {
		return nil, err
	}

	split, err := p.distributeFees(fee, drains, schedule)
	if err != nil {
		return nil, err
	}
	if p.BaseReserve, err = CheckedAdd(p.BaseReserve, split.Bin); err != nil {
		return nil, err
	}
	if err := p.checkSolvency(); err != nil {
		return nil, err
	}
	return &SellQuote{
		AssetIn:   new(big.Int).Set(assetIn),
		GrossBase: gross,
		Fee:       fee,
		BaseOut:   new(big.Int).Sub(gross, fee),
		Drains:    drains,
		Split:     split,
	}, nil
}

func (p *Pool) checkSolvency() error {
	if p.BaseReserve.Cmp(p.InitialReserve) < 0 {
		return fmt.Errorf("%w: reserve %s below floor %s", ErrSolvencyViolation, p.BaseReserve, p.InitialReserve)
	}
	return nil
}
