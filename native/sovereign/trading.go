package sovereign

import (
	"fmt"
	"math/big"

	"sovereign/core/events"
	"sovereign/native/slamm"
)

// feePhase is the phase whose fee rules apply. Unwinding and unwound pools
// keep charging under the phase they left.
func feePhase(sov *Sovereign) Phase {
	switch sov.Phase {
	case PhaseUnwinding, PhaseUnwound:
		return sov.Unwind.PrevPhase
	default:
		return sov.Phase
	}
}

// Schedule returns the fee schedule a trade on sov is charged under.
func Schedule(sov *Sovereign) slamm.FeeSchedule {
	schedule := slamm.FeeSchedule{
		BinFeeShareBps:     sov.BinFeeShareBps,
		CreatorFeeShareBps: sov.CreatorFeeShareBps,
	}
	if feePhase(sov) == PhaseActive {
		schedule.Mode = slamm.FeeModeActive
		schedule.SwapFeeBps = sov.ActiveSwapFeeBps
		return schedule
	}
	schedule.Mode = slamm.FeeModeRecovery
	schedule.SwapFeeBps = sov.RecoverySwapFeeBps
	return schedule
}

func checkBuy(sov *Sovereign) error {
	if sov.Phase == PhaseHalted {
		return ErrHalted
	}
	if !sov.Phase.CanBuy() || sov.Pool == nil {
		return fmt.Errorf("%w: buys closed in phase %s", ErrInvalidPhase, sov.Phase)
	}
	return nil
}

func checkSell(sov *Sovereign) error {
	if sov.Phase == PhaseHalted {
		return ErrHalted
	}
	if !sov.Phase.CanSell() || sov.Pool == nil {
		return fmt.Errorf("%w: sells closed in phase %s", ErrInvalidPhase, sov.Phase)
	}
	return nil
}

func (e *Engine) committed(id string) (*Sovereign, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	sov, ok, err := e.state.SovereignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSovereignNotFound, id)
	}
	return sov, nil
}

// QuoteBuy previews a buy against the last committed pool state.
func (e *Engine) QuoteBuy(id string, baseIn *big.Int) (*slamm.BuyQuote, error) {
	sov, err := e.committed(id)
	if err != nil {
		return nil, err
	}
	if err := checkBuy(sov); err != nil {
		return nil, err
	}
	return sov.Pool.QuoteBuy(baseIn, Schedule(sov))
}

// QuoteSell previews a sell against the last committed pool state.
func (e *Engine) QuoteSell(id string, assetIn *big.Int) (*slamm.SellQuote, error) {
	sov, err := e.committed(id)
	if err != nil {
		return nil, err
	}
	if err := checkSell(sov); err != nil {
		return nil, err
	}
	return sov.Pool.QuoteSell(assetIn, Schedule(sov))
}

// Buy spends baseIn for asset, re-pricing under the pool lock.
func (e *Engine) Buy(id string, trader [20]byte, baseIn, minAssetOut *big.Int) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if err := checkBuy(sov); err != nil {
		return nil, err
	}
	schedule := Schedule(sov)
	quote, err := sov.Pool.Buy(baseIn, minAssetOut, schedule)
	if err != nil {
		return nil, err
	}
	if err := tx.debit(trader, baseIn); err != nil {
		return nil, err
	}
	holding, err := tx.holding(trader)
	if err != nil {
		return nil, err
	}
	holding.Amount.Add(holding.Amount, quote.AssetOut)
	tx.cs.Emit(events.Trade{
		SovereignID: id,
		Trader:      trader,
		Side:        "buy",
		BaseAmount:  quote.BaseIn,
		AssetAmount: quote.AssetOut,
		Fee:         quote.Fee,
		LpFee:       quote.Split.Lp,
		CreatorFee:  quote.Split.Creator,
		BinBonus:    quote.Split.Bin,
		Phase:       sov.Phase.String(),
	}.Event())
	tx.advanceRecovery()
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("buy", trader)
	receipt.BaseIn = quote.BaseIn
	receipt.AssetOut = quote.AssetOut
	receipt.Fee = quote.Fee
	return receipt, nil
}

// Sell redeems assetIn against locked bin rates.
func (e *Engine) Sell(id string, trader [20]byte, assetIn, minBaseOut *big.Int) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if err := checkSell(sov); err != nil {
		return nil, err
	}
	if assetIn == nil || assetIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	holding, err := tx.holding(trader)
	if err != nil {
		return nil, err
	}
	if holding.Amount.Cmp(assetIn) < 0 {
		return nil, fmt.Errorf("%w: have %s", ErrInsufficientAsset, holding.Amount)
	}
	quote, err := sov.Pool.Sell(assetIn, minBaseOut, Schedule(sov))
	if err != nil {
		return nil, err
	}
	holding.Amount.Sub(holding.Amount, assetIn)
	if err := tx.credit(trader, quote.BaseOut); err != nil {
		return nil, err
	}
	tx.cs.Emit(events.Trade{
		SovereignID: id,
		Trader:      trader,
		Side:        "sell",
		BaseAmount:  quote.BaseOut,
		AssetAmount: quote.AssetIn,
		Fee:         quote.Fee,
		LpFee:       quote.Split.Lp,
		CreatorFee:  quote.Split.Creator,
		BinBonus:    quote.Split.Bin,
		Phase:       sov.Phase.String(),
	}.Event())
	tx.advanceRecovery()
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("sell", trader)
	receipt.AssetIn = quote.AssetIn
	receipt.BaseOut = quote.BaseOut
	receipt.Fee = quote.Fee
	return receipt, nil
}

// advanceRecovery moves a recovering pool to active once LPs are repaid.
func (tx *txn) advanceRecovery() {
	if tx.sov.Phase == PhaseRecovery && tx.sov.Pool.RecoveryComplete {
		tx.setPhase(PhaseActive, "recovery target reached")
	}
}
