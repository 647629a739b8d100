package slamm

import (
	"errors"
	"math/big"
	"testing"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func recoverySchedule() FeeSchedule {
	return FeeSchedule{SwapFeeBps: 100, BinFeeShareBps: 2000, CreatorFeeShareBps: 2000, Mode: FeeModeRecovery}
}

func activeSchedule() FeeSchedule {
	s := recoverySchedule()
	s.Mode = FeeModeActive
	return s
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	pool, err := NewPool(bi(1000), bi(1_000_000_000), 10, bi(1_000_000_000))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool
}

func mustInvariants(t *testing.T, pool *Pool) {
	t.Helper()
	if err := pool.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestNewLedgerRemainderToLastBin(t *testing.T) {
	ledger, err := NewLedger(bi(1003), 10)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	for i := 0; i < 9; i++ {
		if ledger.Bins[i].Capacity.Cmp(bi(100)) != 0 {
			t.Fatalf("bin %d capacity %s", i, ledger.Bins[i].Capacity)
		}
	}
	if ledger.Bins[9].Capacity.Cmp(bi(103)) != 0 {
		t.Fatalf("last bin capacity %s", ledger.Bins[9].Capacity)
	}
	if _, err := NewLedger(bi(5), 10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for tiny supply, got %v", err)
	}
}

func TestBuyScenarioTenBins(t *testing.T) {
	pool := newTestPool(t)
	quote, err := pool.Buy(bi(200_000_000), nil, recoverySchedule())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if quote.Fee.Cmp(bi(2_000_000)) != 0 {
		t.Fatalf("fee %s", quote.Fee)
	}
	if quote.AssetOut.Cmp(bi(165)) != 0 {
		t.Fatalf("asset out %s", quote.AssetOut)
	}
	bin0 := pool.Ledger.Bins[0]
	if !bin0.Locked || bin0.AssetAllocated.Cmp(bi(100)) != 0 {
		t.Fatalf("bin0 not filled: %+v", bin0)
	}
	if bin0.BaseReceived.Cmp(bi(120_000_000)) != 0 {
		t.Fatalf("bin0 base %s", bin0.BaseReceived)
	}
	wantRate := new(big.Int).Mul(bi(1_200_000), RatePrecision)
	if bin0.LockedRate.Cmp(wantRate) != 0 {
		t.Fatalf("bin0 rate %s want %s", bin0.LockedRate, wantRate)
	}
	bin1 := pool.Ledger.Bins[1]
	if bin1.Locked || bin1.AssetAllocated.Cmp(bi(65)) != 0 || bin1.BaseReceived.Cmp(bi(78_000_000)) != 0 {
		t.Fatalf("bin1 state: %+v", bin1)
	}
	if pool.LpFeesAccrued.Cmp(bi(2_000_000)) != 0 || pool.CreatorFeesAccrued.Sign() != 0 {
		t.Fatalf("recovery fees must go to lp: lp=%s creator=%s", pool.LpFeesAccrued, pool.CreatorFeesAccrued)
	}
	summary := pool.Summary()
	if summary.LockedBins != 1 || summary.ActiveBin != 1 || summary.FilledSupply.Cmp(bi(100)) != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	mustInvariants(t, pool)
}

func TestQuoteDoesNotMutate(t *testing.T) {
	pool := newTestPool(t)
	before := pool.Clone()
	quote, err := pool.QuoteBuy(bi(200_000_000), recoverySchedule())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if pool.BaseReserve.Cmp(before.BaseReserve) != 0 || pool.Ledger.Allocated().Sign() != 0 {
		t.Fatalf("quote mutated pool")
	}
	executed, err := pool.Buy(bi(200_000_000), quote.AssetOut, recoverySchedule())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if executed.AssetOut.Cmp(quote.AssetOut) != 0 {
		t.Fatalf("quote %s differs from execution %s", quote.AssetOut, executed.AssetOut)
	}
}

func TestBuySlippageLeavesPoolUntouched(t *testing.T) {
	pool := newTestPool(t)
	_, err := pool.Buy(bi(200_000_000), bi(166), recoverySchedule())
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected slippage error, got %v", err)
	}
	if pool.Ledger.Allocated().Sign() != 0 || pool.BaseReserve.Cmp(bi(1_000_000_000)) != 0 {
		t.Fatalf("failed buy mutated pool")
	}
}

func TestBuyErrors(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(0), nil, recoverySchedule()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := pool.Buy(bi(50), nil, recoverySchedule()); !errors.Is(err, ErrTradeTooSmall) {
		t.Fatalf("expected trade too small, got %v", err)
	}
	plan, err := pool.Ledger.PlanFills(new(big.Int).Add(pool.Ledger.FillableCapacity(), bi(1)))
	if !errors.Is(err, ErrInsufficientLiquidity) || plan != nil {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestSellErrors(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Sell(bi(1), nil, recoverySchedule()); !errors.Is(err, ErrInsufficientFilledSupply) {
		t.Fatalf("expected insufficient filled supply, got %v", err)
	}
	if _, err := pool.Buy(bi(200_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// bin1 is still filling; only bin0's 100 units are sellable.
	if _, err := pool.Sell(bi(101), nil, recoverySchedule()); !errors.Is(err, ErrInsufficientFilledSupply) {
		t.Fatalf("expected insufficient filled supply, got %v", err)
	}
}

func TestSellRedeemsAtLockedRate(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(200_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	quote, err := pool.Sell(bi(10), nil, recoverySchedule())
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if quote.GrossBase.Cmp(bi(12_000_000)) != 0 {
		t.Fatalf("gross %s", quote.GrossBase)
	}
	if quote.Fee.Cmp(bi(120_000)) != 0 || quote.BaseOut.Cmp(bi(11_880_000)) != 0 {
		t.Fatalf("fee %s out %s", quote.Fee, quote.BaseOut)
	}
	if pool.Ledger.Bins[0].AssetAllocated.Cmp(bi(90)) != 0 {
		t.Fatalf("bin0 allocation %s", pool.Ledger.Bins[0].AssetAllocated)
	}
	mustInvariants(t, pool)
}

func TestLockedBinNotRefilled(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(200_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := pool.Sell(bi(50), nil, recoverySchedule()); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if err := pool.Ledger.Fill(0, bi(1), bi(1)); !errors.Is(err, ErrBinOverfill) {
		t.Fatalf("expected overfill on locked bin, got %v", err)
	}
	quote, err := pool.Buy(bi(10_000_000), nil, recoverySchedule())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	for _, fill := range quote.Fills {
		if fill.Index == 0 {
			t.Fatalf("buy routed into locked bin")
		}
	}
}

func TestRoundTripNeverProfitable(t *testing.T) {
	pool := newTestPool(t)
	spend := bi(300_000_000)
	buy, err := pool.Buy(spend, nil, recoverySchedule())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	sellable := pool.Ledger.FilledSupply()
	if sellable.Cmp(buy.AssetOut) > 0 {
		sellable = new(big.Int).Set(buy.AssetOut)
	}
	sell, err := pool.Sell(sellable, nil, recoverySchedule())
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if sell.BaseOut.Cmp(spend) >= 0 {
		t.Fatalf("round trip returned %s for %s", sell.BaseOut, spend)
	}
	mustInvariants(t, pool)
}

func TestActiveFeeWaterfallConserves(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(200_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	rateBefore := pool.Ledger.Bins[0].RedemptionRate()
	quote, err := pool.Sell(bi(20), nil, activeSchedule())
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	split := quote.Split
	sum := new(big.Int).Add(split.Lp, split.Creator)
	sum.Add(sum, split.Bin)
	if sum.Cmp(quote.Fee) != 0 {
		t.Fatalf("split %s != fee %s", sum, quote.Fee)
	}
	// fee 240000: bin 48000, creator 38400, lp 153600
	if split.Bin.Cmp(bi(48_000)) != 0 || split.Creator.Cmp(bi(38_400)) != 0 || split.Lp.Cmp(bi(153_600)) != 0 {
		t.Fatalf("split bin=%s creator=%s lp=%s", split.Bin, split.Creator, split.Lp)
	}
	if pool.Ledger.Bins[0].RedemptionRate().Cmp(rateBefore) <= 0 {
		t.Fatalf("bonus did not raise redemption rate")
	}
	if pool.Ledger.Bins[0].FeeBonusAccrued.Cmp(bi(48_000)) != 0 {
		t.Fatalf("bonus accrued %s", pool.Ledger.Bins[0].FeeBonusAccrued)
	}
	mustInvariants(t, pool)
}

func TestBinShareToUnlockedBinFallsToLp(t *testing.T) {
	pool := newTestPool(t)
	quote, err := pool.Buy(bi(10_000_000), nil, activeSchedule())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if quote.Split.Bin.Sign() != 0 {
		t.Fatalf("unlocked bin received bonus %s", quote.Split.Bin)
	}
	if quote.Split.Lp.Cmp(new(big.Int).Sub(quote.Fee, quote.Split.Creator)) != 0 {
		t.Fatalf("bin share not routed to lp")
	}
}

func TestRedemptionRateMonotonic(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(400_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	locked := pool.Ledger.Bins[0].LockedRate
	last := pool.Ledger.Bins[0].RedemptionRate()
	for i := 0; i < 5; i++ {
		if _, err := pool.Sell(bi(5), nil, activeSchedule()); err != nil {
			t.Fatalf("sell %d: %v", i, err)
		}
		if _, err := pool.Buy(bi(5_000_000), nil, activeSchedule()); err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
		bin := pool.Ledger.Bins[0]
		if bin.LockedRate.Cmp(locked) != 0 {
			t.Fatalf("locked rate changed")
		}
		rate := bin.RedemptionRate()
		if rate.Cmp(last) < 0 {
			t.Fatalf("redemption rate decreased %s -> %s", last, rate)
		}
		last = rate
		mustInvariants(t, pool)
	}
}

func TestSolvencyHoldsWhenDrainingEverything(t *testing.T) {
	pool := newTestPool(t)
	for i := 0; i < 6; i++ {
		if _, err := pool.Buy(bi(150_000_000), nil, activeSchedule()); err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
	}
	filled := pool.Ledger.FilledSupply()
	if _, err := pool.Sell(filled, nil, activeSchedule()); err != nil {
		t.Fatalf("sell all: %v", err)
	}
	if pool.BaseReserve.Cmp(pool.InitialReserve) < 0 {
		t.Fatalf("reserve %s below floor", pool.BaseReserve)
	}
	mustInvariants(t, pool)
}

func TestRecoveryCompletes(t *testing.T) {
	pool, err := NewPool(bi(1000), bi(1_000_000_000), 10, bi(3_000_000))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if _, err := pool.Buy(bi(200_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if pool.RecoveryComplete {
		t.Fatalf("recovery complete too early")
	}
	if _, err := pool.Buy(bi(100_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !pool.RecoveryComplete {
		t.Fatalf("recovery not complete after %s", pool.TotalRecovered)
	}
}

func TestLpClaimsNeverExceedAccrual(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(123_456_789), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	shares := []uint32{3333, 3333, 3334}
	total := big.NewInt(0)
	for _, bps := range shares {
		owed, checkpoint, err := pool.LpOwed(bps, nil)
		if err != nil {
			t.Fatalf("owed: %v", err)
		}
		if checkpoint.Cmp(pool.LpFeeIndex) != 0 {
			t.Fatalf("checkpoint not advanced")
		}
		if err := pool.PayLp(owed); err != nil {
			t.Fatalf("pay: %v", err)
		}
		total.Add(total, owed)
	}
	if total.Cmp(pool.LpFeesAccrued) > 0 {
		t.Fatalf("claimed %s exceeds accrued %s", total, pool.LpFeesAccrued)
	}
	if err := pool.PayLp(new(big.Int).Add(pool.LpFeesAccrued, bi(1))); !errors.Is(err, ErrInsufficientFees) {
		t.Fatalf("expected insufficient fees, got %v", err)
	}
	mustInvariants(t, pool)
}

func TestReleaseLockKeepsSellsSolvent(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(400_000_000), nil, activeSchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	released, err := pool.ReleaseLock()
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Cmp(bi(1_000_000_000)) != 0 || pool.InitialReserve.Sign() != 0 {
		t.Fatalf("released %s floor %s", released, pool.InitialReserve)
	}
	if _, err := pool.Sell(pool.Ledger.FilledSupply(), nil, activeSchedule()); err != nil {
		t.Fatalf("sell after release: %v", err)
	}
	if pool.BaseReserve.Sign() < 0 {
		t.Fatalf("negative reserve")
	}
	mustInvariants(t, pool)
}

func checkShareConservation(t *testing.T, pool *Pool) {
	t.Helper()
	accounted := new(big.Int).Add(pool.Ledger.Allocated(), pool.Ledger.FillableCapacity())
	if accounted.Cmp(pool.TotalSupply) != 0 {
		t.Fatalf("allocated+unfilled %s, supply %s", accounted, pool.TotalSupply)
	}
	if pool.Ledger.FillableCapacity().Cmp(pool.AssetReserve) != 0 {
		t.Fatalf("fillable %s, asset reserve %s", pool.Ledger.FillableCapacity(), pool.AssetReserve)
	}
	mustInvariants(t, pool)
}

func TestSellReopensDrainedSupply(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(200_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	rate := new(big.Int).Set(pool.Ledger.Bins[0].LockedRate)
	if _, err := pool.Sell(bi(50), nil, recoverySchedule()); err != nil {
		t.Fatalf("sell: %v", err)
	}
	checkShareConservation(t, pool)

	bin0 := pool.Ledger.Bins[0]
	if !bin0.Locked || bin0.LockedRate.Cmp(rate) != 0 {
		t.Fatalf("bin0 rate moved: %+v", bin0)
	}
	if bin0.AssetAllocated.Cmp(bi(50)) != 0 || bin0.Capacity.Cmp(bi(50)) != 0 {
		t.Fatalf("bin0 allocation %s capacity %s", bin0.AssetAllocated, bin0.Capacity)
	}
	tail := pool.Ledger.Bins[len(pool.Ledger.Bins)-1]
	if tail.Locked || tail.Capacity.Cmp(bi(150)) != 0 {
		t.Fatalf("tail bin %+v", tail)
	}
	summary := pool.Summary()
	if summary.DrainedSupply.Cmp(bi(50)) != 0 || summary.BinCount != 10 {
		t.Fatalf("summary: %+v", summary)
	}
}

func TestDrainedSupplyBuyableAgain(t *testing.T) {
	pool := newTestPool(t)
	if _, err := pool.Buy(bi(9_000_000_000), nil, recoverySchedule()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	openBefore := pool.Ledger.FillableCapacity()
	if _, err := pool.Sell(pool.Ledger.FilledSupply(), nil, recoverySchedule()); err != nil {
		t.Fatalf("sell all: %v", err)
	}
	checkShareConservation(t, pool)

	locked := make(map[int]bool)
	for i, bin := range pool.Ledger.Bins {
		locked[i] = bin.Locked
	}
	quote, err := pool.Buy(bi(9_000_000_000), nil, recoverySchedule())
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if quote.AssetOut.Cmp(openBefore) <= 0 {
		t.Fatalf("asset out %s not above previously open %s", quote.AssetOut, openBefore)
	}
	for _, fill := range quote.Fills {
		if locked[fill.Index] {
			t.Fatalf("buy routed into locked bin %d", fill.Index)
		}
	}
	checkShareConservation(t, pool)
}

func TestShareConservationAcrossTrades(t *testing.T) {
	pool := newTestPool(t)
	trades := []struct {
		buy  int64
		sell int64
	}{
		{buy: 300_000_000},
		{sell: 40},
		{buy: 2_000_000_000},
		{sell: 150},
		{buy: 75_000_000},
		{sell: 1},
		{buy: 5_000_000_000},
		{sell: 500},
		{buy: 1_000_000_000},
	}
	for i, trade := range trades {
		var err error
		if trade.buy > 0 {
			_, err = pool.Buy(bi(trade.buy), nil, activeSchedule())
		} else {
			_, err = pool.Sell(minBig(bi(trade.sell), pool.Ledger.FilledSupply()), nil, activeSchedule())
		}
		if err != nil {
			t.Fatalf("trade %d: %v", i, err)
		}
		checkShareConservation(t, pool)
	}
}

func TestDrainOfLockedTailAppendsBin(t *testing.T) {
	ledger, err := NewLedger(bi(100), 2)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.Fill(0, bi(50), bi(500)); err != nil {
		t.Fatalf("fill 0: %v", err)
	}
	if err := ledger.Fill(1, bi(50), bi(1000)); err != nil {
		t.Fatalf("fill 1: %v", err)
	}
	if _, err := ledger.Drain(1, bi(10)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(ledger.Bins) != 3 {
		t.Fatalf("expected appended bin, got %d bins", len(ledger.Bins))
	}
	tail := ledger.Bins[2]
	if tail.Index != 2 || tail.Locked || tail.Capacity.Cmp(bi(10)) != 0 {
		t.Fatalf("tail bin %+v", tail)
	}
	if ledger.Capacity().Cmp(bi(100)) != 0 || ledger.FillableCapacity().Cmp(bi(10)) != 0 {
		t.Fatalf("capacity %s fillable %s", ledger.Capacity(), ledger.FillableCapacity())
	}
}
