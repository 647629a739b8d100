package sovereign

import (
	"bytes"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"

	"sovereign/core/events"
	"sovereign/native/slamm"
)

var sovereignIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,31}$`)

// CreateSovereign opens a new sovereign in the bonding phase.
func (e *Engine) CreateSovereign(creator [20]byte, params LaunchParams) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	if creator == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	id := strings.TrimSpace(params.ID)
	if !sovereignIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: id %q", ErrInvalidParams, params.ID)
	}
	unlock := e.sovereignLocks.lock(id)
	defer unlock()
	if _, exists, err := e.state.SovereignGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrSovereignExists, id)
	}

	tx := e.newTxn(nil)
	defer tx.release()
	sov, err := e.launch(id, creator, params, tx.now)
	if err != nil {
		return nil, err
	}
	tx.sov = sov
	tx.before = PhaseUnspecified
	tx.cs.Emit(events.SovereignCreated{
		SovereignID: id,
		Creator:     creator,
		BondTarget:  sov.BondTarget,
		Deadline:    sov.Deadline,
		TotalSupply: sov.TotalSupply,
		BinCount:    sov.BinCount,
	}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return tx.receipt("createSovereign", creator), nil
}

func (e *Engine) launch(id string, creator [20]byte, params LaunchParams, now int64) (*Sovereign, error) {
	protocol := e.protocol
	minTarget, err := protocol.MinBondTargetAmount()
	if err != nil {
		return nil, err
	}
	if params.BondTarget == nil || params.BondTarget.Cmp(minTarget) < 0 || params.BondTarget.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bond target below %s", ErrInvalidParams, minTarget)
	}
	duration := params.Deadline - now
	if duration < int64(protocol.Bonding.MinDurationSecs) || duration > int64(protocol.Bonding.MaxDurationSecs) {
		return nil, fmt.Errorf("%w: bonding duration %ds outside [%d, %d]", ErrInvalidParams, duration,
			protocol.Bonding.MinDurationSecs, protocol.Bonding.MaxDurationSecs)
	}
	binCount := params.BinCount
	if binCount == 0 {
		binCount = protocol.Bins.DefaultCount
	}
	if binCount > protocol.Bins.MaxCount {
		return nil, fmt.Errorf("%w: %d bins exceeds %d", ErrInvalidParams, binCount, protocol.Bins.MaxCount)
	}
	if params.TotalSupply == nil || params.TotalSupply.Cmp(big.NewInt(int64(binCount))) < 0 {
		return nil, fmt.Errorf("%w: total supply must cover every bin", ErrInvalidParams)
	}
	recoveryFee := params.RecoverySwapFeeBps
	if recoveryFee == 0 {
		recoveryFee = protocol.Fees.DefaultRecoverySwapFeeBps
	}
	activeFee := params.ActiveSwapFeeBps
	if activeFee == 0 {
		activeFee = protocol.Fees.DefaultActiveSwapFeeBps
	}
	if recoveryFee > protocol.Fees.MaxSwapFeeBps || activeFee > protocol.Fees.MaxSwapFeeBps {
		return nil, fmt.Errorf("%w: swap fee exceeds %d bps", ErrInvalidParams, protocol.Fees.MaxSwapFeeBps)
	}
	creatorShare := params.CreatorFeeShareBps
	if creatorShare == 0 {
		creatorShare = protocol.Fees.DefaultCreatorFeeShareBps
	}
	if creatorShare > protocol.Fees.MaxCreatorFeeShareBps {
		return nil, fmt.Errorf("%w: creator share exceeds %d bps", ErrInvalidParams, protocol.Fees.MaxCreatorFeeShareBps)
	}
	return &Sovereign{
		ID:                 id,
		Name:               strings.TrimSpace(params.Name),
		Symbol:             strings.ToUpper(strings.TrimSpace(params.Symbol)),
		Creator:            creator,
		Phase:              PhaseBonding,
		BondTarget:         new(big.Int).Set(params.BondTarget),
		TotalDeposited:     big.NewInt(0),
		TotalRefunded:      big.NewInt(0),
		Deadline:           params.Deadline,
		CreatedAt:          now,
		TotalSupply:        new(big.Int).Set(params.TotalSupply),
		BinCount:           binCount,
		RecoverySwapFeeBps: recoveryFee,
		ActiveSwapFeeBps:   activeFee,
		BinFeeShareBps:     protocol.Fees.BinFeeShareBps,
		CreatorFeeShareBps: creatorShare,
		CreationFee:        big.NewInt(0),
		Unwind:             emptyUnwind(),
	}, nil
}

func emptyUnwind() UnwindState {
	return UnwindState{FeeSnapshot: big.NewInt(0), Released: big.NewInt(0), Claimed: big.NewInt(0)}
}

// Deposit contributes base toward the bond target. The accepted amount is
// clamped to what the target still needs and reaching the target closes
// bonding.
func (e *Engine) Deposit(id string, depositor [20]byte, amount *big.Int) (*Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if sov.Phase != PhaseBonding {
		return nil, fmt.Errorf("%w: deposit requires bonding, phase %s", ErrInvalidPhase, sov.Phase)
	}
	if tx.now >= sov.Deadline {
		return nil, ErrDeadlinePassed
	}
	if depositor == sov.Creator {
		return nil, ErrCreatorExcluded
	}
	remaining := new(big.Int).Sub(sov.BondTarget, sov.TotalDeposited)
	if remaining.Sign() <= 0 {
		return nil, ErrTargetReached
	}
	accepted := new(big.Int).Set(amount)
	if accepted.Cmp(remaining) > 0 {
		accepted.Set(remaining)
	}
	if err := tx.debit(depositor, accepted); err != nil {
		return nil, err
	}
	rec, ok, err := tx.record(depositor)
	if err != nil {
		return nil, err
	}
	if !ok {
		rec = tx.trackRecord(&DepositRecord{
			SovereignID:   id,
			Depositor:     depositor,
			Amount:        big.NewInt(0),
			MintedAmount:  big.NewInt(0),
			FeeCheckpoint: big.NewInt(0),
			DepositedAt:   tx.now,
		})
		sov.DepositorCount++
	}
	rec.Amount.Add(rec.Amount, accepted)
	sov.TotalDeposited.Add(sov.TotalDeposited, accepted)
	if sov.TotalDeposited.Cmp(sov.BondTarget) >= 0 {
		tx.setPhase(PhaseFinalizing, "bond target reached")
	}
	tx.cs.Emit(events.DepositChanged{
		SovereignID:    id,
		Depositor:      depositor,
		Amount:         accepted,
		RecordAmount:   rec.Amount,
		TotalDeposited: sov.TotalDeposited,
	}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("deposit", depositor)
	receipt.Amount = accepted
	return receipt, nil
}

// WithdrawDuringBonding returns part of a deposit while bonding is open. The
// record disappears once it reaches zero.
func (e *Engine) WithdrawDuringBonding(id string, depositor [20]byte, amount *big.Int) (*Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if sov.Phase != PhaseBonding {
		return nil, fmt.Errorf("%w: withdrawal requires bonding, phase %s", ErrInvalidPhase, sov.Phase)
	}
	rec, ok, err := tx.record(depositor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoDeposit
	}
	if amount.Cmp(rec.Amount) > 0 {
		return nil, fmt.Errorf("%w: deposit %s", ErrInsufficientShare, rec.Amount)
	}
	rec.Amount.Sub(rec.Amount, amount)
	sov.TotalDeposited.Sub(sov.TotalDeposited, amount)
	if rec.Amount.Sign() == 0 {
		tx.removeRecord(rec)
		sov.DepositorCount--
	}
	if err := tx.credit(depositor, amount); err != nil {
		return nil, err
	}
	tx.cs.Emit(events.DepositChanged{
		SovereignID:    id,
		Depositor:      depositor,
		Amount:         amount,
		RecordAmount:   rec.Amount,
		TotalDeposited: sov.TotalDeposited,
		Withdrawal:     true,
	}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("withdrawDuringBonding", depositor)
	receipt.Amount = new(big.Int).Set(amount)
	return receipt, nil
}

// Finalize creates the pool once bonding has closed. A sovereign still in
// bonding past its deadline is marked failed instead.
func (e *Engine) Finalize(id string, caller [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	switch sov.Phase {
	case PhaseFinalizing:
	case PhaseBonding:
		if tx.now < sov.Deadline {
			return nil, fmt.Errorf("%w: %s of %s deposited", ErrBondingNotComplete, sov.TotalDeposited, sov.BondTarget)
		}
		tx.setPhase(PhaseFailed, "bonding deadline missed")
		if err := tx.commit(); err != nil {
			return nil, err
		}
		return tx.receipt("finalize", caller), nil
	default:
		return nil, fmt.Errorf("%w: finalize in phase %s", ErrInvalidPhase, sov.Phase)
	}

	total := new(big.Int).Set(sov.TotalDeposited)
	fee, err := slamm.ApplyBps(total, e.protocol.Fees.CreationFeeBps)
	if err != nil {
		return nil, err
	}
	reserve := new(big.Int).Sub(total, fee)
	target, err := slamm.ApplyBps(total, e.protocol.Bonding.RecoveryMultiplierBps)
	if err != nil {
		return nil, err
	}
	pool, err := slamm.NewPool(sov.TotalSupply, reserve, sov.BinCount, target)
	if err != nil {
		return nil, err
	}
	records, err := tx.allRecords()
	if err != nil {
		return nil, err
	}
	if err := assignPositionBps(records, total); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := tx.credit(e.treasury, fee); err != nil {
			return nil, err
		}
	}
	sov.CreationFee = fee
	sov.Pool = pool
	sov.FinalizedAt = tx.now
	sov.LastActivityCheck = tx.now
	tx.setPhase(PhasePoolCreated, "pool seeded")
	tx.setPhase(PhaseRecovery, "recovery started")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("finalize", caller)
	receipt.Amount = reserve
	receipt.Fee = fee
	return receipt, nil
}

// assignPositionBps converts deposits into basis point shares summing to
// exactly 10000. Floors are topped up by largest remainder, ties broken by
// ascending address.
func assignPositionBps(records []*DepositRecord, total *big.Int) error {
	if len(records) == 0 || total.Sign() <= 0 {
		return fmt.Errorf("%w: no deposits to convert", ErrShareConservation)
	}
	type entry struct {
		rec       *DepositRecord
		remainder *big.Int
	}
	entries := make([]entry, len(records))
	assigned := uint32(0)
	denom := big.NewInt(slamm.BasisPoints)
	for i, rec := range records {
		scaled := new(big.Int).Mul(rec.Amount, denom)
		q, r := new(big.Int).QuoRem(scaled, total, new(big.Int))
		rec.PositionBps = uint32(q.Uint64())
		rec.MintedBps = 0
		assigned += rec.PositionBps
		entries[i] = entry{rec: rec, remainder: r}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].remainder.Cmp(entries[j].remainder); c != 0 {
			return c > 0
		}
		return bytes.Compare(entries[i].rec.Depositor[:], entries[j].rec.Depositor[:]) < 0
	})
	leftover := int(slamm.BasisPoints) - int(assigned)
	if leftover < 0 || leftover > len(entries) {
		return fmt.Errorf("%w: %d bps unassigned", ErrShareConservation, leftover)
	}
	for i := 0; i < leftover; i++ {
		entries[i].rec.PositionBps++
	}
	return nil
}

// ClaimRefund returns a depositor's contribution once bonding has failed or
// the sovereign was retired before finalization. A sovereign past its
// deadline without meeting the target fails here lazily.
func (e *Engine) ClaimRefund(id string, depositor [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if sov.Phase == PhaseBonding {
		if tx.now < sov.Deadline {
			return nil, ErrDeadlineNotPassed
		}
		tx.setPhase(PhaseFailed, "bonding deadline missed")
	}
	retiredUnbonded := sov.Phase == PhaseRetired && sov.Pool == nil
	if sov.Phase != PhaseFailed && !retiredUnbonded {
		return nil, fmt.Errorf("%w: refunds require failed, phase %s", ErrInvalidPhase, sov.Phase)
	}
	rec, ok, err := tx.record(depositor)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Amount.Sign() == 0 {
		return nil, ErrNoDeposit
	}
	if rec.RefundClaimed {
		return nil, ErrAlreadyClaimed
	}
	rec.RefundClaimed = true
	sov.TotalRefunded.Add(sov.TotalRefunded, rec.Amount)
	if err := tx.credit(depositor, rec.Amount); err != nil {
		return nil, err
	}
	tx.cs.Emit(events.Payout{SovereignID: id, Recipient: depositor, Kind: "refund", Amount: rec.Amount}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("claimRefund", depositor)
	receipt.Amount = new(big.Int).Set(rec.Amount)
	return receipt, nil
}
