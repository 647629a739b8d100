package sovereign

import (
	"fmt"
	"math/big"

	"sovereign/core/events"
	"sovereign/core/types"
	"sovereign/native/slamm"
)

// InitiateActivityCheck starts an unwind observation window without a vote.
// Checks are spaced by the protocol cooldown, counted from pool creation.
func (e *Engine) InitiateActivityCheck(id string, caller [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	cooldown := int64(e.protocol.Unwind.ActivityCheckCooldownSecs)
	if tx.sov.Phase == PhaseRecovery || tx.sov.Phase == PhaseActive {
		if next := tx.sov.LastActivityCheck + cooldown; tx.now < next {
			return nil, fmt.Errorf("%w: next check at %d", ErrCooldownActive, next)
		}
	}
	if err := tx.beginUnwind(UnwindTriggerActivityCheck, 0); err != nil {
		return nil, err
	}
	tx.sov.LastActivityCheck = tx.now
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return tx.receipt("initiateActivityCheck", caller), nil
}

// BeginUnwind starts an unwind on behalf of an executed governance proposal.
// Writes already staged in pending commit together with the phase change.
func (e *Engine) BeginUnwind(id string, caller [20]byte, proposalID uint64, pending *types.ChangeSet) (*Receipt, error) {
	tx, err := e.begin(id, pending)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	if err := tx.beginUnwind(UnwindTriggerGovernance, proposalID); err != nil {
		return nil, err
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("executeUnwind", caller)
	receipt.ProposalID = proposalID
	return receipt, nil
}

func (tx *txn) beginUnwind(trigger UnwindTrigger, proposalID uint64) error {
	sov := tx.sov
	if sov.Phase != PhaseRecovery && sov.Phase != PhaseActive {
		return fmt.Errorf("%w: unwind requires recovery or active, phase %s", ErrInvalidPhase, sov.Phase)
	}
	observation := int64(tx.e.protocol.Unwind.ObservationPeriodSecs)
	sov.Unwind = UnwindState{
		Trigger:           trigger,
		ProposalID:        proposalID,
		StartedAt:         tx.now,
		ObservationEndsAt: tx.now + observation,
		FeeSnapshot:       new(big.Int).Set(sov.Pool.TotalFeesCollected),
		PrevPhase:         sov.Phase,
		Released:          big.NewInt(0),
		Claimed:           big.NewInt(0),
		Cancellations:     sov.Unwind.Cancellations,
	}
	tx.setPhase(PhaseUnwinding, "unwind initiated by "+trigger.String())
	return nil
}

// resolve decides an unwind whose observation window has closed. Fee growth
// at or above MinFeeGrowthBps of the bonded total cancels it; otherwise the
// reserve lock is released for pro-rata distribution.
func (tx *txn) resolve() error {
	sov := tx.sov
	if sov.Phase != PhaseUnwinding {
		return fmt.Errorf("%w: nothing to resolve in phase %s", ErrInvalidPhase, sov.Phase)
	}
	if tx.now < sov.Unwind.ObservationEndsAt {
		return fmt.Errorf("%w: ends at %d", ErrObservationActive, sov.Unwind.ObservationEndsAt)
	}
	growth := new(big.Int).Sub(sov.Pool.TotalFeesCollected, sov.Unwind.FeeSnapshot)
	threshold, err := slamm.ApplyBps(sov.TotalDeposited, tx.e.protocol.Unwind.MinFeeGrowthBps)
	if err != nil {
		return err
	}
	if growth.Cmp(threshold) >= 0 {
		next := sov.Unwind.PrevPhase
		if sov.Pool.RecoveryComplete {
			next = PhaseActive
		}
		sov.Unwind.Cancellations++
		tx.setPhase(next, "unwind cancelled by fee growth")
		return nil
	}
	released, err := sov.Pool.ReleaseLock()
	if err != nil {
		return err
	}
	sov.Unwind.Released = released
	tx.setPhase(PhaseUnwound, "unwind executed")
	return nil
}

// ResolveUnwind closes the observation window.
func (e *Engine) ResolveUnwind(id string, caller [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	if err := tx.resolve(); err != nil {
		return nil, err
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("resolveUnwind", caller)
	receipt.Amount = new(big.Int).Set(tx.sov.Unwind.Released)
	return receipt, nil
}

// ClaimUnwind pays the caller's pro-rata share of the released reserve for
// each identity it holds (its record and every owned position) that has not
// claimed yet. An expired observation window is resolved first; when that
// cancels the unwind the resolution is committed and nothing is paid.
func (e *Engine) ClaimUnwind(id string, caller [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if sov.Phase == PhaseUnwinding {
		if err := tx.resolve(); err != nil {
			return nil, err
		}
		if sov.Phase != PhaseUnwound {
			if err := tx.commit(); err != nil {
				return nil, err
			}
			receipt := tx.receipt("claimUnwind", caller)
			receipt.Amount = big.NewInt(0)
			return receipt, nil
		}
	}
	if sov.Phase != PhaseUnwound {
		return nil, fmt.Errorf("%w: unwind claims require unwound, phase %s", ErrInvalidPhase, sov.Phase)
	}
	released := sov.Unwind.Released
	denom := big.NewInt(slamm.BasisPoints)
	share := func(bps uint32) *big.Int {
		out := new(big.Int).Mul(released, new(big.Int).SetUint64(uint64(bps)))
		return out.Quo(out, denom)
	}
	total := big.NewInt(0)
	identities := 0
	rec, ok, err := tx.record(caller)
	if err != nil {
		return nil, err
	}
	if ok && !rec.UnwindClaimed && rec.FreeBps() > 0 {
		rec.UnwindClaimed = true
		total.Add(total, share(rec.FreeBps()))
		identities++
	}
	positions, err := tx.ownedPositions(caller)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos.UnwindClaimed {
			continue
		}
		pos.UnwindClaimed = true
		total.Add(total, share(pos.SharesBps))
		identities++
	}
	if identities == 0 {
		return nil, ErrNothingToClaim
	}
	claimed := new(big.Int).Add(sov.Unwind.Claimed, total)
	if claimed.Cmp(released) > 0 {
		return nil, fmt.Errorf("%w: unwind claims exceed release", ErrShareConservation)
	}
	sov.Unwind.Claimed = claimed
	if total.Sign() > 0 {
		if err := tx.credit(caller, total); err != nil {
			return nil, err
		}
	}
	tx.cs.Emit(events.Payout{SovereignID: id, Recipient: caller, Kind: "unwind", Amount: total}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("claimUnwind", caller)
	receipt.Amount = total
	return receipt, nil
}

// Halt pauses trading on a live pool.
func (e *Engine) Halt(id string, admin [20]byte) (*Receipt, error) {
	if !e.isAdmin(admin) {
		return nil, ErrNotAuthorized
	}
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	if tx.sov.Phase != PhaseRecovery && tx.sov.Phase != PhaseActive {
		return nil, fmt.Errorf("%w: halt requires recovery or active, phase %s", ErrInvalidPhase, tx.sov.Phase)
	}
	tx.sov.HaltedFrom = tx.sov.Phase
	tx.setPhase(PhaseHalted, "halted by admin")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return tx.receipt("halt", admin), nil
}

// Resume restores the phase a halted pool was paused in.
func (e *Engine) Resume(id string, admin [20]byte) (*Receipt, error) {
	if !e.isAdmin(admin) {
		return nil, ErrNotAuthorized
	}
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	if tx.sov.Phase != PhaseHalted {
		return nil, fmt.Errorf("%w: resume requires halted, phase %s", ErrInvalidPhase, tx.sov.Phase)
	}
	next := tx.sov.HaltedFrom
	if next == PhaseRecovery && tx.sov.Pool.RecoveryComplete {
		next = PhaseActive
	}
	tx.sov.HaltedFrom = PhaseUnspecified
	tx.setPhase(next, "resumed by admin")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return tx.receipt("resume", admin), nil
}

// Retire permanently closes a sovereign. Claims on existing balances stay
// available, and a sovereign retired before its pool existed refunds deposits.
func (e *Engine) Retire(id string, admin [20]byte) (*Receipt, error) {
	if !e.isAdmin(admin) {
		return nil, ErrNotAuthorized
	}
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	if tx.sov.Phase == PhaseRetired {
		return nil, fmt.Errorf("%w: already retired", ErrInvalidPhase)
	}
	tx.setPhase(PhaseRetired, "retired by admin")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return tx.receipt("retire", admin), nil
}
