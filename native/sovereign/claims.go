package sovereign

import (
	"errors"
	"fmt"
	"math/big"

	"sovereign/core/events"
	"sovereign/native/slamm"
)

func requirePool(sov *Sovereign) error {
	if sov.Pool == nil {
		return fmt.Errorf("%w: no pool in phase %s", ErrInvalidPhase, sov.Phase)
	}
	return nil
}

// settleRecord computes the LP fees owed to a record's retained share and
// advances its checkpoint.
func settleRecord(pool *slamm.Pool, rec *DepositRecord) (*big.Int, error) {
	owed, checkpoint, err := pool.LpOwed(rec.FreeBps(), rec.FeeCheckpoint)
	if err != nil {
		return nil, err
	}
	rec.FeeCheckpoint = checkpoint
	return owed, nil
}

func settlePosition(pool *slamm.Pool, pos *PositionNFT) (*big.Int, error) {
	owed, checkpoint, err := pool.LpOwed(pos.SharesBps, pos.FeeCheckpoint)
	if err != nil {
		return nil, err
	}
	pos.FeeCheckpoint = checkpoint
	return owed, nil
}

// payLp moves settled LP fees to recipient.
func (tx *txn) payLp(recipient [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := tx.sov.Pool.PayLp(amount); err != nil {
		return err
	}
	return tx.credit(recipient, amount)
}

// ClaimLpFees pays the caller's LP fees across its deposit record and every
// position NFT it owns.
func (e *Engine) ClaimLpFees(id string, caller [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if err := requirePool(sov); err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	rec, ok, err := tx.record(caller)
	if err != nil {
		return nil, err
	}
	if ok {
		owed, err := settleRecord(sov.Pool, rec)
		if err != nil {
			return nil, err
		}
		total.Add(total, owed)
	}
	positions, err := tx.ownedPositions(caller)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		owed, err := settlePosition(sov.Pool, pos)
		if err != nil {
			return nil, err
		}
		total.Add(total, owed)
	}
	if total.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	if err := tx.payLp(caller, total); err != nil {
		return nil, err
	}
	tx.cs.Emit(events.FeesClaimed{SovereignID: id, Claimant: caller, Kind: "lp", Amount: total}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("claimLpFees", caller)
	receipt.Amount = total
	return receipt, nil
}

// ClaimCreatorFees pays the creator's accrued share.
func (e *Engine) ClaimCreatorFees(id string, caller [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if caller != sov.Creator {
		return nil, ErrNotCreator
	}
	if err := requirePool(sov); err != nil {
		return nil, err
	}
	amount, err := sov.Pool.PayCreator()
	if errors.Is(err, slamm.ErrInsufficientFees) {
		return nil, ErrNothingToClaim
	}
	if err != nil {
		return nil, err
	}
	if err := tx.credit(caller, amount); err != nil {
		return nil, err
	}
	tx.cs.Emit(events.FeesClaimed{SovereignID: id, Claimant: caller, Kind: "creator", Amount: amount}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("claimCreatorFees", caller)
	receipt.Amount = amount
	return receipt, nil
}
