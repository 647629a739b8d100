package sovereign

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"lukechampine.com/blake3"

	"sovereign/core/events"
	"sovereign/native/slamm"
)

// PositionID derives the identifier of the nonce-th position minted in a
// sovereign.
func PositionID(sovereignID string, parent [20]byte, nonce uint64) [32]byte {
	buf := make([]byte, 0, len(sovereignID)+1+len(parent)+8)
	buf = append(buf, sovereignID...)
	buf = append(buf, 0)
	buf = append(buf, parent[:]...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	return blake3.Sum256(buf)
}

func checkPositions(sov *Sovereign) error {
	switch sov.Phase {
	case PhaseRecovery, PhaseActive, PhaseUnwinding:
		return nil
	default:
		return fmt.Errorf("%w: positions frozen in phase %s", ErrInvalidPhase, sov.Phase)
	}
}

// MintPositionNFT carves amount of the caller's deposit into a transferable
// position. Pending fees on the record are paid out first so the new
// position starts from the current fee index.
func (e *Engine) MintPositionNFT(id string, caller [20]byte, amount *big.Int) (*Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if err := checkPositions(sov); err != nil {
		return nil, err
	}
	rec, ok, err := tx.record(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoDeposit
	}
	available := new(big.Int).Sub(rec.Amount, rec.MintedAmount)
	if amount.Cmp(available) > 0 {
		return nil, fmt.Errorf("%w: %s available", ErrInsufficientShare, available)
	}
	var bps uint32
	if amount.Cmp(available) == 0 {
		bps = rec.FreeBps()
	} else {
		scaled, err := slamm.MulDiv(amount, new(big.Int).SetUint64(uint64(rec.PositionBps)), rec.Amount)
		if err != nil {
			return nil, err
		}
		bps = uint32(scaled.Uint64())
	}
	if bps == 0 {
		return nil, ErrPositionTooSmall
	}
	if bps > rec.FreeBps() {
		return nil, fmt.Errorf("%w: %d bps requested, %d free", ErrShareConservation, bps, rec.FreeBps())
	}

	owed, err := settleRecord(sov.Pool, rec)
	if err != nil {
		return nil, err
	}
	if err := tx.payLp(caller, owed); err != nil {
		return nil, err
	}
	positionID := PositionID(id, caller, sov.NextPositionNonce)
	sov.NextPositionNonce++
	pos := tx.trackPosition(&PositionNFT{
		ID:            positionID,
		SovereignID:   id,
		Parent:        caller,
		Owner:         caller,
		DepositAmount: new(big.Int).Set(amount),
		SharesBps:     bps,
		FeeCheckpoint: new(big.Int).Set(sov.Pool.LpFeeIndex),
		MintedAt:      tx.now,
	})
	rec.MintedAmount.Add(rec.MintedAmount, amount)
	rec.MintedBps += bps
	rec.NFTMinted = true
	rec.LastPositionChange = tx.now
	if err := tx.checkRecordShares(rec); err != nil {
		return nil, err
	}
	tx.cs.Emit(events.PositionChanged{
		SovereignID: id,
		Action:      "mint",
		PositionID:  positionID,
		To:          caller,
		SharesBps:   pos.SharesBps,
	}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("mintPositionNft", caller)
	receipt.Amount = new(big.Int).Set(amount)
	receipt.PositionID = positionID
	return receipt, nil
}

// BurnPositionNFT merges a position back into its parent record. Only the
// parent depositor holding its own position may burn it.
func (e *Engine) BurnPositionNFT(id string, caller [20]byte, positionID [32]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	sov := tx.sov
	if err := checkPositions(sov); err != nil {
		return nil, err
	}
	pos, ok, err := tx.position(positionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPositionNotFound
	}
	if pos.Owner != caller || pos.Parent != caller {
		return nil, ErrNotParentOwner
	}
	rec, ok, err := tx.record(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoDeposit
	}
	owedRecord, err := settleRecord(sov.Pool, rec)
	if err != nil {
		return nil, err
	}
	owedPosition, err := settlePosition(sov.Pool, pos)
	if err != nil {
		return nil, err
	}
	if err := tx.payLp(caller, new(big.Int).Add(owedRecord, owedPosition)); err != nil {
		return nil, err
	}
	if pos.SharesBps > rec.MintedBps || pos.DepositAmount.Cmp(rec.MintedAmount) > 0 {
		return nil, fmt.Errorf("%w: position exceeds minted share", ErrShareConservation)
	}
	rec.MintedBps -= pos.SharesBps
	rec.MintedAmount.Sub(rec.MintedAmount, pos.DepositAmount)
	rec.LastPositionChange = tx.now
	tx.burnPosition(pos)
	if err := tx.checkRecordShares(rec); err != nil {
		return nil, err
	}
	tx.cs.Emit(events.PositionChanged{
		SovereignID: id,
		Action:      "burn",
		PositionID:  positionID,
		From:        caller,
		SharesBps:   pos.SharesBps,
	}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("burnPositionNft", caller)
	receipt.Amount = new(big.Int).Set(pos.DepositAmount)
	receipt.PositionID = positionID
	return receipt, nil
}

// TransferPositionNFT hands a position to another address. Pending fees,
// vote weight and unwind rights travel with it.
func (e *Engine) TransferPositionNFT(id string, caller [20]byte, positionID [32]byte, to [20]byte) (*Receipt, error) {
	tx, err := e.begin(id, nil)
	if err != nil {
		return nil, err
	}
	defer tx.release()
	if err := requirePool(tx.sov); err != nil {
		return nil, err
	}
	if to == ([20]byte{}) || to == caller {
		return nil, ErrInvalidRecipient
	}
	pos, ok, err := tx.position(positionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPositionNotFound
	}
	if pos.Owner != caller {
		return nil, ErrNotOwner
	}
	pos.Owner = to
	tx.cs.Emit(events.PositionChanged{
		SovereignID: id,
		Action:      "transfer",
		PositionID:  positionID,
		From:        caller,
		To:          to,
		SharesBps:   pos.SharesBps,
	}.Event())
	if err := tx.commit(); err != nil {
		return nil, err
	}
	receipt := tx.receipt("transferPositionNft", caller)
	receipt.PositionID = positionID
	return receipt, nil
}

// checkRecordShares verifies the record's minted bps equal the sum of its
// live children.
func (tx *txn) checkRecordShares(rec *DepositRecord) error {
	stored, err := tx.e.state.SovereignPositions(tx.sov.ID)
	if err != nil {
		return err
	}
	sum := uint32(0)
	seen := make(map[[32]byte]struct{}, len(stored))
	for _, pos := range stored {
		seen[pos.ID] = struct{}{}
		current, ok, err := tx.position(pos.ID)
		if err != nil {
			return err
		}
		if ok && current.Parent == rec.Depositor {
			sum += current.SharesBps
		}
	}
	for _, id := range tx.posOrder {
		if _, ok := seen[id]; ok || tx.burned[id] {
			continue
		}
		if pos := tx.positions[id]; pos.Parent == rec.Depositor {
			sum += pos.SharesBps
		}
	}
	if sum != rec.MintedBps || rec.MintedBps > rec.PositionBps {
		return fmt.Errorf("%w: children %d bps, minted %d, position %d", ErrShareConservation, sum, rec.MintedBps, rec.PositionBps)
	}
	return nil
}
