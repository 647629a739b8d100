package sovereign

import (
	"encoding/hex"
	"math/big"
	"sort"

	"sovereign/core/types"
	"sovereign/crypto"
	"sovereign/native/slamm"
)

// FeeView summarises the pool's fee accumulators.
type FeeView struct {
	TotalCollected   *big.Int `json:"totalCollected"`
	LpAccrued        *big.Int `json:"lpAccrued"`
	LpClaimed        *big.Int `json:"lpClaimed"`
	CreatorAccrued   *big.Int `json:"creatorAccrued"`
	CreatorClaimed   *big.Int `json:"creatorClaimed"`
	BinBonusCredited *big.Int `json:"binBonusCredited"`
	RecoveryTarget   *big.Int `json:"recoveryTarget"`
	TotalRecovered   *big.Int `json:"totalRecovered"`
	RecoveryComplete bool     `json:"recoveryComplete"`
}

// UnwindView exposes the observation window and release accounting.
type UnwindView struct {
	Trigger           string   `json:"trigger"`
	ProposalID        uint64   `json:"proposalId,omitempty"`
	StartedAt         int64    `json:"startedAt"`
	ObservationEndsAt int64    `json:"observationEndsAt"`
	FeeSnapshot       *big.Int `json:"feeSnapshot"`
	Released          *big.Int `json:"released"`
	Claimed           *big.Int `json:"claimed"`
}

// View is the read-only projection of a sovereign. Raw bins are not exposed;
// observers get the aggregate bin summary only.
type View struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Symbol             string            `json:"symbol"`
	Creator            crypto.Address    `json:"creator"`
	Phase              string            `json:"phase"`
	BondTarget         *big.Int          `json:"bondTarget"`
	TotalDeposited     *big.Int          `json:"totalDeposited"`
	Deadline           int64             `json:"deadline"`
	DepositorCount     uint32            `json:"depositorCount"`
	TotalSupply        *big.Int          `json:"totalSupply"`
	RecoverySwapFeeBps uint32            `json:"recoverySwapFeeBps"`
	ActiveSwapFeeBps   uint32            `json:"activeSwapFeeBps"`
	CreatorFeeShareBps uint32            `json:"creatorFeeShareBps"`
	BaseReserve        *big.Int          `json:"baseReserve,omitempty"`
	AssetReserve       *big.Int          `json:"assetReserve,omitempty"`
	InitialReserve     *big.Int          `json:"initialReserve,omitempty"`
	SpotPrice          *big.Int          `json:"spotPrice,omitempty"`
	Bins               *slamm.BinSummary `json:"bins,omitempty"`
	Fees               *FeeView          `json:"fees,omitempty"`
	Unwind             *UnwindView       `json:"unwind,omitempty"`
}

// NewView projects a sovereign for observers.
func NewView(sov *Sovereign) *View {
	view := &View{
		ID:                 sov.ID,
		Name:               sov.Name,
		Symbol:             sov.Symbol,
		Creator:            crypto.Address(sov.Creator),
		Phase:              sov.Phase.String(),
		BondTarget:         copyAmount(sov.BondTarget),
		TotalDeposited:     copyAmount(sov.TotalDeposited),
		Deadline:           sov.Deadline,
		DepositorCount:     sov.DepositorCount,
		TotalSupply:        copyAmount(sov.TotalSupply),
		RecoverySwapFeeBps: sov.RecoverySwapFeeBps,
		ActiveSwapFeeBps:   sov.ActiveSwapFeeBps,
		CreatorFeeShareBps: sov.CreatorFeeShareBps,
	}
	if pool := sov.Pool; pool != nil {
		summary := pool.Summary()
		view.BaseReserve = copyAmount(pool.BaseReserve)
		view.AssetReserve = copyAmount(pool.AssetReserve)
		view.InitialReserve = copyAmount(pool.InitialReserve)
		view.SpotPrice = pool.SpotPrice()
		view.Bins = &summary
		view.Fees = &FeeView{
			TotalCollected:   copyAmount(pool.TotalFeesCollected),
			LpAccrued:        copyAmount(pool.LpFeesAccrued),
			LpClaimed:        copyAmount(pool.LpFeesClaimed),
			CreatorAccrued:   copyAmount(pool.CreatorFeesAccrued),
			CreatorClaimed:   copyAmount(pool.CreatorFeesClaimed),
			BinBonusCredited: copyAmount(pool.BinBonusCredited),
			RecoveryTarget:   copyAmount(pool.RecoveryTarget),
			TotalRecovered:   copyAmount(pool.TotalRecovered),
			RecoveryComplete: pool.RecoveryComplete,
		}
	}
	if sov.Unwind.Trigger != UnwindTriggerNone {
		view.Unwind = &UnwindView{
			Trigger:           sov.Unwind.Trigger.String(),
			ProposalID:        sov.Unwind.ProposalID,
			StartedAt:         sov.Unwind.StartedAt,
			ObservationEndsAt: sov.Unwind.ObservationEndsAt,
			FeeSnapshot:       copyAmount(sov.Unwind.FeeSnapshot),
			Released:          copyAmount(sov.Unwind.Released),
			Claimed:           copyAmount(sov.Unwind.Claimed),
		}
	}
	return view
}

// View returns the committed projection of a sovereign.
func (e *Engine) View(id string) (*View, error) {
	sov, err := e.committed(id)
	if err != nil {
		return nil, err
	}
	return NewView(sov), nil
}

// List returns views of every sovereign ordered by id.
func (e *Engine) List() ([]*View, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	ids, err := e.state.SovereignIDs()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]*View, 0, len(ids))
	for _, id := range ids {
		view, err := e.View(id)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// PositionSummary is one position owned by an address.
type PositionSummary struct {
	ID            string         `json:"id"`
	Parent        crypto.Address `json:"parent"`
	SharesBps     uint32         `json:"sharesBps"`
	DepositAmount *big.Int       `json:"depositAmount"`
	PendingLpFees *big.Int       `json:"pendingLpFees"`
	UnwindClaimed bool           `json:"unwindClaimed"`
}

// HolderView is everything an address holds in a sovereign.
type HolderView struct {
	SovereignID   string            `json:"sovereignId"`
	Address       crypto.Address    `json:"address"`
	Balance       *big.Int          `json:"balance"`
	Holding       *big.Int          `json:"holding"`
	DepositAmount *big.Int          `json:"depositAmount"`
	PositionBps   uint32            `json:"positionBps"`
	FreeBps       uint32            `json:"freeBps"`
	PendingLpFees *big.Int          `json:"pendingLpFees"`
	PendingUnwind *big.Int          `json:"pendingUnwind"`
	Positions     []PositionSummary `json:"positions"`
}

// Holder returns the committed position of addr in a sovereign.
func (e *Engine) Holder(id string, addr [20]byte) (*HolderView, error) {
	sov, err := e.committed(id)
	if err != nil {
		return nil, err
	}
	acct, err := e.state.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	holding, err := e.state.HoldingGet(id, addr)
	if err != nil {
		return nil, err
	}
	view := &HolderView{
		SovereignID:   id,
		Address:       crypto.Address(addr),
		Balance:       copyAmount(acct.Copy().Balance),
		Holding:       big.NewInt(0),
		DepositAmount: big.NewInt(0),
		PendingLpFees: big.NewInt(0),
		PendingUnwind: big.NewInt(0),
	}
	if holding != nil && holding.Amount != nil {
		view.Holding.Set(holding.Amount)
	}
	unwindShare := func(bps uint32) *big.Int {
		if sov.Phase != PhaseUnwound {
			return big.NewInt(0)
		}
		out := new(big.Int).Mul(sov.Unwind.Released, new(big.Int).SetUint64(uint64(bps)))
		return out.Quo(out, big.NewInt(slamm.BasisPoints))
	}
	rec, ok, err := e.state.SovereignDepositGet(id, addr)
	if err != nil {
		return nil, err
	}
	if ok {
		view.DepositAmount = copyAmount(rec.Amount)
		view.PositionBps = rec.PositionBps
		view.FreeBps = rec.FreeBps()
		if sov.Pool != nil {
			owed, _, err := sov.Pool.LpOwed(rec.FreeBps(), rec.FeeCheckpoint)
			if err != nil {
				return nil, err
			}
			view.PendingLpFees.Add(view.PendingLpFees, owed)
		}
		if !rec.UnwindClaimed {
			view.PendingUnwind.Add(view.PendingUnwind, unwindShare(rec.FreeBps()))
		}
	}
	positions, err := e.state.SovereignPositions(id)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos.Owner != addr {
			continue
		}
		summary := PositionSummary{
			ID:            hex.EncodeToString(pos.ID[:]),
			Parent:        crypto.Address(pos.Parent),
			SharesBps:     pos.SharesBps,
			DepositAmount: copyAmount(pos.DepositAmount),
			PendingLpFees: big.NewInt(0),
			UnwindClaimed: pos.UnwindClaimed,
		}
		if sov.Pool != nil {
			owed, _, err := sov.Pool.LpOwed(pos.SharesBps, pos.FeeCheckpoint)
			if err != nil {
				return nil, err
			}
			summary.PendingLpFees = owed
			view.PendingLpFees.Add(view.PendingLpFees, owed)
		}
		if !pos.UnwindClaimed {
			view.PendingUnwind.Add(view.PendingUnwind, unwindShare(pos.SharesBps))
		}
		view.Positions = append(view.Positions, summary)
	}
	return view, nil
}

// Account returns the committed base balance of addr.
func (e *Engine) Account(addr [20]byte) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	acct, err := e.state.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	return acct.Copy(), nil
}

// ReceiptView is the JSON projection of a receipt.
type ReceiptView struct {
	Intent      string         `json:"intent"`
	SovereignID string         `json:"sovereignId"`
	Caller      crypto.Address `json:"caller"`
	PhaseBefore string         `json:"phaseBefore"`
	PhaseAfter  string         `json:"phaseAfter"`
	Amount      *big.Int       `json:"amount,omitempty"`
	BaseIn      *big.Int       `json:"baseIn,omitempty"`
	BaseOut     *big.Int       `json:"baseOut,omitempty"`
	AssetIn     *big.Int       `json:"assetIn,omitempty"`
	AssetOut    *big.Int       `json:"assetOut,omitempty"`
	Fee         *big.Int       `json:"fee,omitempty"`
	PositionID  string         `json:"positionId,omitempty"`
	ProposalID  uint64         `json:"proposalId,omitempty"`
	Status      string         `json:"status,omitempty"`
	WeightBps   uint32         `json:"weightBps,omitempty"`
	Timestamp   int64          `json:"timestamp"`
}

// NewReceiptView projects a receipt for clients and the journal.
func NewReceiptView(r *Receipt) *ReceiptView {
	view := &ReceiptView{
		Intent:      r.Intent,
		SovereignID: r.SovereignID,
		Caller:      crypto.Address(r.Caller),
		PhaseBefore: r.PhaseBefore.String(),
		PhaseAfter:  r.PhaseAfter.String(),
		Amount:      r.Amount,
		BaseIn:      r.BaseIn,
		BaseOut:     r.BaseOut,
		AssetIn:     r.AssetIn,
		AssetOut:    r.AssetOut,
		Fee:         r.Fee,
		ProposalID:  r.ProposalID,
		Status:      r.Status,
		WeightBps:   r.WeightBps,
		Timestamp:   r.Timestamp,
	}
	if r.PositionID != ([32]byte{}) {
		view.PositionID = hex.EncodeToString(r.PositionID[:])
	}
	return view
}
