package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"sovereign/core/types"
	"sovereign/native/governance"
	"sovereign/native/slamm"
	"sovereign/native/sovereign"
)

// RecordKind tags every stored value so audits can decode a raw dump without
// knowing which prefix it came from.
type RecordKind byte

const (
	KindUnknown RecordKind = iota
	KindSovereign
	KindAccount
	KindHolding
	KindDeposit
	KindPosition
	KindProposal
	KindVote
)

func (k RecordKind) String() string {
	switch k {
	case KindSovereign:
		return "sovereign"
	case KindAccount:
		return "account"
	case KindHolding:
		return "holding"
	case KindDeposit:
		return "deposit"
	case KindPosition:
		return "position"
	case KindProposal:
		return "proposal"
	case KindVote:
		return "vote"
	default:
		return "unknown"
	}
}

var errEmptyRecord = errors.New("state: empty record")

type storedUnwind struct {
	Trigger           uint8
	ProposalID        uint64
	StartedAt         uint64
	ObservationEndsAt uint64
	FeeSnapshot       *big.Int
	PrevPhase         uint8
	Released          *big.Int
	Claimed           *big.Int
	Cancellations     uint32
}

type storedSovereign struct {
	ID                 string
	Name               string
	Symbol             string
	Creator            [20]byte
	Phase              uint8
	BondTarget         *big.Int
	TotalDeposited     *big.Int
	TotalRefunded      *big.Int
	Deadline           uint64
	CreatedAt          uint64
	FinalizedAt        uint64
	TotalSupply        *big.Int
	BinCount           uint32
	RecoverySwapFeeBps uint32
	ActiveSwapFeeBps   uint32
	BinFeeShareBps     uint32
	CreatorFeeShareBps uint32
	CreationFee        *big.Int
	DepositorCount     uint32
	NextPositionNonce  uint64
	LastActivityCheck  uint64
	HaltedFrom         uint8
	Unwind             storedUnwind
	Pool               *slamm.Pool `rlp:"nil"`
}

func newStoredSovereign(s *sovereign.Sovereign) *storedSovereign {
	return &storedSovereign{
		ID:                 s.ID,
		Name:               s.Name,
		Symbol:             s.Symbol,
		Creator:            s.Creator,
		Phase:              uint8(s.Phase),
		BondTarget:         s.BondTarget,
		TotalDeposited:     s.TotalDeposited,
		TotalRefunded:      s.TotalRefunded,
		Deadline:           toUint64(s.Deadline),
		CreatedAt:          toUint64(s.CreatedAt),
		FinalizedAt:        toUint64(s.FinalizedAt),
		TotalSupply:        s.TotalSupply,
		BinCount:           s.BinCount,
		RecoverySwapFeeBps: s.RecoverySwapFeeBps,
		ActiveSwapFeeBps:   s.ActiveSwapFeeBps,
		BinFeeShareBps:     s.BinFeeShareBps,
		CreatorFeeShareBps: s.CreatorFeeShareBps,
		CreationFee:        s.CreationFee,
		DepositorCount:     s.DepositorCount,
		NextPositionNonce:  s.NextPositionNonce,
		LastActivityCheck:  toUint64(s.LastActivityCheck),
		HaltedFrom:         uint8(s.HaltedFrom),
		Unwind: storedUnwind{
			Trigger:           uint8(s.Unwind.Trigger),
			ProposalID:        s.Unwind.ProposalID,
			StartedAt:         toUint64(s.Unwind.StartedAt),
			ObservationEndsAt: toUint64(s.Unwind.ObservationEndsAt),
			FeeSnapshot:       s.Unwind.FeeSnapshot,
			PrevPhase:         uint8(s.Unwind.PrevPhase),
			Released:          s.Unwind.Released,
			Claimed:           s.Unwind.Claimed,
			Cancellations:     s.Unwind.Cancellations,
		},
		Pool: s.Pool,
	}
}

func (s *storedSovereign) toSovereign() *sovereign.Sovereign {
	return &sovereign.Sovereign{
		ID:                 s.ID,
		Name:               s.Name,
		Symbol:             s.Symbol,
		Creator:            s.Creator,
		Phase:              sovereign.Phase(s.Phase),
		BondTarget:         orZero(s.BondTarget),
		TotalDeposited:     orZero(s.TotalDeposited),
		TotalRefunded:      orZero(s.TotalRefunded),
		Deadline:           toInt64(s.Deadline),
		CreatedAt:          toInt64(s.CreatedAt),
		FinalizedAt:        toInt64(s.FinalizedAt),
		TotalSupply:        orZero(s.TotalSupply),
		BinCount:           s.BinCount,
		RecoverySwapFeeBps: s.RecoverySwapFeeBps,
		ActiveSwapFeeBps:   s.ActiveSwapFeeBps,
		BinFeeShareBps:     s.BinFeeShareBps,
		CreatorFeeShareBps: s.CreatorFeeShareBps,
		CreationFee:        orZero(s.CreationFee),
		DepositorCount:     s.DepositorCount,
		NextPositionNonce:  s.NextPositionNonce,
		LastActivityCheck:  toInt64(s.LastActivityCheck),
		HaltedFrom:         sovereign.Phase(s.HaltedFrom),
		Unwind: sovereign.UnwindState{
			Trigger:           sovereign.UnwindTrigger(s.Unwind.Trigger),
			ProposalID:        s.Unwind.ProposalID,
			StartedAt:         toInt64(s.Unwind.StartedAt),
			ObservationEndsAt: toInt64(s.Unwind.ObservationEndsAt),
			FeeSnapshot:       orZero(s.Unwind.FeeSnapshot),
			PrevPhase:         sovereign.Phase(s.Unwind.PrevPhase),
			Released:          orZero(s.Unwind.Released),
			Claimed:           orZero(s.Unwind.Claimed),
			Cancellations:     s.Unwind.Cancellations,
		},
		Pool: s.Pool,
	}
}

type storedDeposit struct {
	SovereignID        string
	Depositor          [20]byte
	Amount             *big.Int
	PositionBps        uint32
	MintedAmount       *big.Int
	MintedBps          uint32
	FeeCheckpoint      *big.Int
	NFTMinted          bool
	UnwindClaimed      bool
	RefundClaimed      bool
	DepositedAt        uint64
	LastPositionChange uint64
}

func newStoredDeposit(r *sovereign.DepositRecord) *storedDeposit {
	return &storedDeposit{
		SovereignID:        r.SovereignID,
		Depositor:          r.Depositor,
		Amount:             r.Amount,
		PositionBps:        r.PositionBps,
		MintedAmount:       r.MintedAmount,
		MintedBps:          r.MintedBps,
		FeeCheckpoint:      r.FeeCheckpoint,
		NFTMinted:          r.NFTMinted,
		UnwindClaimed:      r.UnwindClaimed,
		RefundClaimed:      r.RefundClaimed,
		DepositedAt:        toUint64(r.DepositedAt),
		LastPositionChange: toUint64(r.LastPositionChange),
	}
}

func (r *storedDeposit) toDeposit() *sovereign.DepositRecord {
	return &sovereign.DepositRecord{
		SovereignID:        r.SovereignID,
		Depositor:          r.Depositor,
		Amount:             orZero(r.Amount),
		PositionBps:        r.PositionBps,
		MintedAmount:       orZero(r.MintedAmount),
		MintedBps:          r.MintedBps,
		FeeCheckpoint:      orZero(r.FeeCheckpoint),
		NFTMinted:          r.NFTMinted,
		UnwindClaimed:      r.UnwindClaimed,
		RefundClaimed:      r.RefundClaimed,
		DepositedAt:        toInt64(r.DepositedAt),
		LastPositionChange: toInt64(r.LastPositionChange),
	}
}

type storedPosition struct {
	ID            [32]byte
	SovereignID   string
	Parent        [20]byte
	Owner         [20]byte
	DepositAmount *big.Int
	SharesBps     uint32
	FeeCheckpoint *big.Int
	UnwindClaimed bool
	MintedAt      uint64
}

func newStoredPosition(p *sovereign.PositionNFT) *storedPosition {
	return &storedPosition{
		ID:            p.ID,
		SovereignID:   p.SovereignID,
		Parent:        p.Parent,
		Owner:         p.Owner,
		DepositAmount: p.DepositAmount,
		SharesBps:     p.SharesBps,
		FeeCheckpoint: p.FeeCheckpoint,
		UnwindClaimed: p.UnwindClaimed,
		MintedAt:      toUint64(p.MintedAt),
	}
}

func (p *storedPosition) toPosition() *sovereign.PositionNFT {
	return &sovereign.PositionNFT{
		ID:            p.ID,
		SovereignID:   p.SovereignID,
		Parent:        p.Parent,
		Owner:         p.Owner,
		DepositAmount: orZero(p.DepositAmount),
		SharesBps:     p.SharesBps,
		FeeCheckpoint: orZero(p.FeeCheckpoint),
		UnwindClaimed: p.UnwindClaimed,
		MintedAt:      toInt64(p.MintedAt),
	}
}

type storedProposal struct {
	SovereignID      string
	ID               uint64
	Proposer         [20]byte
	Status           uint8
	VotesForBps      uint32
	VotesAgainstBps  uint32
	TotalVotedBps    uint32
	VoterCount       uint32
	QuorumBps        uint32
	PassThresholdBps uint32
	CreatedAt        uint64
	VotingStartsAt   uint64
	VotingEndsAt     uint64
	TimelockEndsAt   uint64
	FinalizedAt      uint64
	ExecutedAt       uint64
}

func newStoredProposal(p *governance.Proposal) *storedProposal {
	return &storedProposal{
		SovereignID:      p.SovereignID,
		ID:               p.ID,
		Proposer:         p.Proposer,
		Status:           uint8(p.Status),
		VotesForBps:      p.VotesForBps,
		VotesAgainstBps:  p.VotesAgainstBps,
		TotalVotedBps:    p.TotalVotedBps,
		VoterCount:       p.VoterCount,
		QuorumBps:        p.QuorumBps,
		PassThresholdBps: p.PassThresholdBps,
		CreatedAt:        toUint64(p.CreatedAt),
		VotingStartsAt:   toUint64(p.VotingStartsAt),
		VotingEndsAt:     toUint64(p.VotingEndsAt),
		TimelockEndsAt:   toUint64(p.TimelockEndsAt),
		FinalizedAt:      toUint64(p.FinalizedAt),
		ExecutedAt:       toUint64(p.ExecutedAt),
	}
}

func (p *storedProposal) toProposal() *governance.Proposal {
	return &governance.Proposal{
		SovereignID:      p.SovereignID,
		ID:               p.ID,
		Proposer:         p.Proposer,
		Status:           governance.ProposalStatus(p.Status),
		VotesForBps:      p.VotesForBps,
		VotesAgainstBps:  p.VotesAgainstBps,
		TotalVotedBps:    p.TotalVotedBps,
		VoterCount:       p.VoterCount,
		QuorumBps:        p.QuorumBps,
		PassThresholdBps: p.PassThresholdBps,
		CreatedAt:        toInt64(p.CreatedAt),
		VotingStartsAt:   toInt64(p.VotingStartsAt),
		VotingEndsAt:     toInt64(p.VotingEndsAt),
		TimelockEndsAt:   toInt64(p.TimelockEndsAt),
		FinalizedAt:      toInt64(p.FinalizedAt),
		ExecutedAt:       toInt64(p.ExecutedAt),
	}
}

type storedVote struct {
	SovereignID string
	ProposalID  uint64
	Identity    string
	Voter       [20]byte
	Support     bool
	WeightBps   uint32
	CastAt      uint64
}

func newStoredVote(v *governance.VoteRecord) *storedVote {
	return &storedVote{
		SovereignID: v.SovereignID,
		ProposalID:  v.ProposalID,
		Identity:    v.Identity,
		Voter:       v.Voter,
		Support:     v.Support,
		WeightBps:   v.WeightBps,
		CastAt:      toUint64(v.CastAt),
	}
}

func (v *storedVote) toVote() *governance.VoteRecord {
	return &governance.VoteRecord{
		SovereignID: v.SovereignID,
		ProposalID:  v.ProposalID,
		Identity:    v.Identity,
		Voter:       v.Voter,
		Support:     v.Support,
		WeightBps:   v.WeightBps,
		CastAt:      toInt64(v.CastAt),
	}
}

func encodeRecord(kind RecordKind, value any) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(value)
	if err != nil {
		return nil, fmt.Errorf("state: encode %s: %w", kind, err)
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(kind))
	return append(out, payload...), nil
}

func decodeInto(data []byte, want RecordKind, into any) error {
	if len(data) == 0 {
		return errEmptyRecord
	}
	if got := RecordKind(data[0]); got != want {
		return fmt.Errorf("state: expected %s record, found %s", want, got)
	}
	if err := rlp.DecodeBytes(data[1:], into); err != nil {
		return fmt.Errorf("state: decode %s: %w", want, err)
	}
	return nil
}

func decodeSovereign(data []byte) (*sovereign.Sovereign, error) {
	stored := new(storedSovereign)
	if err := decodeInto(data, KindSovereign, stored); err != nil {
		return nil, err
	}
	return stored.toSovereign(), nil
}

func decodeAccount(data []byte) (*types.Account, error) {
	acct := new(types.Account)
	if err := decodeInto(data, KindAccount, acct); err != nil {
		return nil, err
	}
	acct.Balance = orZero(acct.Balance)
	return acct, nil
}

func decodeHolding(data []byte) (*types.Holding, error) {
	holding := new(types.Holding)
	if err := decodeInto(data, KindHolding, holding); err != nil {
		return nil, err
	}
	holding.Amount = orZero(holding.Amount)
	return holding, nil
}

func decodeDeposit(data []byte) (*sovereign.DepositRecord, error) {
	stored := new(storedDeposit)
	if err := decodeInto(data, KindDeposit, stored); err != nil {
		return nil, err
	}
	return stored.toDeposit(), nil
}

func decodePosition(data []byte) (*sovereign.PositionNFT, error) {
	stored := new(storedPosition)
	if err := decodeInto(data, KindPosition, stored); err != nil {
		return nil, err
	}
	return stored.toPosition(), nil
}

func decodeProposal(data []byte) (*governance.Proposal, error) {
	stored := new(storedProposal)
	if err := decodeInto(data, KindProposal, stored); err != nil {
		return nil, err
	}
	return stored.toProposal(), nil
}

func decodeVote(data []byte) (*governance.VoteRecord, error) {
	stored := new(storedVote)
	if err := decodeInto(data, KindVote, stored); err != nil {
		return nil, err
	}
	return stored.toVote(), nil
}

// DecodeRecord decodes any value written by the manager into its domain
// type.
func DecodeRecord(data []byte) (RecordKind, any, error) {
	if len(data) == 0 {
		return KindUnknown, nil, errEmptyRecord
	}
	kind := RecordKind(data[0])
	var (
		record any
		err    error
	)
	switch kind {
	case KindSovereign:
		record, err = decodeSovereign(data)
	case KindAccount:
		record, err = decodeAccount(data)
	case KindHolding:
		record, err = decodeHolding(data)
	case KindDeposit:
		record, err = decodeDeposit(data)
	case KindPosition:
		record, err = decodePosition(data)
	case KindProposal:
		record, err = decodeProposal(data)
	case KindVote:
		record, err = decodeVote(data)
	default:
		return KindUnknown, nil, fmt.Errorf("state: unknown record kind %d", data[0])
	}
	if err != nil {
		return kind, nil, err
	}
	return kind, record, nil
}

func toUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func toInt64(v uint64) int64 {
	if v > uint64(1<<63-1) {
		return 1<<63 - 1
	}
	return int64(v)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
