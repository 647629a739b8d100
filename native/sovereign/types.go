package sovereign

import (
	"math/big"

	"sovereign/native/slamm"
)

// Phase enumerates the lifecycle of a sovereign pool.
type Phase uint8

const (
	PhaseUnspecified Phase = iota
	// PhaseBonding accepts deposits until the bond target or the deadline.
	PhaseBonding
	// PhaseFinalizing means the bond target was reached and the pool is
	// waiting to be created.
	PhaseFinalizing
	// PhasePoolCreated is the transient step between the pool being seeded
	// and recovery starting.
	PhasePoolCreated
	// PhaseRecovery routes every fee to LPs until the recovery target is met.
	PhaseRecovery
	// PhaseActive applies the full fee waterfall.
	PhaseActive
	// PhaseUnwinding is the observation window after an unwind was initiated.
	PhaseUnwinding
	// PhaseUnwound means the reserve lock was released. Only sells and
	// claims continue.
	PhaseUnwound
	// PhaseFailed means bonding missed its deadline; deposits are refunded.
	PhaseFailed
	PhaseHalted
	PhaseRetired
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseBonding:
		return "bonding"
	case PhaseFinalizing:
		return "finalizing"
	case PhasePoolCreated:
		return "pool_created"
	case PhaseRecovery:
		return "recovery"
	case PhaseActive:
		return "active"
	case PhaseUnwinding:
		return "unwinding"
	case PhaseUnwound:
		return "unwound"
	case PhaseFailed:
		return "failed"
	case PhaseHalted:
		return "halted"
	case PhaseRetired:
		return "retired"
	default:
		return "unspecified"
	}
}

// Valid reports whether the phase is a known lifecycle value.
func (p Phase) Valid() bool {
	return p >= PhaseBonding && p <= PhaseRetired
}

// CanBuy reports whether buys are accepted in the phase.
func (p Phase) CanBuy() bool {
	return p == PhaseRecovery || p == PhaseActive || p == PhaseUnwinding
}

// CanSell reports whether sells are accepted in the phase.
func (p Phase) CanSell() bool {
	return p.CanBuy() || p == PhaseUnwound
}

// LaunchParams configures a new sovereign. Zero fee fields fall back to the
// protocol defaults.
type LaunchParams struct {
	ID                 string
	Name               string
	Symbol             string
	BondTarget         *big.Int
	Deadline           int64
	TotalSupply        *big.Int
	BinCount           uint32
	RecoverySwapFeeBps uint32
	ActiveSwapFeeBps   uint32
	CreatorFeeShareBps uint32
}

// UnwindTrigger identifies what started an unwind.
type UnwindTrigger uint8

const (
	UnwindTriggerNone UnwindTrigger = iota
	UnwindTriggerGovernance
	UnwindTriggerActivityCheck
)

func (t UnwindTrigger) String() string {
	switch t {
	case UnwindTriggerGovernance:
		return "governance"
	case UnwindTriggerActivityCheck:
		return "activity_check"
	default:
		return "none"
	}
}

// UnwindState tracks the observation window and, once unwound, the released
// reserve distributed to position holders.
type UnwindState struct {
	Trigger           UnwindTrigger
	ProposalID        uint64
	StartedAt         int64
	ObservationEndsAt int64
	FeeSnapshot       *big.Int
	PrevPhase         Phase
	Released          *big.Int
	Claimed           *big.Int
	Cancellations     uint32
}

// Sovereign is the persisted state of one launch, its pool included.
type Sovereign struct {
	ID                 string
	Name               string
	Symbol             string
	Creator            [20]byte
	Phase              Phase
	BondTarget         *big.Int
	TotalDeposited     *big.Int
	TotalRefunded      *big.Int
	Deadline           int64
	CreatedAt          int64
	FinalizedAt        int64
	TotalSupply        *big.Int
	BinCount           uint32
	RecoverySwapFeeBps uint32
	ActiveSwapFeeBps   uint32
	BinFeeShareBps     uint32
	CreatorFeeShareBps uint32
	CreationFee        *big.Int
	DepositorCount     uint32
	NextPositionNonce  uint64
	LastActivityCheck  int64
	HaltedFrom         Phase
	Unwind             UnwindState
	Pool               *slamm.Pool
}

// Clone returns a deep copy.
func (s *Sovereign) Clone() *Sovereign {
	if s == nil {
		return nil
	}
	out := *s
	out.BondTarget = copyAmount(s.BondTarget)
	out.TotalDeposited = copyAmount(s.TotalDeposited)
	out.TotalRefunded = copyAmount(s.TotalRefunded)
	out.TotalSupply = copyAmount(s.TotalSupply)
	out.CreationFee = copyAmount(s.CreationFee)
	out.Unwind.FeeSnapshot = copyAmount(s.Unwind.FeeSnapshot)
	out.Unwind.Released = copyAmount(s.Unwind.Released)
	out.Unwind.Claimed = copyAmount(s.Unwind.Claimed)
	out.Pool = s.Pool.Clone()
	return &out
}

// DepositRecord is a depositor's bonding contribution and the LP share it
// converted into.
type DepositRecord struct {
	SovereignID  string
	Depositor    [20]byte
	Amount       *big.Int
	PositionBps  uint32
	MintedAmount *big.Int
	MintedBps    uint32
	// FeeCheckpoint is the pool LP fee index at the last settlement.
	FeeCheckpoint *big.Int
	NFTMinted     bool
	UnwindClaimed bool
	RefundClaimed bool
	DepositedAt   int64
	// LastPositionChange is the last mint or burn against the record.
	// Governance ignores records reshaped after a proposal was created.
	LastPositionChange int64
}

// FreeBps is the share still held directly by the record.
func (r *DepositRecord) FreeBps() uint32 {
	if r == nil || r.MintedBps > r.PositionBps {
		return 0
	}
	return r.PositionBps - r.MintedBps
}

// Clone returns a deep copy.
func (r *DepositRecord) Clone() *DepositRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Amount = copyAmount(r.Amount)
	out.MintedAmount = copyAmount(r.MintedAmount)
	out.FeeCheckpoint = copyAmount(r.FeeCheckpoint)
	return &out
}

// PositionNFT is a transferable slice of a deposit record's share.
type PositionNFT struct {
	ID            [32]byte
	SovereignID   string
	Parent        [20]byte
	Owner         [20]byte
	DepositAmount *big.Int
	SharesBps     uint32
	FeeCheckpoint *big.Int
	UnwindClaimed bool
	MintedAt      int64
}

// Clone returns a deep copy.
func (p *PositionNFT) Clone() *PositionNFT {
	if p == nil {
		return nil
	}
	out := *p
	out.DepositAmount = copyAmount(p.DepositAmount)
	out.FeeCheckpoint = copyAmount(p.FeeCheckpoint)
	return &out
}

// Receipt is returned by every intent.
type Receipt struct {
	Intent      string
	SovereignID string
	Caller      [20]byte
	PhaseBefore Phase
	PhaseAfter  Phase
	Amount      *big.Int
	BaseIn      *big.Int
	BaseOut     *big.Int
	AssetIn     *big.Int
	AssetOut    *big.Int
	Fee         *big.Int
	PositionID  [32]byte
	ProposalID  uint64
	Status      string
	WeightBps   uint32
	Timestamp   int64
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
