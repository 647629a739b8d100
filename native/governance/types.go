package governance

import (
	"encoding/hex"

	"sovereign/crypto"
)

// ProposalStatus enumerates the lifecycle phases an unwind proposal moves
// through.
type ProposalStatus uint8

const (
	// ProposalStatusUnspecified marks an uninitialised proposal.
	ProposalStatusUnspecified ProposalStatus = iota
	// ProposalStatusActive covers the discussion delay and the voting window.
	ProposalStatusActive
	// ProposalStatusPassed marks proposals that met quorum and threshold and
	// wait for the timelock before execution.
	ProposalStatusPassed
	// ProposalStatusFailed is terminal: quorum or threshold was missed.
	ProposalStatusFailed
	// ProposalStatusExecuted is terminal: the unwind was started.
	ProposalStatusExecuted
	// ProposalStatusCancelled is terminal: withdrawn before voting or made
	// moot by the sovereign leaving the live phases.
	ProposalStatusCancelled
)

// String implements fmt.Stringer for logs, events and APIs.
func (s ProposalStatus) String() string {
	switch s {
	case ProposalStatusActive:
		return "active"
	case ProposalStatusPassed:
		return "passed"
	case ProposalStatusFailed:
		return "failed"
	case ProposalStatusExecuted:
		return "executed"
	case ProposalStatusCancelled:
		return "cancelled"
	default:
		return "unspecified"
	}
}

// Open reports whether the proposal still blocks a new one.
func (s ProposalStatus) Open() bool {
	return s == ProposalStatusActive || s == ProposalStatusPassed
}

// Proposal is an unwind proposal scoped to one sovereign. Quorum and pass
// threshold are copied from the protocol configuration when it is opened.
type Proposal struct {
	SovereignID      string
	ID               uint64
	Proposer         [20]byte
	Status           ProposalStatus
	VotesForBps      uint32
	VotesAgainstBps  uint32
	TotalVotedBps    uint32
	VoterCount       uint32
	QuorumBps        uint32
	PassThresholdBps uint32
	CreatedAt        int64
	VotingStartsAt   int64
	VotingEndsAt     int64
	TimelockEndsAt   int64
	FinalizedAt      int64
	ExecutedAt       int64
}

// Clone returns a copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// VoteRecord marks one voting identity as spent on a proposal.
type VoteRecord struct {
	SovereignID string
	ProposalID  uint64
	Identity    string
	Voter       [20]byte
	Support     bool
	WeightBps   uint32
	CastAt      int64
}

// Clone returns a copy of the vote record.
func (v *VoteRecord) Clone() *VoteRecord {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// RecordIdentity names the voting identity of a deposit record.
func RecordIdentity(depositor [20]byte) string {
	return "record:" + hex.EncodeToString(depositor[:])
}

// NFTIdentity names the voting identity of a position NFT.
func NFTIdentity(positionID [32]byte) string {
	return "nft:" + hex.EncodeToString(positionID[:])
}

// Tally is the outcome computed when voting closes.
type Tally struct {
	VotesForBps      uint32 `json:"votesForBps"`
	VotesAgainstBps  uint32 `json:"votesAgainstBps"`
	TotalVotedBps    uint32 `json:"totalVotedBps"`
	VoterCount       uint32 `json:"voterCount"`
	QuorumBps        uint32 `json:"quorumBps"`
	PassThresholdBps uint32 `json:"passThresholdBps"`
	QuorumMet        bool   `json:"quorumMet"`
	Passed           bool   `json:"passed"`
}

// ComputeTally applies the quorum and pass threshold rules. Both comparisons
// are inclusive and a proposal without votes never reaches quorum.
func ComputeTally(p *Proposal) Tally {
	tally := Tally{
		VotesForBps:      p.VotesForBps,
		VotesAgainstBps:  p.VotesAgainstBps,
		TotalVotedBps:    p.TotalVotedBps,
		VoterCount:       p.VoterCount,
		QuorumBps:        p.QuorumBps,
		PassThresholdBps: p.PassThresholdBps,
	}
	if p.TotalVotedBps == 0 {
		return tally
	}
	tally.QuorumMet = p.TotalVotedBps >= p.QuorumBps
	forScaled := uint64(p.VotesForBps) * 10_000
	needed := uint64(p.TotalVotedBps) * uint64(p.PassThresholdBps)
	tally.Passed = tally.QuorumMet && forScaled >= needed
	return tally
}

// ProposalView is the read-only projection of a proposal.
type ProposalView struct {
	SovereignID      string         `json:"sovereignId"`
	ID               uint64         `json:"id"`
	Proposer         crypto.Address `json:"proposer"`
	Status           string         `json:"status"`
	VotesForBps      uint32         `json:"votesForBps"`
	VotesAgainstBps  uint32         `json:"votesAgainstBps"`
	TotalVotedBps    uint32         `json:"totalVotedBps"`
	VoterCount       uint32         `json:"voterCount"`
	QuorumBps        uint32         `json:"quorumBps"`
	PassThresholdBps uint32         `json:"passThresholdBps"`
	QuorumMet        bool           `json:"quorumMet"`
	CreatedAt        int64          `json:"createdAt"`
	VotingStartsAt   int64          `json:"votingStartsAt"`
	VotingEndsAt     int64          `json:"votingEndsAt"`
	TimelockEndsAt   int64          `json:"timelockEndsAt"`
}

// NewProposalView projects a proposal for observers.
func NewProposalView(p *Proposal) *ProposalView {
	tally := ComputeTally(p)
	return &ProposalView{
		SovereignID:      p.SovereignID,
		ID:               p.ID,
		Proposer:         crypto.Address(p.Proposer),
		Status:           p.Status.String(),
		VotesForBps:      p.VotesForBps,
		VotesAgainstBps:  p.VotesAgainstBps,
		TotalVotedBps:    p.TotalVotedBps,
		VoterCount:       p.VoterCount,
		QuorumBps:        p.QuorumBps,
		PassThresholdBps: p.PassThresholdBps,
		QuorumMet:        tally.QuorumMet,
		CreatedAt:        p.CreatedAt,
		VotingStartsAt:   p.VotingStartsAt,
		VotingEndsAt:     p.VotingEndsAt,
		TimelockEndsAt:   p.TimelockEndsAt,
	}
}
