package events

import (
	"strconv"

	"sovereign/core/types"
)

const (
	TypeProposalCreated   = "gov.proposed"
	TypeProposalVote      = "gov.vote"
	TypeProposalFinalized = "gov.finalized"
	TypeProposalExecuted  = "gov.executed"
	TypeProposalCancelled = "gov.cancelled"
)

// ProposalLifecycle covers every proposal status change.
type ProposalLifecycle struct {
	Type            string
	SovereignID     string
	ProposalID      uint64
	Actor           [20]byte
	Status          string
	VotesForBps     uint32
	VotesAgainstBps uint32
	TotalVotedBps   uint32
	QuorumMet       bool
	VotingStartsAt  int64
	VotingEndsAt    int64
	TimelockEndsAt  int64
}

func (e ProposalLifecycle) EventType() string { return e.Type }

func (e ProposalLifecycle) Event() *types.Event {
	return &types.Event{
		Type: e.Type,
		Attributes: map[string]string{
			"sovereign":       e.SovereignID,
			"proposalId":      strconv.FormatUint(e.ProposalID, 10),
			"actor":           addressString(e.Actor),
			"status":          e.Status,
			"votesForBps":     strconv.FormatUint(uint64(e.VotesForBps), 10),
			"votesAgainstBps": strconv.FormatUint(uint64(e.VotesAgainstBps), 10),
			"totalVotedBps":   strconv.FormatUint(uint64(e.TotalVotedBps), 10),
			"quorumMet":       strconv.FormatBool(e.QuorumMet),
			"votingStartsAt":  strconv.FormatInt(e.VotingStartsAt, 10),
			"votingEndsAt":    strconv.FormatInt(e.VotingEndsAt, 10),
			"timelockEndsAt":  strconv.FormatInt(e.TimelockEndsAt, 10),
		},
	}
}

// VoteCast records a ballot and the identities it consumed.
type VoteCast struct {
	SovereignID string
	ProposalID  uint64
	Voter       [20]byte
	Support     bool
	WeightBps   uint32
	Identities  int
}

func (VoteCast) EventType() string { return TypeProposalVote }

func (e VoteCast) Event() *types.Event {
	return &types.Event{
		Type: TypeProposalVote,
		Attributes: map[string]string{
			"sovereign":  e.SovereignID,
			"proposalId": strconv.FormatUint(e.ProposalID, 10),
			"voter":      addressString(e.Voter),
			"support":    strconv.FormatBool(e.Support),
			"weightBps":  strconv.FormatUint(uint64(e.WeightBps), 10),
			"identities": strconv.Itoa(e.Identities),
		},
	}
}
