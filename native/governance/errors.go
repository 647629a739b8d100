package governance

import (
	"errors"

	"sovereign/native/common"
)

const moduleName = "governance"

var (
	errStateNotConfigured     = errors.New("governance: state not configured")
	errSovereignNotConfigured = errors.New("governance: sovereign engine not configured")

	ErrProposalNotFound  = common.Precondition(moduleName, "ProposalNotFound", "proposal not found")
	ErrProposalOpen      = common.Precondition(moduleName, "ProposalOpen", "another proposal is active or awaiting execution")
	ErrInvalidPhase      = common.Precondition(moduleName, "InvalidPhase", "sovereign phase does not allow unwind governance")
	ErrInvalidStatus     = common.Precondition(moduleName, "InvalidStatus", "proposal status does not allow this action")
	ErrVotingNotStarted  = common.Precondition(moduleName, "VotingNotStarted", "voting has not started")
	ErrVotingClosed      = common.Precondition(moduleName, "VotingClosed", "voting period closed")
	ErrVotingInProgress  = common.Precondition(moduleName, "VotingInProgress", "voting still in progress")
	ErrTimelockActive    = common.Precondition(moduleName, "TimelockActive", "timelock not yet elapsed")
	ErrAlreadyVoted      = common.Precondition(moduleName, "AlreadyVoted", "every voting identity already voted")
	ErrNoVotingPower     = common.Precondition(moduleName, "NoVotingPower", "caller holds no eligible voting weight")
	ErrNoPosition        = common.Precondition(moduleName, "NoPosition", "proposer holds no deposit position")
	ErrCancelWindowEnded = common.Precondition(moduleName, "CancelWindowEnded", "proposal can only be cancelled before voting starts")

	ErrCreatorExcluded = common.Unauthorized(moduleName, "CreatorExcluded", "creator may not take part in unwind governance")
	ErrNotProposer     = common.Unauthorized(moduleName, "NotProposer", "caller is not the proposer")

	ErrTallyOverflow = common.Invariant(moduleName, "TallyOverflow", "vote tally exceeds 10000 bps")
)
