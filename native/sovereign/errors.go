package sovereign

import (
	"errors"

	"sovereign/native/common"
)

const moduleName = "sovereign"

var (
	errStateNotConfigured = errors.New("sovereign: state not configured")

	ErrSovereignNotFound  = common.Precondition(moduleName, "SovereignNotFound", "sovereign not found")
	ErrSovereignExists    = common.Precondition(moduleName, "SovereignExists", "sovereign already exists")
	ErrInvalidParams      = common.Precondition(moduleName, "InvalidParams", "invalid launch parameters")
	ErrInvalidAmount      = common.Precondition(moduleName, "InvalidAmount", "amount must be positive")
	ErrInvalidPhase       = common.Precondition(moduleName, "InvalidPhase", "operation not allowed in current phase")
	ErrDeadlinePassed     = common.Precondition(moduleName, "DeadlinePassed", "bonding deadline passed")
	ErrDeadlineNotPassed  = common.Precondition(moduleName, "DeadlineNotPassed", "bonding deadline not reached")
	ErrBondingNotComplete = common.Precondition(moduleName, "BondingNotComplete", "bond target not reached")
	ErrTargetReached      = common.Precondition(moduleName, "TargetReached", "bond target already reached")
	ErrInsufficientFunds  = common.Precondition(moduleName, "InsufficientBalance", "insufficient base balance")
	ErrInsufficientAsset  = common.Precondition(moduleName, "InsufficientHolding", "insufficient asset holding")
	ErrInsufficientShare  = common.Precondition(moduleName, "InsufficientDeposit", "amount exceeds unminted deposit")
	ErrNoDeposit          = common.Precondition(moduleName, "NoDeposit", "no deposit record")
	ErrNothingToClaim     = common.Precondition(moduleName, "NothingToClaim", "nothing to claim")
	ErrAlreadyClaimed     = common.Precondition(moduleName, "AlreadyClaimed", "already claimed")
	ErrPositionNotFound   = common.Precondition(moduleName, "PositionNotFound", "position not found")
	ErrPositionTooSmall   = common.Precondition(moduleName, "PositionTooSmall", "amount maps to zero share")
	ErrObservationActive  = common.Precondition(moduleName, "ObservationActive", "unwind observation window still open")
	ErrCooldownActive     = common.Precondition(moduleName, "CooldownActive", "activity check cooldown active")
	ErrHalted             = common.Precondition(moduleName, "Halted", "sovereign halted")
	ErrInvalidRecipient   = common.Precondition(moduleName, "InvalidRecipient", "invalid recipient")

	ErrCreatorExcluded = common.Unauthorized(moduleName, "CreatorExcluded", "creator may not deposit")
	ErrNotCreator      = common.Unauthorized(moduleName, "NotCreator", "caller is not the creator")
	ErrNotOwner        = common.Unauthorized(moduleName, "NotOwner", "caller does not own the position")
	ErrNotParentOwner  = common.Unauthorized(moduleName, "NotParentOwner", "only the parent depositor may burn a position it owns")
	ErrNotAuthorized   = common.Unauthorized(moduleName, "NotAuthorized", "caller is not an administrator")

	ErrShareConservation = common.Invariant(moduleName, "ShareConservation", "position shares do not sum to the record share")
)
