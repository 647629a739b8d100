package slamm

import "sovereign/native/common"

const moduleName = "slamm"

var (
	ErrInvalidAmount            = common.Precondition(moduleName, "InvalidAmount", "amount must be positive")
	ErrTradeTooSmall            = common.Precondition(moduleName, "TradeTooSmall", "trade too small to move the curve")
	ErrInsufficientLiquidity    = common.Precondition(moduleName, "InsufficientLiquidity", "asset out exceeds unfilled bin capacity")
	ErrInsufficientFilledSupply = common.Precondition(moduleName, "InsufficientFilledSupply", "asset in exceeds filled supply")
	ErrSlippageExceeded         = common.Precondition(moduleName, "SlippageExceeded", "output below minimum")
	ErrPoolNotInitialised       = common.Precondition(moduleName, "PoolNotInitialised", "pool not initialised")
	ErrInsufficientFees         = common.Precondition(moduleName, "InsufficientFees", "fee accumulator exhausted")

	ErrBinOverfill        = common.Invariant(moduleName, "BinOverfill", "fill exceeds remaining bin capacity")
	ErrBinUnderdrain      = common.Invariant(moduleName, "BinUnderdrain", "drain exceeds bin allocation")
	ErrBinNotLocked       = common.Invariant(moduleName, "BinNotLocked", "bin rate not locked")
	ErrBinIndex           = common.Invariant(moduleName, "BinIndex", "bin index out of range")
	ErrSolvencyViolation  = common.Invariant(moduleName, "SolvencyViolation", "base reserve below solvency floor")
	ErrShareConservation  = common.Invariant(moduleName, "ShareConservation", "conservation check failed")
	ErrArithmeticOverflow = common.Invariant(moduleName, "ArithmeticOverflow", "arithmetic overflow")
	ErrNegativeValue      = common.Invariant(moduleName, "NegativeValue", "arithmetic underflow")
	ErrDivisionByZero     = common.Invariant(moduleName, "DivisionByZero", "division by zero")
)
