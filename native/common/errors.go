package common

import (
	"errors"
	"fmt"
)

// Category groups engine failures by how a caller is expected to react.
type Category string

const (
	// CategoryPrecondition marks failures that may succeed once state changes
	// elsewhere (wrong phase, deadline not reached, insufficient balance).
	CategoryPrecondition Category = "precondition"
	// CategoryInvariant marks failures that would have broken a numeric
	// invariant. They are never partially applied.
	CategoryInvariant Category = "invariant"
	// CategoryAuthorization marks callers that are not permitted to perform
	// the requested action.
	CategoryAuthorization Category = "authorization"
	// CategoryInternal covers storage and wiring failures.
	CategoryInternal Category = "internal"
)

// CodedError is a sentinel error carrying a stable machine readable code and
// its category. Sentinels are compared by identity so errors.Is keeps working
// through fmt.Errorf wrapping.
type CodedError struct {
	Module   string
	Code     string
	Category Category
	Message  string
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Module == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Module, e.Message)
}

// Precondition constructs a precondition sentinel.
func Precondition(module, code, msg string) *CodedError {
	return &CodedError{Module: module, Code: code, Category: CategoryPrecondition, Message: msg}
}

// Invariant constructs an invariant sentinel.
func Invariant(module, code, msg string) *CodedError {
	return &CodedError{Module: module, Code: code, Category: CategoryInvariant, Message: msg}
}

// Unauthorized constructs an authorization sentinel.
func Unauthorized(module, code, msg string) *CodedError {
	return &CodedError{Module: module, Code: code, Category: CategoryAuthorization, Message: msg}
}

// CategoryOf reports the category of the first CodedError in err's chain.
// Errors outside the coded set are treated as internal.
func CategoryOf(err error) Category {
	var coded *CodedError
	if errors.As(err, &coded) && coded != nil {
		return coded.Category
	}
	return CategoryInternal
}

// CodeOf returns the stable code of the first CodedError in err's chain.
func CodeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) && coded != nil {
		return coded.Code
	}
	return "Internal"
}
