package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategoryOfWrappedSentinel(t *testing.T) {
	errSample := Invariant("slamm", "SolvencyViolation", "solvency floor breached")
	wrapped := fmt.Errorf("buy: %w", errSample)
	if !errors.Is(wrapped, errSample) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if got := CategoryOf(wrapped); got != CategoryInvariant {
		t.Fatalf("expected invariant category, got %s", got)
	}
	if got := CodeOf(wrapped); got != "SolvencyViolation" {
		t.Fatalf("unexpected code %q", got)
	}
	if got := wrapped.Error(); got != "buy: slamm: solvency floor breached" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestCategoryOfPlainError(t *testing.T) {
	if got := CategoryOf(errors.New("disk on fire")); got != CategoryInternal {
		t.Fatalf("expected internal category, got %s", got)
	}
	if got := CodeOf(nil); got != "Internal" {
		t.Fatalf("unexpected code for nil %q", got)
	}
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "sovereign"); err != nil {
		t.Fatalf("nil pause view must not block: %v", err)
	}
	if err := Guard(pauseSet{"sovereign": true}, "sovereign"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if CategoryOf(ErrModulePaused) != CategoryPrecondition {
		t.Fatalf("pause must be a precondition failure")
	}
}
