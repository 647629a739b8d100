package common

import "fmt"

// ErrModulePaused is returned when an operator paused a module wholesale,
// independent of any per-sovereign phase.
var ErrModulePaused = Precondition("", "ModulePaused", "module paused")

// PauseView reports operator pauses by module name.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused while module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
