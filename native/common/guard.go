package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused rejects value-moving operations while a module's pause
// switch is set.
var ErrModulePaused = errors.New("module paused")

// PauseView answers whether a named module is administratively paused.
// Implementations are read-only views over configuration or governance state.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when the module is paused. A nil view or
// empty module name never blocks: guards default open so a missing wiring
// degrades to unpaused rather than a dead service.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
