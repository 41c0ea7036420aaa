package modtree

import (
	"errors"
	"fmt"
)

// Tree errors
var (
	// Construction errors
	ErrBrokenDependency = errors.New("module depends on non-existent module")
	ErrCyclicDependency = errors.New("circular dependency detected")
	ErrDuplicateModule  = errors.New("duplicate module name")
	ErrEmptyTreeName    = errors.New("tree name is empty")

	// Lifecycle errors
	ErrInvalidState    = errors.New("invalid tree state")
	ErrModuleInit      = errors.New("module init failed")
	ErrModuleDeinit    = errors.New("module deinit failed")
	ErrModulePanic     = errors.New("module operation panicked")
	ErrRollback        = errors.New("tree rolled back after module failure")
	ErrInitInterrupted = errors.New("init interrupted by deinit")

	// Observer errors
	ErrNilObserver = errors.New("observer is nil")
)

// ModuleError is a failure captured from a module's init or deinit
// operation. It matches ErrModuleInit or ErrModuleDeinit with errors.Is,
// depending on Phase, and unwraps to the operation's own error.
type ModuleError struct {
	Module string
	Phase  Phase
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module '%s' failed to %s: %v", e.Module, e.Phase, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the phase sentinel for this error.
func (e *ModuleError) Is(target error) bool {
	switch target {
	case ErrModuleInit:
		return e.Phase == PhaseInit
	case ErrModuleDeinit:
		return e.Phase == PhaseDeinit
	}
	return false
}
