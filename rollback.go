package modtree

import (
	"errors"
	"fmt"
)

// captureError records a module failure, reports it and makes sure the tree
// is heading for StateDown. Must be called with t.mu held.
func (t *Tree) captureError(err *ModuleError) {
	t.errs = append(t.errs, err)
	t.emitError(err.Module, err.Phase, err)

	t.beginDeinit(fmt.Errorf("%w: %w", ErrRollback, errors.Join(t.errs...)))
}

// beginDeinit is the single entry into the deinit scheduler, shared by
// Deinit and by rollback. interrupted settles a pending init handle when the
// shutdown starts mid-init. Must be called with t.mu held.
func (t *Tree) beginDeinit(interrupted error) *Handle {
	switch t.state {
	case StateOff:
		t.deinitHandle = newHandle()
		t.setTreeState(StateDown)
		t.settleLater(t.deinitHandle, nil)
		return t.deinitHandle

	case StateInitializing, StateUp:
		if t.state == StateInitializing {
			t.settleLater(t.initHandle, interrupted)
		}
		t.deinitHandle = newHandle()
		t.setTreeState(StateDeinitializing)

		if t.modulesToUnload <= 0 {
			t.finishDeinit()
			return t.deinitHandle
		}

		var ready []*moduleRecord
		for _, name := range t.order {
			module := t.modules[name]
			if module.state == StateUp && module.dependantsToUnload <= 0 {
				ready = append(ready, module)
			}
		}
		for _, module := range ready {
			t.startDeinit(module)
		}
		return t.deinitHandle

	default:
		if t.deinitHandle == nil {
			return settledHandle(nil)
		}
		return t.deinitHandle
	}
}

// finishDeinit moves the tree to StateDown and settles the deinit handle.
// Must be called with t.mu held.
func (t *Tree) finishDeinit() {
	if t.state != StateDeinitializing {
		return
	}
	t.setTreeState(StateDown)
	t.settleLater(t.deinitHandle, nil)
}
