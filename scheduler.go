package modtree

import (
	"context"
	"fmt"
)

// startInit marks module initializing and launches its init operation.
// Must be called with t.mu held.
//
// The module is counted against every dependency's dependantsToUnload as
// soon as its init starts, so no dependency can be torn down underneath an
// init that is still running.
func (t *Tree) startInit(module *moduleRecord) {
	t.setModuleState(module, StateInitializing)
	t.modulesToUnload++

	deps := make(map[string]any, len(module.deps))
	for _, name := range module.deps {
		dep := t.modules[name]
		dep.dependantsToUnload++
		deps[name] = dep.data
	}

	go t.runInit(t.opCtx, module, deps)
}

func (t *Tree) runInit(ctx context.Context, module *moduleRecord, deps map[string]any) {
	data, err := callInit(ctx, module.init, deps)

	t.mu.Lock()
	if err != nil {
		t.initFailed(module, err)
	} else {
		t.initSucceeded(module, data)
	}
	t.mu.Unlock()

	t.flush()
}

// initSucceeded must be called with t.mu held.
func (t *Tree) initSucceeded(module *moduleRecord, data any) {
	if !module.seeded {
		module.data = data
	}
	t.setModuleState(module, StateUp)

	switch t.state {
	case StateInitializing:
		t.modulesToLoad--
		if t.modulesToLoad == 0 {
			t.setTreeState(StateUp)
			t.settleLater(t.initHandle, nil)
			return
		}

		for _, name := range module.dependants {
			dependant := t.modules[name]
			if !dependant.needed {
				continue
			}
			dependant.dependenciesToLoad--
			if dependant.dependenciesToLoad == 0 {
				t.startInit(dependant)
			}
		}

	case StateDeinitializing:
		// The tree started shutting down while this init was in flight;
		// none of its dependants can have started, so it unwinds at once.
		if module.dependantsToUnload <= 0 {
			t.startDeinit(module)
		}
	}
}

// initFailed must be called with t.mu held.
func (t *Tree) initFailed(module *moduleRecord, err error) {
	t.modulesToUnload--
	moduleErr := &ModuleError{Module: module.name, Phase: PhaseInit, Err: err}
	module.err = moduleErr
	t.setModuleState(module, StateError)

	t.releaseDependencies(module)
	if t.state == StateDeinitializing && t.modulesToUnload <= 0 {
		t.finishDeinit()
	}

	t.captureError(moduleErr)
}

// startDeinit marks module deinitializing and launches its deinit operation.
// Must be called with t.mu held.
func (t *Tree) startDeinit(module *moduleRecord) {
	t.setModuleState(module, StateDeinitializing)
	go t.runDeinit(t.opCtx, module)
}

func (t *Tree) runDeinit(ctx context.Context, module *moduleRecord) {
	err := callDeinit(ctx, module.deinit)

	t.mu.Lock()
	t.deinitDone(module, err)
	t.mu.Unlock()

	t.flush()
}

// deinitDone must be called with t.mu held. A failed deinit is recorded but
// never stops the cascade.
func (t *Tree) deinitDone(module *moduleRecord, err error) {
	if err != nil {
		moduleErr := &ModuleError{Module: module.name, Phase: PhaseDeinit, Err: err}
		module.err = moduleErr
		t.setModuleState(module, StateError)
		t.captureError(moduleErr)
	} else {
		t.setModuleState(module, StateDown)
	}

	t.modulesToUnload--
	if t.modulesToUnload <= 0 {
		t.finishDeinit()
		return
	}
	t.releaseDependencies(module)
}

// releaseDependencies drops module from each dependency's dependantsToUnload
// and, during a shutdown, tears down every dependency that became ready.
// Must be called with t.mu held.
func (t *Tree) releaseDependencies(module *moduleRecord) {
	for _, name := range module.deps {
		dep := t.modules[name]
		dep.dependantsToUnload--
		if t.state == StateDeinitializing && dep.state == StateUp && dep.dependantsToUnload <= 0 {
			t.startDeinit(dep)
		}
	}
}

func callInit(ctx context.Context, fn InitFunc, deps map[string]any) (data any, err error) {
	if fn == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanic, r)
		}
	}()
	return fn(ctx, deps)
}

func callDeinit(ctx context.Context, fn DeinitFunc) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanic, r)
		}
	}()
	return fn(ctx)
}
