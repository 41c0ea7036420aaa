package modtree

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Tree owns a fixed set of modules and drives them through init and deinit
// in dependency order.
//
// All bookkeeping happens under a single mutex that is held only across the
// short synchronous sections between module operations, never across a
// running init or deinit.
type Tree struct {
	name   string
	logger Logger

	mu              sync.Mutex
	modules         moduleRegistry
	order           []string
	state           State
	modulesToLoad   int
	modulesToUnload int
	errs            []error
	initHandle      *Handle
	deinitHandle    *Handle
	opCtx           context.Context

	pending  []notification
	draining bool

	observers     []*observerRegistration
	observerMutex sync.RWMutex
}

// ModuleInfo is a read-only snapshot of one module.
type ModuleInfo struct {
	Name               string   `json:"name"`
	State              State    `json:"state"`
	Needed             bool     `json:"needed"`
	Dependencies       []string `json:"dependencies"`
	Dependants         []string `json:"dependants"`
	DependenciesToLoad int      `json:"dependenciesToLoad"`
	DependantsToUnload int      `json:"dependantsToUnload"`
	Error              string   `json:"error,omitempty"`
}

// New builds a Tree from descs. It fails with ErrBrokenDependency when a
// module depends on an unknown name and with ErrCyclicDependency when a
// needed module is part of a dependency cycle. No module operation runs
// before New returns.
func New(descs Descriptions, opts ...Option) (*Tree, error) {
	modules, err := buildRegistry(descs)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		name:    "modtree",
		modules: modules,
		order:   modules.names(),
		state:   StateOff,
		opCtx:   context.Background(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, fmt.Errorf("failed to apply tree option: %w", err)
		}
	}
	if t.logger == nil {
		t.logger = defaultLogger()
	}

	t.logger.Debug("Tree built", "tree", t.name, "modules", len(modules), "needed", modules.neededCount())
	return t, nil
}

// Name returns the tree name used as the source of its events.
func (t *Tree) Name() string {
	return t.name
}

// Init starts the tree.
//
// From StateOff it starts every needed module whose dependencies are
// satisfied and returns a new pending handle that settles with nil once all
// needed modules are up. If a module fails, the tree rolls back and the
// handle settles with an error wrapping ErrRollback; if Deinit is called
// first, it settles with ErrInitInterrupted.
//
// While initializing, Init returns the same pending handle. While up it
// returns an already-settled handle. From any other state it fails with
// ErrInvalidState; a tree that has gone down cannot be initialized again.
func (t *Tree) Init(ctx context.Context) (*Handle, error) {
	defer t.flush()
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateOff:
	case StateInitializing:
		return t.initHandle, nil
	case StateUp:
		return settledHandle(nil), nil
	default:
		return nil, fmt.Errorf("%w: cannot init tree %s while %s", ErrInvalidState, t.name, t.state)
	}

	t.opCtx = context.WithoutCancel(ctx)
	t.initHandle = newHandle()
	t.setTreeState(StateInitializing)
	t.modulesToLoad = t.modules.neededCount()

	if t.modulesToLoad == 0 {
		t.setTreeState(StateUp)
		t.settleLater(t.initHandle, nil)
		return t.initHandle, nil
	}

	var ready []*moduleRecord
	for _, name := range t.order {
		module := t.modules[name]
		if module.needed && module.dependenciesToLoad == 0 {
			ready = append(ready, module)
		}
	}
	for _, module := range ready {
		t.startInit(module)
	}
	return t.initHandle, nil
}

// Deinit shuts the tree down.
//
// From StateInitializing or StateUp it tears down every module that came up,
// dependants before dependencies, and returns a new pending handle that
// settles once the tree is down. In-flight inits are awaited and torn down
// as soon as they finish. From StateOff the tree moves straight to StateDown.
// While deinitializing it returns the same pending handle, and once down it
// returns the settled one.
//
// The handle always settles with nil; failures are reported through the
// error notifications and Errors.
func (t *Tree) Deinit(ctx context.Context) *Handle {
	defer t.flush()
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateOff, StateInitializing, StateUp:
		t.opCtx = context.WithoutCancel(ctx)
	}
	return t.beginDeinit(ErrInitInterrupted)
}

// Run initializes the tree, blocks until ctx is done and then deinitializes
// it, waiting until the tree is down. If init fails, Run skips the wait and
// returns after the rollback completes. The returned error joins every
// captured module error.
func (t *Tree) Run(ctx context.Context) error {
	up, err := t.Init(ctx)
	if err != nil {
		return err
	}

	select {
	case <-up.Done():
		if up.Err() == nil {
			t.logger.Info("Tree is up, waiting for shutdown", "tree", t.name)
			<-ctx.Done()
		}
	case <-ctx.Done():
	}

	t.logger.Info("Shutting down tree", "tree", t.name)
	<-t.Deinit(context.WithoutCancel(ctx)).Done()
	return errors.Join(t.Errors()...)
}

// State returns the tree state.
func (t *Tree) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ModuleState returns the state of the named module.
func (t *Tree) ModuleState(name string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	module, ok := t.modules[name]
	if !ok {
		return "", false
	}
	return module.state, true
}

// Data returns the data of the named module: its seed value, or the value
// its init returned once it is up.
func (t *Tree) Data(name string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	module, ok := t.modules[name]
	if !ok {
		return nil, false
	}
	return module.data, true
}

// Module returns a snapshot of the named module.
func (t *Tree) Module(name string) (ModuleInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	module, ok := t.modules[name]
	if !ok {
		return ModuleInfo{}, false
	}
	return module.info(), true
}

// Modules returns a snapshot of every module, sorted by name.
func (t *Tree) Modules() []ModuleInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]ModuleInfo, 0, len(t.order))
	for _, name := range t.order {
		infos = append(infos, t.modules[name].info())
	}
	return infos
}

// Errors returns a copy of every error captured so far, in capture order.
// Module failures are *ModuleError values.
func (t *Tree) Errors() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.errs)
}

func (m *moduleRecord) info() ModuleInfo {
	info := ModuleInfo{
		Name:               m.name,
		State:              m.state,
		Needed:             m.needed,
		Dependencies:       slices.Clone(m.deps),
		Dependants:         slices.Clone(m.dependants),
		DependenciesToLoad: m.dependenciesToLoad,
		DependantsToUnload: m.dependantsToUnload,
	}
	if m.err != nil {
		info.Error = m.err.Error()
	}
	return info
}

// setTreeState records a tree transition and queues its notifications.
// Must be called with t.mu held.
func (t *Tree) setTreeState(state State) {
	previous := t.state
	t.state = state

	t.logger.Info("Tree state changed", "tree", t.name, "from", previous, "to", state)
	t.emit(EventTypeTreeStateChanged, "", TreeStateData{Tree: t.name, State: state, Previous: previous})

	switch state {
	case StateUp:
		t.emit(EventTypeTreeStarted, "", nil)
	case StateDown:
		t.emit(EventTypeTreeStopped, "", nil)
	}
}

// setModuleState records a module transition and queues its notification.
// Must be called with t.mu held.
func (t *Tree) setModuleState(module *moduleRecord, state State) {
	previous := module.state
	module.state = state

	t.logger.Debug("Module state changed", "tree", t.name, "module", module.name, "from", previous, "to", state)
	t.emit(EventTypeModuleStateChanged, module.name, ModuleStateData{Module: module.name, State: state, Previous: previous})
}
