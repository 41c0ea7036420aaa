// Package modtree coordinates the startup and shutdown of a set of named,
// interdependent modules.
//
// Each module declares the modules it depends on. A module's init operation
// runs only after every one of its dependencies has come up, and shutdown
// runs in reverse: a module is torn down only after every dependant that
// started has been torn down. Independent branches of the graph initialize
// and deinitialize concurrently. A failure in any init operation rolls the
// whole tree back to down.
//
// Basic usage:
//
//	tree, err := modtree.New(modtree.Descriptions{
//		"database": {Init: openDatabase, Deinit: closeDatabase},
//		"api":      {Deps: []string{"database"}, Init: startAPI, Needed: true},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	up, err := tree.Init(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := up.Wait(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer tree.Deinit(ctx).Wait(ctx)
package modtree

import (
	"context"
	"fmt"
)

// InitFunc brings a module up. deps maps each declared dependency name to the
// data that dependency produced. The returned value becomes the module's data
// unless the module carries seed data.
//
// An InitFunc may block for as long as it needs; the tree runs it on its own
// goroutine and never cancels it.
type InitFunc func(ctx context.Context, deps map[string]any) (any, error)

// DeinitFunc tears a module down.
type DeinitFunc func(ctx context.Context) error

// Description declares a single module.
type Description struct {
	// Deps lists the names of the modules this module requires. Duplicates
	// are ignored; order is preserved.
	Deps []string

	// Init brings the module up. A nil Init succeeds immediately with nil data.
	Init InitFunc

	// Deinit tears the module down. A nil Deinit is a no-op.
	Deinit DeinitFunc

	// Data is an optional seed value. When non-nil it is used as the
	// module's data instead of whatever Init returns.
	Data any

	// Needed marks the module as required. Every dependency of a needed
	// module is needed too. Modules that are never needed are never
	// initialized or deinitialized.
	Needed bool
}

// Descriptions maps module names to their descriptions.
type Descriptions map[string]Description

// Module is the interface form of a Description, for components that prefer
// to carry their own lifecycle methods.
type Module interface {
	// Name returns the unique identifier for this module.
	Name() string

	// Init brings the module up; see InitFunc.
	Init(ctx context.Context, deps map[string]any) (any, error)
}

// DependencyAware is implemented by modules that depend on other modules.
type DependencyAware interface {
	// Dependencies returns the names of the modules this module requires.
	Dependencies() []string
}

// Deinitializer is implemented by modules that need to release resources
// during shutdown.
type Deinitializer interface {
	Deinit(ctx context.Context) error
}

// NeedAware is implemented by modules that can mark themselves as needed.
type NeedAware interface {
	Needed() bool
}

// Seeded is implemented by modules that carry their data up front.
type Seeded interface {
	SeedData() any
}

// FromModules converts interface-based modules into Descriptions. It fails
// with ErrDuplicateModule when two modules report the same name.
func FromModules(modules ...Module) (Descriptions, error) {
	descs := make(Descriptions, len(modules))
	for _, module := range modules {
		name := module.Name()
		if _, exists := descs[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, name)
		}

		desc := Description{Init: module.Init}
		if m, ok := module.(DependencyAware); ok {
			desc.Deps = m.Dependencies()
		}
		if m, ok := module.(Deinitializer); ok {
			desc.Deinit = m.Deinit
		}
		if m, ok := module.(NeedAware); ok {
			desc.Needed = m.Needed()
		}
		if m, ok := module.(Seeded); ok {
			desc.Data = m.SeedData()
		}
		descs[name] = desc
	}
	return descs, nil
}
