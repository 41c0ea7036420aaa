package modtree

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// moduleRecord holds the static edges and mutable runtime bookkeeping of a
// single module. Every field other than the immutable ones is guarded by the
// owning Tree's mutex.
type moduleRecord struct {
	name       string
	deps       []string
	dependants []string
	init       InitFunc
	deinit     DeinitFunc
	seeded     bool

	// dependenciesToLoad counts dependencies that are not up yet.
	dependenciesToLoad int
	// dependantsToUnload counts dependants whose init started and whose
	// teardown has not finished.
	dependantsToUnload int

	needed bool
	state  State
	data   any
	err    error
}

// moduleRegistry maps module names to their records.
type moduleRegistry map[string]*moduleRecord

// buildRegistry creates a record per description, links dependants to their
// dependencies and resolves the needed closure.
func buildRegistry(descs Descriptions) (moduleRegistry, error) {
	reg := make(moduleRegistry, len(descs))
	for name, desc := range descs {
		reg[name] = &moduleRecord{
			name:   name,
			deps:   uniqueNames(desc.Deps),
			init:   desc.Init,
			deinit: desc.Deinit,
			seeded: desc.Data != nil,
			data:   desc.Data,
			needed: desc.Needed,
			state:  StateOff,
		}
	}

	// Walk in name order so dependants lists are deterministic.
	for _, name := range reg.names() {
		module := reg[name]
		for _, dep := range module.deps {
			target, exists := reg[dep]
			if !exists {
				return nil, fmt.Errorf("%w: %s depends on non-existent module %s",
					ErrBrokenDependency, name, dep)
			}
			target.dependants = append(target.dependants, name)
		}
		module.dependenciesToLoad = len(module.deps)
	}

	if err := reg.resolveNeeded(); err != nil {
		return nil, err
	}
	return reg, nil
}

// resolveNeeded marks every module reachable from an explicitly needed module
// as needed. The walk keeps the current path so a dependency cycle reachable
// from a needed module fails instead of recursing forever.
func (r moduleRegistry) resolveNeeded() error {
	visited := make(map[string]bool, len(r))
	onPath := make(map[string]bool)
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		if onPath[name] {
			start := slices.Index(path, name)
			cycle := append(slices.Clone(path[start:]), name)
			return fmt.Errorf("%w: cycle: %s", ErrCyclicDependency, strings.Join(cycle, " -> "))
		}
		if visited[name] {
			return nil
		}

		onPath[name] = true
		path = append(path, name)

		module := r[name]
		module.needed = true
		for _, dep := range module.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		onPath[name] = false
		visited[name] = true
		return nil
	}

	for _, name := range r.names() {
		if !r[name].needed || visited[name] {
			continue
		}
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// names returns the registered module names in sorted order.
func (r moduleRegistry) names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// neededCount returns the number of modules the init scheduler must bring up.
func (r moduleRegistry) neededCount() int {
	count := 0
	for _, module := range r {
		if module.needed {
			count++
		}
	}
	return count
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		unique = append(unique, name)
	}
	return unique
}
