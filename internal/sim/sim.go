// Package sim provides module kinds whose operations only pretend to work.
// They let a manifest exercise the tree's scheduling, rollback and
// notification paths without real services behind it.
package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/GoCodeAlone/modtree"
	"github.com/GoCodeAlone/modtree/manifest"
)

// Module kinds.
const (
	KindSim    = "sim"
	KindStatic = "static"
)

var (
	ErrInitFailed   = errors.New("simulated init failure")
	ErrDeinitFailed = errors.New("simulated deinit failure")
)

// Result is the data a sim module produces once up.
type Result struct {
	Module string   `json:"module"`
	Deps   []string `json:"deps"`
	Took   string   `json:"took"`
}

// Catalog returns a catalog with the sim and static kinds. logger may be nil.
//
// A sim module accepts the params delay (how long each operation takes),
// fail_init and fail_deinit. A static module does nothing and exposes its
// seed data, or its params when it has none.
func Catalog(logger modtree.Logger) manifest.Catalog {
	return manifest.Catalog{
		KindSim: func(name string, spec manifest.ModuleSpec) (modtree.Description, error) {
			return simModule(logger, name, spec)
		},
		KindStatic: staticModule,
	}
}

func simModule(logger modtree.Logger, name string, spec manifest.ModuleSpec) (modtree.Description, error) {
	delay, err := spec.Duration("delay")
	if err != nil {
		return modtree.Description{}, err
	}
	failInit, err := spec.Bool("fail_init")
	if err != nil {
		return modtree.Description{}, err
	}
	failDeinit, err := spec.Bool("fail_deinit")
	if err != nil {
		return modtree.Description{}, err
	}

	return modtree.Description{
		Init: func(ctx context.Context, deps map[string]any) (any, error) {
			took := pause(ctx, delay)
			if failInit {
				return nil, fmt.Errorf("%s: %w", name, ErrInitFailed)
			}

			depNames := make([]string, 0, len(deps))
			for dep := range deps {
				depNames = append(depNames, dep)
			}
			slices.Sort(depNames)
			if logger != nil {
				logger.Debug("Simulated module up", "module", name, "deps", depNames, "took", took)
			}
			return Result{Module: name, Deps: depNames, Took: took.String()}, nil
		},
		Deinit: func(ctx context.Context) error {
			took := pause(ctx, delay)
			if failDeinit {
				return fmt.Errorf("%s: %w", name, ErrDeinitFailed)
			}
			if logger != nil {
				logger.Debug("Simulated module down", "module", name, "took", took)
			}
			return nil
		},
	}, nil
}

func staticModule(_ string, spec manifest.ModuleSpec) (modtree.Description, error) {
	params := spec.Params
	return modtree.Description{
		Init: func(context.Context, map[string]any) (any, error) {
			return params, nil
		},
	}, nil
}

// pause waits for d, or less when ctx ends first.
func pause(ctx context.Context, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return time.Since(start)
}
