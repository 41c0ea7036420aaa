// Package metrics exports tree lifecycle notifications as Prometheus metrics.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/GoCodeAlone/modtree"
	"github.com/prometheus/client_golang/prometheus"
)

// ObserverID identifies the metrics observer on a tree.
const ObserverID = "modtree.metrics"

// Outcome label values of OperationDuration.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Observer tracks modtree Prometheus metrics.
//
// All metrics use the modtree_ prefix and carry a tree label holding the
// event source, so one Observer can serve several trees.
type Observer struct {
	// ModuleState is 1 for the state a module is in and 0 for every other state
	ModuleState *prometheus.GaugeVec

	// TreeState is 1 for the state a tree is in and 0 for every other state
	TreeState *prometheus.GaugeVec

	// TransitionsTotal counts module state transitions by target state
	TransitionsTotal *prometheus.CounterVec

	// ErrorsTotal counts captured module errors by phase
	ErrorsTotal *prometheus.CounterVec

	// OperationDuration tracks how long init and deinit operations ran
	OperationDuration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[operationKey]time.Time
}

type operationKey struct {
	tree   string
	module string
}

// NewObserver creates the metrics and registers them with reg.
// Panics if registration fails (expected during initialization only).
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		ModuleState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modtree_module_state",
				Help: "Current module state (1 for the active state)",
			},
			[]string{"tree", "module", "state"},
		),
		TreeState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modtree_tree_state",
				Help: "Current tree state (1 for the active state)",
			},
			[]string{"tree", "state"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modtree_module_transitions_total",
				Help: "Total module state transitions by target state",
			},
			[]string{"tree", "module", "state"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modtree_module_errors_total",
				Help: "Total captured module errors by phase",
			},
			[]string{"tree", "module", "phase"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modtree_operation_duration_seconds",
				Help:    "Module init and deinit duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tree", "module", "phase", "outcome"},
		),
		started: make(map[operationKey]time.Time),
	}

	reg.MustRegister(
		o.ModuleState,
		o.TreeState,
		o.TransitionsTotal,
		o.ErrorsTotal,
		o.OperationDuration,
	)

	return o
}

// ObserverID implements modtree.Observer.
func (o *Observer) ObserverID() string {
	return ObserverID
}

// OnEvent implements modtree.Observer.
func (o *Observer) OnEvent(_ context.Context, event modtree.CloudEvent) error {
	switch event.Type() {
	case modtree.EventTypeModuleStateChanged:
		data, err := modtree.ModuleStateFromEvent(event)
		if err != nil {
			return err
		}
		o.recordModuleState(event.Source(), data, event.Time())

	case modtree.EventTypeTreeStateChanged:
		data, err := modtree.TreeStateFromEvent(event)
		if err != nil {
			return err
		}
		for _, state := range modtree.States() {
			o.TreeState.WithLabelValues(event.Source(), state.String()).Set(active(state, data.State))
		}

	case modtree.EventTypeError:
		data, err := modtree.ErrorFromEvent(event)
		if err != nil {
			return err
		}
		o.ErrorsTotal.WithLabelValues(event.Source(), data.Module, string(data.Phase)).Inc()
	}
	return nil
}

func (o *Observer) recordModuleState(tree string, data modtree.ModuleStateData, at time.Time) {
	for _, state := range modtree.States() {
		o.ModuleState.WithLabelValues(tree, data.Module, state.String()).Set(active(state, data.State))
	}
	o.TransitionsTotal.WithLabelValues(tree, data.Module, data.State.String()).Inc()

	key := operationKey{tree: tree, module: data.Module}
	o.mu.Lock()
	defer o.mu.Unlock()

	switch data.State {
	case modtree.StateInitializing, modtree.StateDeinitializing:
		o.started[key] = at
		return
	}

	var phase modtree.Phase
	switch data.Previous {
	case modtree.StateInitializing:
		phase = modtree.PhaseInit
	case modtree.StateDeinitializing:
		phase = modtree.PhaseDeinit
	default:
		return
	}

	start, ok := o.started[key]
	if !ok {
		return
	}
	delete(o.started, key)

	outcome := OutcomeOK
	if data.State == modtree.StateError {
		outcome = OutcomeError
	}
	o.OperationDuration.WithLabelValues(tree, data.Module, string(phase), outcome).Observe(at.Sub(start).Seconds())
}

func active(state, current modtree.State) float64 {
	if state == current {
		return 1
	}
	return 0
}
