// Package tracing turns tree lifecycle notifications into OpenTelemetry
// spans: one span per init or deinit cycle of a tree and a child span per
// module operation. Span timestamps come from the events, so spans cover the
// moments the state changes happened rather than the moments they were
// delivered.
package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/GoCodeAlone/modtree"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ObserverID identifies the tracing observer on a tree.
const ObserverID = "modtree.tracing"

// instrumentationName is the tracer name used for every span.
const instrumentationName = "github.com/GoCodeAlone/modtree/tracing"

// Attribute keys.
const (
	AttrTree   = "modtree.tree"
	AttrModule = "modtree.module"
	AttrPhase  = "modtree.phase"
	AttrState  = "modtree.state"
	AttrError  = "modtree.error"
)

// Span names.
const (
	SpanTreeInit     = "modtree.init"
	SpanTreeDeinit   = "modtree.deinit"
	SpanModuleInit   = "modtree.module.init"
	SpanModuleDeinit = "modtree.module.deinit"

	EventModuleError = "modtree.module_error"
)

// Observer records spans for every tree it is registered on.
type Observer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	trees map[string]*cycle
}

// cycle holds the open spans of one tree.
type cycle struct {
	span    trace.Span
	ctx     context.Context
	failed  bool
	modules map[string]trace.Span
}

// NewObserver creates an observer that traces with a tracer from tp.
func NewObserver(tp trace.TracerProvider) *Observer {
	return &Observer{
		tracer: tp.Tracer(instrumentationName),
		trees:  make(map[string]*cycle),
	}
}

// ObserverID implements modtree.Observer.
func (o *Observer) ObserverID() string {
	return ObserverID
}

// OnEvent implements modtree.Observer.
func (o *Observer) OnEvent(ctx context.Context, event modtree.CloudEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	tree := event.Source()
	switch event.Type() {
	case modtree.EventTypeTreeStateChanged:
		data, err := modtree.TreeStateFromEvent(event)
		if err != nil {
			return err
		}
		o.treeState(ctx, tree, data, event.Time())

	case modtree.EventTypeModuleStateChanged:
		data, err := modtree.ModuleStateFromEvent(event)
		if err != nil {
			return err
		}
		o.moduleState(tree, data, event.Time())

	case modtree.EventTypeError:
		data, err := modtree.ErrorFromEvent(event)
		if err != nil {
			return err
		}
		if c := o.trees[tree]; c != nil && c.span != nil {
			c.failed = true
			c.span.AddEvent(EventModuleError,
				trace.WithTimestamp(event.Time()),
				trace.WithAttributes(
					attribute.String(AttrModule, data.Module),
					attribute.String(AttrPhase, string(data.Phase)),
					attribute.String(AttrError, data.Error),
				))
		}
	}
	return nil
}

func (o *Observer) treeState(ctx context.Context, tree string, data modtree.TreeStateData, at time.Time) {
	switch data.State {
	case modtree.StateInitializing:
		o.startCycle(ctx, tree, SpanTreeInit, at)

	case modtree.StateUp:
		o.endCycle(tree, at)

	case modtree.StateDeinitializing:
		previous := o.trees[tree]
		failed := o.endCycle(tree, at)
		o.startCycle(ctx, tree, SpanTreeDeinit, at)
		// Inits still in flight end inside the deinit cycle.
		if previous != nil {
			o.trees[tree].modules = previous.modules
		}
		o.trees[tree].failed = failed

	case modtree.StateDown:
		if data.Previous == modtree.StateOff {
			// Shut down before it ever started.
			o.startCycle(ctx, tree, SpanTreeDeinit, at)
		}
		o.endCycle(tree, at)
		delete(o.trees, tree)
	}
}

func (o *Observer) startCycle(ctx context.Context, tree, name string, at time.Time) {
	spanCtx, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(at),
		trace.WithAttributes(attribute.String(AttrTree, tree)),
	)
	o.trees[tree] = &cycle{span: span, ctx: spanCtx, modules: make(map[string]trace.Span)}
}

// endCycle ends the open cycle span of tree and reports whether the tree
// captured an error so far.
func (o *Observer) endCycle(tree string, at time.Time) bool {
	c := o.trees[tree]
	if c == nil || c.span == nil {
		return false
	}
	if c.failed {
		c.span.SetStatus(codes.Error, "module failure")
	}
	c.span.End(trace.WithTimestamp(at))
	c.span = nil
	return c.failed
}

func (o *Observer) moduleState(tree string, data modtree.ModuleStateData, at time.Time) {
	c := o.trees[tree]
	if c == nil {
		return
	}

	switch data.State {
	case modtree.StateInitializing, modtree.StateDeinitializing:
		name := SpanModuleInit
		if data.State == modtree.StateDeinitializing {
			name = SpanModuleDeinit
		}
		_, span := o.tracer.Start(c.ctx, name,
			trace.WithTimestamp(at),
			trace.WithAttributes(
				attribute.String(AttrTree, tree),
				attribute.String(AttrModule, data.Module),
			))
		c.modules[data.Module] = span

	default:
		span, ok := c.modules[data.Module]
		if !ok {
			return
		}
		delete(c.modules, data.Module)
		span.SetAttributes(attribute.String(AttrState, data.State.String()))
		if data.State == modtree.StateError {
			span.SetStatus(codes.Error, "module operation failed")
		}
		span.End(trace.WithTimestamp(at))
	}
}
