package modtree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	errTestInitFailed   = errors.New("test init failed")
	errTestDeinitFailed = errors.New("test deinit failed")
)

const testTimeout = 2 * time.Second

// testLogger records every log call so tests can assert on them.
type testLogger struct {
	mu      sync.Mutex
	entries []testLogEntry
}

type testLogEntry struct {
	level string
	msg   string
	args  []any
}

func (l *testLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, testLogEntry{level: level, msg: msg, args: args})
}

func (l *testLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *testLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }

func (l *testLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, entry := range l.entries {
		if entry.level == level && entry.msg == msg {
			n++
		}
	}
	return n
}

// eventRecorder is an observer that keeps every event it receives.
type eventRecorder struct {
	id     string
	mu     sync.Mutex
	events []cloudevents.Event
}

func newEventRecorder(id string) *eventRecorder {
	return &eventRecorder{id: id}
}

func (r *eventRecorder) OnEvent(_ context.Context, event cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ObserverID() string { return r.id }

func (r *eventRecorder) all() []cloudevents.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cloudevents.Event(nil), r.events...)
}

func (r *eventRecorder) types() []string {
	var types []string
	for _, event := range r.all() {
		types = append(types, event.Type())
	}
	return types
}

// moduleStates returns the sequence of states the named module moved into.
func (r *eventRecorder) moduleStates(t *testing.T, module string) []State {
	t.Helper()
	var states []State
	for _, event := range r.all() {
		if event.Type() != EventTypeModuleStateChanged || event.Subject() != module {
			continue
		}
		data, err := ModuleStateFromEvent(event)
		if err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		states = append(states, data.State)
	}
	return states
}

// callLog records operation calls in order across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callLog) count(call string) int {
	n := 0
	for _, entry := range c.list() {
		if entry == call {
			n++
		}
	}
	return n
}

func (c *callLog) index(call string) int {
	for i, entry := range c.list() {
		if entry == call {
			return i
		}
	}
	return -1
}

// tracked returns a description whose init and deinit append to log.
func tracked(log *callLog, name string, deps ...string) Description {
	return Description{
		Deps: deps,
		Init: func(context.Context, map[string]any) (any, error) {
			log.add(name + ".init")
			return name + "-data", nil
		},
		Deinit: func(context.Context) error {
			log.add(name + ".deinit")
			return nil
		},
	}
}

// gate blocks an operation until released and reports when it was entered.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) pass() {
	close(g.entered)
	<-g.release
}

func (g *gate) waitEntered(t *testing.T, what string) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func newTestTree(t *testing.T, descs Descriptions, opts ...Option) (*Tree, *eventRecorder) {
	t.Helper()
	recorder := newEventRecorder("recorder")
	opts = append([]Option{WithLogger(&testLogger{}), WithObserver(recorder)}, opts...)
	tree, err := New(descs, opts...)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}
	return tree, recorder
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func needed(desc Description) Description {
	desc.Needed = true
	return desc
}

func failing(log *callLog, name string, deps ...string) Description {
	desc := tracked(log, name, deps...)
	desc.Init = func(context.Context, map[string]any) (any, error) {
		log.add(name + ".init")
		return nil, fmt.Errorf("%s: %w", name, errTestInitFailed)
	}
	return desc
}
