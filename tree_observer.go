package modtree

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool // empty means all events
	registeredAt time.Time
}

func (r *observerRegistration) wants(eventType string) bool {
	return len(r.eventTypes) == 0 || r.eventTypes[eventType]
}

// notification is a queued event or a queued handle settlement. Both travel
// through the same queue so a handle settles only after every earlier event
// has been delivered.
type notification struct {
	ctx    context.Context
	event  cloudevents.Event
	cause  error
	module string
	settle func()
}

// RegisterObserver adds an observer to receive notifications from the tree.
// Observers can optionally filter events by type using the eventTypes parameter.
// If eventTypes is empty, the observer receives all events.
func (t *Tree) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrNilObserver
	}

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}
	registration := &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	t.observerMutex.Lock()
	defer t.observerMutex.Unlock()

	for i, existing := range t.observers {
		if existing.observer.ObserverID() == observer.ObserverID() {
			t.observers[i] = registration
			t.logger.Debug("Observer replaced", "tree", t.name, "observerID", observer.ObserverID(), "eventTypes", eventTypes)
			return nil
		}
	}
	t.observers = append(t.observers, registration)

	t.logger.Debug("Observer registered", "tree", t.name, "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer from receiving notifications.
// This method is idempotent and won't error if the observer wasn't registered.
func (t *Tree) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrNilObserver
	}

	t.observerMutex.Lock()
	defer t.observerMutex.Unlock()

	for i, existing := range t.observers {
		if existing.observer.ObserverID() == observer.ObserverID() {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			t.logger.Debug("Observer unregistered", "tree", t.name, "observerID", observer.ObserverID())
			break
		}
	}
	return nil
}

// GetObservers returns information about currently registered observers in
// registration order.
func (t *Tree) GetObservers() []ObserverInfo {
	t.observerMutex.RLock()
	defer t.observerMutex.RUnlock()

	info := make([]ObserverInfo, 0, len(t.observers))
	for _, registration := range t.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}

		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// emit queues an event. Must be called with t.mu held.
func (t *Tree) emit(eventType, subject string, data any) {
	t.pending = append(t.pending, notification{
		ctx:   t.opCtx,
		event: NewCloudEvent(eventType, t.name, subject, data),
	})
}

// emitError queues an error event. Must be called with t.mu held.
func (t *Tree) emitError(module string, phase Phase, cause error) {
	t.pending = append(t.pending, notification{
		ctx:   t.opCtx,
		event: NewCloudEvent(EventTypeError, t.name, module, ErrorData{
			Module: module,
			Phase:  phase,
			Error:  cause.Error(),
		}),
		cause:  cause,
		module: module,
	})
}

// settleLater queues the settlement of h. Must be called with t.mu held.
func (t *Tree) settleLater(h *Handle, err error) {
	t.pending = append(t.pending, notification{
		settle: func() { h.settle(err) },
	})
}

// flush delivers queued notifications. It must be called without t.mu held.
// Only one goroutine drains at a time; a call made while another goroutine
// (or an observer further up the stack) is draining returns immediately and
// the active drainer picks up whatever was queued.
func (t *Tree) flush() {
	t.mu.Lock()
	if t.draining {
		t.mu.Unlock()
		return
	}
	t.draining = true
	for len(t.pending) > 0 {
		batch := t.pending
		t.pending = nil
		t.mu.Unlock()

		for _, n := range batch {
			t.deliver(n)
		}

		t.mu.Lock()
	}
	t.draining = false
	t.mu.Unlock()
}

func (t *Tree) deliver(n notification) {
	if n.settle != nil {
		n.settle()
		return
	}

	t.observerMutex.RLock()
	targets := make([]Observer, 0, len(t.observers))
	for _, registration := range t.observers {
		if registration.wants(n.event.Type()) {
			targets = append(targets, registration.observer)
		}
	}
	t.observerMutex.RUnlock()

	if n.cause != nil && len(targets) == 0 {
		t.logger.Error("Module error", "tree", t.name, "module", n.module, "error", n.cause)
	}

	for _, observer := range targets {
		t.notifyObserver(n.ctx, observer, n.event)
	}
}

// notifyObserver delivers event with the context of the Init or Deinit call
// that caused it.
func (t *Tree) notifyObserver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Observer panicked", "tree", t.name, "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()

	if err := observer.OnEvent(ctx, event); err != nil {
		t.logger.Error("Observer error", "tree", t.name, "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}
