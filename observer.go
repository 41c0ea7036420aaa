// Observer pattern interfaces for lifecycle notifications. Notifications
// are CloudEvents v1.0 events.

package modtree

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of
// tree events.
type Observer interface {
	// OnEvent is called for every event the observer subscribed to.
	// Events are delivered one at a time in the order the underlying state
	// changes happened, so observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	// Registering a second observer with the same ID replaces the first.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
type Subject interface {
	// RegisterObserver adds an observer. If eventTypes is empty the observer
	// receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	// ID is the unique identifier of the observer
	ID string `json:"id"`

	// EventTypes are the event types this observer is subscribed to.
	// Empty slice means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for tree events, in reverse domain notation.
const (
	// EventTypeModuleStateChanged fires on every module state change.
	// Data: ModuleStateData. Subject: module name.
	EventTypeModuleStateChanged = "com.modtree.module.state_changed"

	// EventTypeTreeStateChanged fires on every tree state change.
	// Data: TreeStateData.
	EventTypeTreeStateChanged = "com.modtree.tree.state_changed"

	// EventTypeTreeStarted fires when the tree reaches StateUp.
	EventTypeTreeStarted = "com.modtree.tree.started"

	// EventTypeTreeStopped fires when the tree reaches StateDown.
	EventTypeTreeStopped = "com.modtree.tree.stopped"

	// EventTypeError fires for every captured error. Data: ErrorData.
	EventTypeError = "com.modtree.error"
)

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided function
// to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
