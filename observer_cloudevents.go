package modtree

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// ModuleStateData is the payload of EventTypeModuleStateChanged.
type ModuleStateData struct {
	Module   string `json:"module"`
	State    State  `json:"state"`
	Previous State  `json:"previous"`
}

// TreeStateData is the payload of EventTypeTreeStateChanged.
type TreeStateData struct {
	Tree     string `json:"tree"`
	State    State  `json:"state"`
	Previous State  `json:"previous"`
}

// ErrorData is the payload of EventTypeError. Module is empty for
// tree-level errors.
type ErrorData struct {
	Module string `json:"module,omitempty"`
	Phase  Phase  `json:"phase,omitempty"`
	Error  string `json:"error"`
}

// NewCloudEvent creates a new CloudEvent with the given type, source and
// subject. data is encoded as JSON when non-nil.
func NewCloudEvent(eventType, source, subject string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if subject != "" {
		event.SetSubject(subject)
	}

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	return event
}

// generateEventID generates a unique identifier for CloudEvents using UUIDv7,
// which keeps ids time-ordered.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ModuleStateFromEvent decodes the payload of a module state event.
func ModuleStateFromEvent(event cloudevents.Event) (ModuleStateData, error) {
	var data ModuleStateData
	if event.Type() != EventTypeModuleStateChanged {
		return data, fmt.Errorf("unexpected event type %s", event.Type())
	}
	if err := event.DataAs(&data); err != nil {
		return data, fmt.Errorf("failed to decode module state event: %w", err)
	}
	return data, nil
}

// TreeStateFromEvent decodes the payload of a tree state event.
func TreeStateFromEvent(event cloudevents.Event) (TreeStateData, error) {
	var data TreeStateData
	if event.Type() != EventTypeTreeStateChanged {
		return data, fmt.Errorf("unexpected event type %s", event.Type())
	}
	if err := event.DataAs(&data); err != nil {
		return data, fmt.Errorf("failed to decode tree state event: %w", err)
	}
	return data, nil
}

// ErrorFromEvent decodes the payload of an error event.
func ErrorFromEvent(event cloudevents.Event) (ErrorData, error) {
	var data ErrorData
	if event.Type() != EventTypeError {
		return data, fmt.Errorf("unexpected event type %s", event.Type())
	}
	if err := event.DataAs(&data); err != nil {
		return data, fmt.Errorf("failed to decode error event: %w", err)
	}
	return data, nil
}
