package modtree

// State is the lifecycle state of a module or of the whole tree.
type State string

const (
	// StateOff is the initial state. Modules that are never needed stay here.
	StateOff State = "off"

	// StateInitializing means an init operation is in flight.
	StateInitializing State = "initializing"

	// StateUp means init completed successfully.
	StateUp State = "up"

	// StateDeinitializing means a deinit operation is in flight.
	StateDeinitializing State = "deinitializing"

	// StateDown means deinit completed.
	StateDown State = "down"

	// StateError means the module's last operation failed. The tree itself
	// never enters this state; a failed tree rolls back to StateDown.
	StateError State = "error"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// Phase names the lifecycle operation a module error came from.
type Phase string

const (
	// PhaseInit marks failures of a module's init operation.
	PhaseInit Phase = "init"

	// PhaseDeinit marks failures of a module's deinit operation.
	PhaseDeinit Phase = "deinit"
)

// States returns every module state in lifecycle order.
func States() []State {
	return []State{StateOff, StateInitializing, StateUp, StateDeinitializing, StateDown, StateError}
}
