package session

// State is the controller lifecycle. Transitions:
// Idle -> Connecting -> Active -> (Error | Stopping) -> Idle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
