package schema

// LifecycleState tracks the manager's system-wide state.
type LifecycleState uint16

const (
	StateInit LifecycleState = iota
	StateNormal
	StateEmergency
	StateShutdown
)

// String returns the state name.
func (s LifecycleState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateNormal:
		return "NORMAL"
	case StateEmergency:
		return "EMERGENCY"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
// SHUTDOWN is terminal; EMERGENCY clears only through an explicit operator
// call, which is still a plain EMERGENCY -> NORMAL edge here.
func CanTransition(from, to LifecycleState) bool {
	if from == to {
		return false
	}
	switch from {
	case StateInit:
		return to == StateNormal || to == StateShutdown
	case StateNormal:
		return to == StateEmergency || to == StateShutdown
	case StateEmergency:
		return to == StateNormal || to == StateShutdown
	default:
		return false
	}
}

// Halted reports whether the state refuses new orders.
func (s LifecycleState) Halted() bool {
	return s == StateEmergency || s == StateShutdown
}
