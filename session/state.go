package session

// State represents where the event channel is in its lifecycle.
type State int

const (
	StateIdle       State = iota // 0 - not connected, a retry may be pending
	StateConnecting              // 1 - dial in flight
	StateOpen                    // 2 - connected, heartbeats running
	StateClosing                 // 3 - host asked to stop, tearing down
	StateClosed                  // 4 - stopped, no retry will ever fire
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// allowed lists the legal transitions out of each state.
// Closed only exits through a fresh Start.
var allowed = map[State][]State{
	StateIdle:       {StateConnecting, StateClosing},
	StateConnecting: {StateOpen, StateIdle, StateClosing},
	StateOpen:       {StateIdle, StateClosing},
	StateClosing:    {StateClosed},
	StateClosed:     {StateConnecting},
}

func isValidTransition(from, to State) bool {
	for _, valid := range allowed[from] {
		if to == valid {
			return true
		}
	}
	return false
}
