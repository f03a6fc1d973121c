package wsconn

// State is the lifecycle state of a Manager.
type State int

const (
	// StateIdle means no transport exists and nothing is scheduled.
	StateIdle State = iota
	// StateConnecting means a transport is being dialed.
	StateConnecting
	// StateOpen means the current transport is open.
	StateOpen
	// StateClosing means the current transport closed on its own and the
	// retry policy is being evaluated.
	StateClosing
	// StateRetryWait means a reconnect is scheduled.
	StateRetryWait
	// StateTerminated means every reconnect attempt failed.
	StateTerminated
)

// String returns a human-readable name for the state.
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
	case StateRetryWait:
		return "retry_wait"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateOpen, StateClosing, StateIdle},
	StateOpen:       {StateClosing, StateIdle},
	StateClosing:    {StateRetryWait, StateTerminated, StateIdle},
	StateRetryWait:  {StateConnecting, StateIdle},
	StateTerminated: {StateConnecting, StateIdle},
}

// CanTransitionTo reports whether moving from s to next is a legal step.
// An explicit Connect restarts the machine and is checked separately.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
