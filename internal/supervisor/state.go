package supervisor

// State is the engine process lifecycle state
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateEnded
	StateCrashed
)

var stateNames = []string{"not_started", "starting", "running", "ended", "crashed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// inFlight reports whether a launch is pending or a process is alive
func (s State) inFlight() bool {
	return s == StateStarting || s == StateRunning
}
