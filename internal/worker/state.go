package worker

// State is the supervisor lifecycle state.
type State int

const (
	StateStopped State = iota
	StateAlive
	StateDead
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateAlive:
		return "alive"
	case StateDead:
		return "dead"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}
