package session

// State is the lifecycle phase of a session.
type State int

const (
	// StateConfiguring is the initial phase: resources are being
	// allocated and backing services probed.
	StateConfiguring State = iota

	// StateActive means the session is processing audio and responses.
	// Re-entered after every completed response cycle.
	StateActive

	// StateClosing means teardown has begun; no new work is accepted.
	StateClosing

	// StateClosed means all resources have been released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
