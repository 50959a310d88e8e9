package valueobjects

// RunStatus represents the lifecycle state of a node within a run attempt.
//
// Transitions within one attempt are monotonic:
//
//	idle -> loading -> streaming -> {complete | error | cancelled}
//
// A contract violation can push a node straight from idle to error without a
// network call. Once a terminal state is reached the status only changes when
// a new attempt begins and resets it to loading.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusLoading   RunStatus = "loading"
	StatusStreaming RunStatus = "streaming"
	StatusComplete  RunStatus = "complete"
	StatusError     RunStatus = "error"
	StatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status ends a run attempt
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether a run attempt is currently in progress
func (s RunStatus) Active() bool {
	return s == StatusLoading || s == StatusStreaming
}

// CanTransitionTo reports whether moving to next keeps the attempt monotonic.
// Repeated streaming transitions are allowed (one per progress event).
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusIdle:
		return next == StatusLoading || next == StatusStreaming || next == StatusError
	case StatusLoading:
		return next == StatusStreaming || next.IsTerminal()
	case StatusStreaming:
		return next == StatusStreaming || next.IsTerminal()
	}
	return false
}

// String returns the string representation of the status
func (s RunStatus) String() string {
	return string(s)
}
