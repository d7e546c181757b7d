package workflow

// State represents a task instance state in the chore lifecycle
type State string

const (
	StateOpen             State = "OPEN"
	StateClaimed          State = "CLAIMED"
	StateInReview         State = "IN_REVIEW"
	StateClosedApproved   State = "CLOSED_APPROVED"
	StateClosedRejected   State = "CLOSED_REJECTED_REOPENED"
	StateClosedTimedOut   State = "CLOSED_TIMED_OUT"
)

var validStates = map[State]bool{
	StateOpen:           true,
	StateClaimed:        true,
	StateInReview:       true,
	StateClosedApproved: true,
	StateClosedRejected: true,
	StateClosedTimedOut: true,
}

// CLOSED_REJECTED_REOPENED is transient: the engine immediately re-enters
// CLAIMED with a shortened deadline, so only the other two closed states
// are terminal.
var terminalStates = map[State]bool{
	StateClosedApproved: true,
	StateClosedTimedOut: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
