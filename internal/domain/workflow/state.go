package workflow

// State is a voucher lifecycle status
type State string

const (
	StateDraft              State = "draft"
	StateSubmitted          State = "submitted"
	StateSupervisorApproved State = "supervisor_approved"
	StateApproved           State = "approved"
	StateRejected           State = "rejected"
)

var validStates = map[State]bool{
	StateDraft:              true,
	StateSubmitted:          true,
	StateSupervisorApproved: true,
	StateApproved:           true,
	StateRejected:           true,
}

// IsTerminal returns true if no further transitions leave the state
func (s State) IsTerminal() bool {
	return s == StateApproved
}

// AllowsTripEdits reports whether trips attached to a voucher in this state
// may be added, changed or removed.
func (s State) AllowsTripEdits() bool {
	return s == StateDraft || s == StateRejected
}

// AwaitingApproval is true while an approver has to act.
func (s State) AwaitingApproval() bool {
	return s == StateSubmitted || s == StateSupervisorApproved
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid voucher state
func (s State) IsValid() bool {
	return validStates[s]
}
