package workflow

// Trigger is an action that moves a voucher between states
type Trigger string

const (
	TriggerSubmit            Trigger = "submit"
	TriggerSupervisorApprove Trigger = "approve_supervisor"
	TriggerFleetApprove      Trigger = "approve_fleet"
	TriggerReject            Trigger = "reject"
	TriggerReopen            Trigger = "reopen"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
