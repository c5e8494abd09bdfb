package event

// Type identifies the type of domain event
type Type string

const (
	TypeVoucherSubmitted          Type = "voucher.submitted"
	TypeVoucherSupervisorApproved Type = "voucher.supervisor_approved"
	TypeVoucherApproved           Type = "voucher.approved"
	TypeVoucherRejected           Type = "voucher.rejected"
	TypeVoucherReopened           Type = "voucher.reopened"
	TypeVoucherReminder           Type = "voucher.reminder"
	TypeAssignmentRequested       Type = "assignment.requested"
	TypeAssignmentResolved        Type = "assignment.resolved"
	TypeAssignmentCanceled        Type = "assignment.canceled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeVoucherSubmitted,
		TypeVoucherSupervisorApproved,
		TypeVoucherApproved,
		TypeVoucherRejected,
		TypeVoucherReopened,
		TypeVoucherReminder,
		TypeAssignmentRequested,
		TypeAssignmentResolved,
		TypeAssignmentCanceled:
		return true
	default:
		return false
	}
}
