package workflow

import (
	"fmt"

	domainwf "github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

var voucherTable = buildVoucherTable()

func buildVoucherTable() domainwf.Builder {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	builder.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerSupervisorApprove, domainwf.StateSupervisorApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateSupervisorApproved).
		Permit(domainwf.TriggerFleetApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// A rejected voucher may be corrected and resubmitted directly or
	// reopened to draft first.
	builder.Configure(domainwf.StateRejected).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted).
		Permit(domainwf.TriggerReopen, domainwf.StateDraft)

	// APPROVED is terminal - no outgoing transitions

	return builder
}

// BuildVoucherStateMachine creates a voucher state machine positioned at the
// stored status.
func BuildVoucherStateMachine(initialState domainwf.State) (domainwf.StateMachine, error) {
	return voucherTable.Build(initialState)
}

// Next returns the state trigger leads to from, or an error wrapping
// ErrInvalidTransition.
func Next(from domainwf.State, trigger domainwf.Trigger) (domainwf.State, error) {
	machine, err := BuildVoucherStateMachine(from)
	if err != nil {
		return "", err
	}
	if !machine.CanFire(trigger) {
		return "", fmt.Errorf("%w: cannot %s a %s voucher", domainwf.ErrInvalidTransition, trigger, from)
	}
	if err := machine.Fire(trigger); err != nil {
		return "", err
	}
	return machine.State(), nil
}

// AllowedActions lists the triggers a voucher in from may still take, sorted
// by name. Terminal and unknown states have none.
func AllowedActions(from domainwf.State) []domainwf.Trigger {
	if from.IsTerminal() {
		return []domainwf.Trigger{}
	}
	machine, err := BuildVoucherStateMachine(from)
	if err != nil {
		return []domainwf.Trigger{}
	}
	return machine.PermittedTriggers()
}
