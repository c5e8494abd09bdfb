package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainwf "github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

var allStates = []domainwf.State{
	domainwf.StateDraft,
	domainwf.StateSubmitted,
	domainwf.StateSupervisorApproved,
	domainwf.StateApproved,
	domainwf.StateRejected,
}

var allTriggers = []domainwf.Trigger{
	domainwf.TriggerSubmit,
	domainwf.TriggerSupervisorApprove,
	domainwf.TriggerFleetApprove,
	domainwf.TriggerReject,
	domainwf.TriggerReopen,
}

// Every (state, trigger) pair not listed here must be refused.
var permitted = map[domainwf.State]map[domainwf.Trigger]domainwf.State{
	domainwf.StateDraft: {
		domainwf.TriggerSubmit: domainwf.StateSubmitted,
	},
	domainwf.StateSubmitted: {
		domainwf.TriggerSupervisorApprove: domainwf.StateSupervisorApproved,
		domainwf.TriggerReject:            domainwf.StateRejected,
	},
	domainwf.StateSupervisorApproved: {
		domainwf.TriggerFleetApprove: domainwf.StateApproved,
		domainwf.TriggerReject:       domainwf.StateRejected,
	},
	domainwf.StateRejected: {
		domainwf.TriggerSubmit: domainwf.StateSubmitted,
		domainwf.TriggerReopen: domainwf.StateDraft,
	},
}

func TestVoucherTable_Exhaustive(t *testing.T) {
	for _, from := range allStates {
		for _, trigger := range allTriggers {
			want, ok := permitted[from][trigger]

			got, err := Next(from, trigger)
			if ok {
				require.NoError(t, err, "%s --%s--> should be permitted", from, trigger)
				assert.Equal(t, want, got, "%s --%s-->", from, trigger)
			} else {
				assert.True(t, errors.Is(err, domainwf.ErrInvalidTransition), "%s --%s--> should be refused, got %v", from, trigger, err)
			}
		}
	}
}

func TestApprovedIsTerminal(t *testing.T) {
	machine, err := BuildVoucherStateMachine(domainwf.StateApproved)
	require.NoError(t, err)
	assert.Empty(t, machine.PermittedTriggers())
}

func TestBuildVoucherStateMachine_UnknownStatus(t *testing.T) {
	_, err := BuildVoucherStateMachine(domainwf.State("paid"))
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)

	_, err = Next(domainwf.State("paid"), domainwf.TriggerSubmit)
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)
}

func TestRejectedPermittedTriggers(t *testing.T) {
	machine, err := BuildVoucherStateMachine(domainwf.StateRejected)
	require.NoError(t, err)
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerReopen, domainwf.TriggerSubmit}, machine.PermittedTriggers())
}

func TestAllowedActions(t *testing.T) {
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerSubmit}, AllowedActions(domainwf.StateDraft))
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerSupervisorApprove, domainwf.TriggerReject}, AllowedActions(domainwf.StateSubmitted))
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerReopen, domainwf.TriggerSubmit}, AllowedActions(domainwf.StateRejected))
	assert.Empty(t, AllowedActions(domainwf.StateApproved))
	assert.Empty(t, AllowedActions(domainwf.State("archived")))

	// every listed action is one Next accepts
	for _, from := range allStates {
		for _, trigger := range AllowedActions(from) {
			_, err := Next(from, trigger)
			assert.NoError(t, err, "%s --%s-->", from, trigger)
		}
	}
}
