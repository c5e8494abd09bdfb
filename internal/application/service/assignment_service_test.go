package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
	"github.com/garyjia/inspector-vouchers/internal/domain/event"
	"github.com/garyjia/inspector-vouchers/internal/domain/hierarchy"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

const (
	adminID       int64 = 99
	inactiveSup   int64 = 44
	peerInspector int64 = 2
)

type assignmentFixture struct {
	store  *memStore
	svc    AssignmentService
	events *recordingPublisher
}

func newAssignmentFixture(t *testing.T) *assignmentFixture {
	t.Helper()

	// reuse the voucher directory and put 43 under the same FLS as 42
	vf := newVoucherFixture(t)
	store := vf.store
	o := store.people[otherSup]
	o.FLSSupervisorID = int64Ptr(flsF)
	store.people[otherSup] = o
	store.people[adminID] = certified(entity.Person{ID: adminID, Name: "Root", Role: entity.RoleAdmin, PositionTitle: "Administrator"})
	store.people[peerInspector] = certified(entity.Person{ID: peerInspector, Name: "P", Role: entity.RoleInspector, PositionTitle: "CSI"})
	inactive := certified(entity.Person{ID: inactiveSup, Name: "X", Role: entity.RoleSupervisor, PositionTitle: "SCSI"})
	inactive.Active = false
	store.people[inactiveSup] = inactive

	people := memPeople{store}
	events := &recordingPublisher{}
	svc := NewAssignmentService(
		memAssignments{store},
		people,
		&mockTxManager{},
		hierarchy.NewResolver(people),
		events,
		&mockLogger{},
	)
	svc.(*assignmentServiceImpl).now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

	return &assignmentFixture{store: store, svc: svc, events: events}
}

func TestAssignmentService_RequestAssignment(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestAssignment(ctx, inspectorA, otherSup, " covering the north circuit ")
	require.NoError(t, err)
	assert.Equal(t, entity.AssignmentPending, req.Status)
	assert.Equal(t, entity.RelationAssignedSupervisor, req.Relation)
	assert.Equal(t, "covering the north circuit", req.Reason)
	require.NotNil(t, req.CurrentSupervisorID)
	assert.Equal(t, supervisorS, *req.CurrentSupervisorID)

	require.Len(t, f.events.events, 1)
	evt := f.events.events[0]
	assert.Equal(t, event.TypeAssignmentRequested, evt.Type)
	assert.Equal(t, inspectorA, evt.GetPayloadInt("inspector_id"))
	assert.Equal(t, "assigned_supervisor", evt.GetPayloadString("relation"))

	_, err = f.svc.RequestAssignment(ctx, inspectorA, otherSup, "again")
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "inspector_id", ve.Field)
}

func TestAssignmentService_RequestAssignmentRefusals(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		inspector int64
		requester int64
		reason    string
		wantKind  errs.Kind
	}{
		{name: "empty reason", inspector: inspectorA, requester: otherSup, reason: "   ", wantKind: errs.KindValidation},
		{name: "self", inspector: otherSup, requester: otherSup, reason: "x", wantKind: errs.KindValidation},
		{name: "already current supervisor", inspector: inspectorA, requester: supervisorS, reason: "x", wantKind: errs.KindValidation},
		{name: "inspector cannot supervise inspector", inspector: inspectorA, requester: peerInspector, reason: "x", wantKind: errs.KindValidation},
		{name: "SCSI cannot hold an FLS relation", inspector: flsF, requester: otherSup, reason: "x", wantKind: errs.KindValidation},
		{name: "inactive requester", inspector: inspectorA, requester: inactiveSup, reason: "x", wantKind: errs.KindAuthorization},
		{name: "unknown inspector", inspector: 5555, requester: otherSup, reason: "x", wantKind: errs.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAssignmentFixture(t)
			_, err := f.svc.RequestAssignment(ctx, tt.inspector, tt.requester, tt.reason)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			assert.Empty(t, f.events.events)
		})
	}
}

func TestAssignmentService_ResolveApproveRewritesRelation(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestAssignment(ctx, inspectorA, otherSup, "rebalancing")
	require.NoError(t, err)

	// an SCSI peer is below FLS
	_, err = f.svc.ResolveAssignment(ctx, req.ID, supervisorS, entity.DecisionApprove, "")
	assert.Equal(t, errs.KindAuthorization, kindOf(t, err))

	// the requester cannot approve their own request
	_, err = f.svc.ResolveAssignment(ctx, req.ID, otherSup, entity.DecisionApprove, "")
	assert.Equal(t, errs.KindAuthorization, kindOf(t, err))

	_, err = f.svc.ResolveAssignment(ctx, req.ID, flsF, entity.AssignmentDecision("maybe"), "")
	assert.Equal(t, errs.KindValidation, kindOf(t, err))

	resolved, err := f.svc.ResolveAssignment(ctx, req.ID, flsF, entity.DecisionApprove, " ok ")
	require.NoError(t, err)
	assert.Equal(t, entity.AssignmentApproved, resolved.Status)
	assert.Equal(t, "ok", resolved.ResolutionNotes)
	require.NotNil(t, resolved.ProcessedBy)
	assert.Equal(t, flsF, *resolved.ProcessedBy)
	assert.NotNil(t, resolved.ProcessedAt)

	inspector := f.store.people[inspectorA]
	require.NotNil(t, inspector.AssignedSupervisorID)
	assert.Equal(t, otherSup, *inspector.AssignedSupervisorID)

	_, err = f.svc.ResolveAssignment(ctx, req.ID, ddmD, entity.DecisionReject, "")
	var te *errs.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "approved", te.Status)

	assert.Equal(t, []event.Type{event.TypeAssignmentRequested, event.TypeAssignmentResolved}, f.events.types())
	last := f.events.events[1]
	assert.Equal(t, "approved", last.GetPayloadString("status"))
	assert.Equal(t, otherSup, last.GetPayloadInt("requester_id"))
}

func TestAssignmentService_ApprovedReassignmentRoutesNextVoucher(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestAssignment(ctx, inspectorA, otherSup, "rebalancing")
	require.NoError(t, err)
	_, err = f.svc.ResolveAssignment(ctx, req.ID, ddmD, entity.DecisionApprove, "")
	require.NoError(t, err)

	people := memPeople{f.store}
	vouchers := NewVoucherService(memVouchers{f.store}, memTrips{f.store}, people, memLedger{f.store}, memRates{f.store},
		&mockTxManager{}, hierarchy.NewResolver(people), nil, &mockLogger{})

	trip, err := vouchers.AddTrip(ctx, inspectorA, &entity.Trip{PersonID: inspectorA, TripDate: march(2), Miles: decimal.RequireFromString("8")})
	require.NoError(t, err)
	v, err := vouchers.SubmitVoucher(ctx, trip.VoucherID, inspectorA)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSubmitted, v.Status)
	assert.Equal(t, otherSup, *v.PendingApproverID)

	_, err = vouchers.ApproveAsSupervisor(ctx, v.ID, supervisorS)
	assert.Equal(t, errs.KindAuthorization, kindOf(t, err))
}

func TestAssignmentService_ResolveReject(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestAssignment(ctx, inspectorA, otherSup, "rebalancing")
	require.NoError(t, err)

	resolved, err := f.svc.ResolveAssignment(ctx, req.ID, adminID, entity.DecisionReject, "not now")
	require.NoError(t, err)
	assert.Equal(t, entity.AssignmentRejected, resolved.Status)

	inspector := f.store.people[inspectorA]
	assert.Equal(t, supervisorS, *inspector.AssignedSupervisorID)

	// a new request is allowed once the old one is closed
	_, err = f.svc.RequestAssignment(ctx, inspectorA, otherSup, "second try")
	assert.NoError(t, err)
}

func TestAssignmentService_Cancel(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestAssignment(ctx, inspectorA, otherSup, "rebalancing")
	require.NoError(t, err)

	_, err = f.svc.CancelAssignment(ctx, req.ID, flsF, "")
	assert.Equal(t, errs.KindAuthorization, kindOf(t, err))

	canceled, err := f.svc.CancelAssignment(ctx, req.ID, otherSup, "withdrawn")
	require.NoError(t, err)
	assert.Equal(t, entity.AssignmentCanceled, canceled.Status)
	assert.Equal(t, "withdrawn", canceled.ResolutionNotes)

	_, err = f.svc.CancelAssignment(ctx, req.ID, otherSup, "")
	assert.Equal(t, errs.KindInvalidTransition, kindOf(t, err))

	_, err = f.svc.ResolveAssignment(ctx, req.ID, flsF, entity.DecisionApprove, "")
	var te *errs.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "canceled", te.Status)

	_, err = f.svc.CancelAssignment(ctx, 31337, otherSup, "")
	assert.Equal(t, errs.KindNotFound, kindOf(t, err))
}

func TestAssignmentService_ConcurrentResolution(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestAssignment(ctx, inspectorA, otherSup, "rebalancing")
	require.NoError(t, err)

	type call struct {
		resolver int64
		decision entity.AssignmentDecision
	}
	calls := []call{{flsF, entity.DecisionApprove}, {ddmD, entity.DecisionReject}}
	results := make([]error, len(calls))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c call) {
			defer wg.Done()
			<-start
			_, results[i] = f.svc.ResolveAssignment(ctx, req.ID, c.resolver, c.decision, "")
		}(i, c)
	}
	close(start)
	wg.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
	}
	assert.Equal(t, 1, ok)

	got, err := f.svc.GetAssignment(ctx, req.ID)
	require.NoError(t, err)
	assert.NotEqual(t, entity.AssignmentPending, got.Status)
}

func TestAssignmentService_ListAssignmentsForResolver(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestAssignment(ctx, inspectorA, otherSup, "rebalancing")
	require.NoError(t, err)

	for _, id := range []int64{flsF, ddmD, adminID} {
		list, err := f.svc.ListAssignmentsForResolver(ctx, id)
		require.NoError(t, err)
		require.Len(t, list, 1, "resolver %d", id)
		assert.Equal(t, req.ID, list[0].ID)
	}

	for _, id := range []int64{supervisorS, otherSup, dmNoSup} {
		list, err := f.svc.ListAssignmentsForResolver(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, list, "resolver %d", id)
	}
}
