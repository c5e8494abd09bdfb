package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
	appwf "github.com/garyjia/inspector-vouchers/internal/application/workflow"
	"github.com/garyjia/inspector-vouchers/internal/domain/aggregate"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
	"github.com/garyjia/inspector-vouchers/internal/domain/event"
	"github.com/garyjia/inspector-vouchers/internal/domain/hierarchy"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

// Action names used in errors and logs
const (
	ActionSubmit            = "submit"
	ActionApproveSupervisor = "approve as supervisor"
	ActionApproveFleet      = "approve as fleet manager"
	ActionReject            = "reject"
	ActionReopen            = "reopen"
	ActionAddTrip           = "add trip"
)

// VoucherService runs the voucher approval lifecycle
type VoucherService interface {
	// OpenVoucher returns the open voucher for the period, creating a draft if none exists
	OpenVoucher(ctx context.Context, personID int64, month, year int) (*entity.Voucher, error)

	// AddTrip attaches a trip to the owner's open voucher for the trip's month
	AddTrip(ctx context.Context, actorID int64, trip *entity.Trip) (*entity.Trip, error)

	SubmitVoucher(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error)
	ApproveAsSupervisor(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error)
	ApproveAsFleetManager(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error)
	RejectVoucher(ctx context.Context, voucherID, actorID int64, reason string) (*entity.Voucher, error)
	ReopenVoucher(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error)

	GetVoucher(ctx context.Context, voucherID int64) (*entity.Voucher, error)
	ListCertifications(ctx context.Context, voucherID int64) ([]*entity.CertificationEntry, error)

	// ListPendingForApprover returns the vouchers actorID can act on now
	ListPendingForApprover(ctx context.Context, actorID int64) ([]*entity.Voucher, error)
}

type voucherServiceImpl struct {
	voucherRepo port.VoucherRepository
	tripRepo    port.TripRepository
	personRepo  port.PersonRepository
	ledger      port.CertificationRepository
	rateRepo    port.RateRepository
	txManager   port.TransactionManager
	resolver    *hierarchy.Resolver
	events      EventPublisher
	logger      Logger
	now         func() time.Time
}

// NewVoucherService creates a new VoucherService
func NewVoucherService(
	voucherRepo port.VoucherRepository,
	tripRepo port.TripRepository,
	personRepo port.PersonRepository,
	ledger port.CertificationRepository,
	rateRepo port.RateRepository,
	txManager port.TransactionManager,
	resolver *hierarchy.Resolver,
	events EventPublisher,
	logger Logger,
) VoucherService {
	return &voucherServiceImpl{
		voucherRepo: voucherRepo,
		tripRepo:    tripRepo,
		personRepo:  personRepo,
		ledger:      ledger,
		rateRepo:    rateRepo,
		txManager:   txManager,
		resolver:    resolver,
		events:      publisherOrNop(events),
		logger:      logger,
		now:         time.Now,
	}
}

// transitionStep carries one voucher transition through authorize, status
// check and effect. authorize runs before the status check so that an actor
// with no say over the voucher learns that first.
type transitionStep struct {
	action    string
	trigger   workflow.Trigger
	authorize func(ctx context.Context, v *entity.Voucher, actor *entity.Person) error
	apply     func(ctx context.Context, v *entity.Voucher, actor *entity.Person, now time.Time) ([]*entity.CertificationEntry, error)
	event     event.Type
	payload   func(v *entity.Voucher) map[string]interface{}
}

func (s *voucherServiceImpl) runTransition(ctx context.Context, voucherID, actorID int64, step transitionStep) (*entity.Voucher, error) {
	var updated *entity.Voucher

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		v, err := s.loadVoucher(txCtx, voucherID)
		if err != nil {
			return err
		}
		actor, err := s.loadPerson(txCtx, actorID)
		if err != nil {
			return err
		}

		if err := step.authorize(txCtx, v, actor); err != nil {
			return err
		}

		from := v.Status
		to, err := appwf.Next(from, step.trigger)
		if err != nil {
			return errs.InvalidTransition(step.action, from.String())
		}

		now := s.now()
		entries, err := step.apply(txCtx, v, actor, now)
		if err != nil {
			return err
		}
		v.Status = to
		v.UpdatedAt = now

		if err := s.voucherRepo.UpdateTransition(txCtx, v, from); err != nil {
			if errors.Is(err, port.ErrStatusConflict) {
				return s.conflict(txCtx, voucherID, step.action)
			}
			return fmt.Errorf("update voucher: %w", err)
		}

		for _, entry := range entries {
			entry.VoucherID = v.ID
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = now
			}
			if err := s.ledger.Append(txCtx, entry); err != nil {
				return fmt.Errorf("append certification: %w", err)
			}
		}

		updated = v
		return nil
	})

	if err != nil {
		if errs.KindOf(err) == errs.KindInternal {
			s.logger.Error("Voucher transition failed", "action", step.action, "voucher_id", voucherID, "actor_id", actorID, "error", err)
		} else {
			s.logger.Info("Voucher transition refused", "action", step.action, "voucher_id", voucherID, "actor_id", actorID, "reason", err.Error())
		}
		return nil, err
	}

	s.logger.Info("Voucher transitioned", "action", step.action, "voucher_id", voucherID, "actor_id", actorID, "status", updated.Status)

	if step.event != "" {
		var payload map[string]interface{}
		if step.payload != nil {
			payload = step.payload(updated)
		}
		evt := event.NewEvent(step.event, updated.ID, actorID, payload).
			WithPayload("owner_id", updated.PersonID).
			WithPayload("status", updated.Status.String())
		s.events.DispatchAsync(ctx, evt)
	}

	return updated, nil
}

// conflict re-reads the status after a lost compare-and-set
func (s *voucherServiceImpl) conflict(ctx context.Context, voucherID int64, action string) error {
	current, err := s.voucherRepo.GetByID(ctx, voucherID)
	if err != nil {
		return fmt.Errorf("re-read voucher: %w", err)
	}
	if current == nil {
		return errs.NotFound("voucher", voucherID)
	}
	return errs.InvalidTransition(action, current.Status.String())
}

// SubmitVoucher recomputes totals, signs as claimant and routes to the
// supervisor-stage approver.
func (s *voucherServiceImpl) SubmitVoucher(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error) {
	return s.runTransition(ctx, voucherID, actorID, transitionStep{
		action:    ActionSubmit,
		trigger:   workflow.TriggerSubmit,
		authorize: requireOwner(ActionSubmit),
		apply: func(ctx context.Context, v *entity.Voucher, owner *entity.Person, now time.Time) ([]*entity.CertificationEntry, error) {
			if err := owner.CheckCertification(); err != nil {
				return nil, err
			}

			trips, err := s.tripRepo.ListByVoucher(ctx, v.ID)
			if err != nil {
				return nil, fmt.Errorf("list trips: %w", err)
			}
			if len(trips) == 0 {
				return nil, errs.Validation("trips", "voucher has no trips")
			}

			rates, err := s.rateRepo.ListAll(ctx)
			if err != nil {
				return nil, fmt.Errorf("load mileage rates: %w", err)
			}
			totals, err := aggregate.Aggregate(trips, aggregate.NewRateTable(rates).Func())
			if err != nil {
				return nil, err
			}

			ref, err := s.resolver.Resolve(owner, hierarchy.StageSupervisor)
			if err != nil {
				return nil, err
			}
			approver, err := s.personRepo.GetByID(ctx, ref.PersonID)
			if err != nil {
				return nil, fmt.Errorf("load approver: %w", err)
			}
			if approver == nil || !approver.Active {
				return nil, errs.Validation(string(ref.Relation), "%s %d is not an active person", ref.Relation, ref.PersonID)
			}

			var entries []*entity.CertificationEntry
			if v.Status == workflow.StateRejected {
				v.ClearApprovals()
				entries = append(entries, &entity.CertificationEntry{
					Stage:       entity.StageCleared,
					ActorID:     owner.ID,
					DisplayName: owner.DisplayName(),
					Note:        "resubmitted after rejection",
					CreatedAt:   now,
				})
			}

			v.Totals = totals
			v.ClaimantSignature = owner.DisplayName()
			v.ClaimantSignedAt = &now
			v.SubmittedAt = &now
			approverID := ref.PersonID
			v.PendingApproverID = &approverID

			entries = append(entries, &entity.CertificationEntry{
				Stage:       entity.StageClaimant,
				ActorID:     owner.ID,
				DisplayName: owner.DisplayName(),
				CreatedAt:   now,
			})
			return entries, nil
		},
		event: event.TypeVoucherSubmitted,
		payload: func(v *entity.Voucher) map[string]interface{} {
			return map[string]interface{}{
				"approver_id":  *v.PendingApproverID,
				"total_amount": v.TotalAmount.StringFixed(2),
			}
		},
	})
}

// ApproveAsSupervisor signs the supervisor stage. Only the approver resolved
// at submit may act.
func (s *voucherServiceImpl) ApproveAsSupervisor(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error) {
	return s.runTransition(ctx, voucherID, actorID, transitionStep{
		action:  ActionApproveSupervisor,
		trigger: workflow.TriggerSupervisorApprove,
		authorize: func(ctx context.Context, v *entity.Voucher, actor *entity.Person) error {
			return s.authorizeSupervisor(ctx, v, actor, ActionApproveSupervisor)
		},
		apply: func(_ context.Context, v *entity.Voucher, actor *entity.Person, now time.Time) ([]*entity.CertificationEntry, error) {
			v.SupervisorSignature = actor.DisplayName()
			v.SupervisorSignedAt = &now
			return []*entity.CertificationEntry{{
				Stage:       entity.StageSupervisor,
				ActorID:     actor.ID,
				DisplayName: actor.DisplayName(),
				CreatedAt:   now,
			}}, nil
		},
		event: event.TypeVoucherSupervisorApproved,
	})
}

// ApproveAsFleetManager signs the final stage. Any active fleet manager other
// than the claimant may act; the first to act wins.
func (s *voucherServiceImpl) ApproveAsFleetManager(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error) {
	return s.runTransition(ctx, voucherID, actorID, transitionStep{
		action:  ActionApproveFleet,
		trigger: workflow.TriggerFleetApprove,
		authorize: func(ctx context.Context, v *entity.Voucher, actor *entity.Person) error {
			return s.authorizeFleet(ctx, v, actor, ActionApproveFleet)
		},
		apply: func(_ context.Context, v *entity.Voucher, actor *entity.Person, now time.Time) ([]*entity.CertificationEntry, error) {
			v.FleetManagerSignature = actor.DisplayName()
			v.FleetManagerSignedAt = &now
			return []*entity.CertificationEntry{{
				Stage:       entity.StageFleetManager,
				ActorID:     actor.ID,
				DisplayName: actor.DisplayName(),
				CreatedAt:   now,
			}}, nil
		},
		event: event.TypeVoucherApproved,
	})
}

// RejectVoucher returns the voucher to its claimant with a reason. Trips and
// totals are left as they are.
func (s *voucherServiceImpl) RejectVoucher(ctx context.Context, voucherID, actorID int64, reason string) (*entity.Voucher, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.Validation("reason", "a rejection reason is required")
	}

	return s.runTransition(ctx, voucherID, actorID, transitionStep{
		action:  ActionReject,
		trigger: workflow.TriggerReject,
		authorize: func(ctx context.Context, v *entity.Voucher, actor *entity.Person) error {
			switch v.Status {
			case workflow.StateSubmitted:
				return s.authorizeSupervisor(ctx, v, actor, ActionReject)
			case workflow.StateSupervisorApproved:
				return s.authorizeFleet(ctx, v, actor, ActionReject)
			default:
				if v.IsOwnedBy(actor.ID) {
					return errs.Unauthorized(actor.ID, ActionReject, "claimants cannot reject their own voucher")
				}
				return nil
			}
		},
		apply: func(_ context.Context, v *entity.Voucher, actor *entity.Person, now time.Time) ([]*entity.CertificationEntry, error) {
			v.RejectionReason = reason
			rejectedBy := actor.ID
			v.RejectedBy = &rejectedBy
			return []*entity.CertificationEntry{{
				Stage:       entity.StageRejected,
				ActorID:     actor.ID,
				DisplayName: actor.DisplayName(),
				Note:        reason,
				CreatedAt:   now,
			}}, nil
		},
		event: event.TypeVoucherRejected,
		payload: func(v *entity.Voucher) map[string]interface{} {
			return map[string]interface{}{"reason": v.RejectionReason}
		},
	})
}

// ReopenVoucher moves a rejected voucher back to draft so trips can change.
// The claimant signature and totals stay until the next submit replaces them.
func (s *voucherServiceImpl) ReopenVoucher(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error) {
	return s.runTransition(ctx, voucherID, actorID, transitionStep{
		action:    ActionReopen,
		trigger:   workflow.TriggerReopen,
		authorize: requireOwner(ActionReopen),
		apply: func(_ context.Context, v *entity.Voucher, actor *entity.Person, now time.Time) ([]*entity.CertificationEntry, error) {
			v.ClearApprovals()
			return []*entity.CertificationEntry{{
				Stage:       entity.StageCleared,
				ActorID:     actor.ID,
				DisplayName: actor.DisplayName(),
				Note:        "reopened for correction",
				CreatedAt:   now,
			}}, nil
		},
		event: event.TypeVoucherReopened,
	})
}

func requireOwner(action string) func(context.Context, *entity.Voucher, *entity.Person) error {
	return func(_ context.Context, v *entity.Voucher, actor *entity.Person) error {
		if !v.IsOwnedBy(actor.ID) {
			return errs.Unauthorized(actor.ID, action, "only the claimant may "+action)
		}
		return nil
	}
}

// authorizeSupervisor checks actor against the approver recorded at submit.
// A voucher that was never routed falls through to the status check.
func (s *voucherServiceImpl) authorizeSupervisor(_ context.Context, v *entity.Voucher, actor *entity.Person, action string) error {
	if v.IsOwnedBy(actor.ID) {
		return errs.Unauthorized(actor.ID, action, "claimants cannot approve their own voucher")
	}
	if v.PendingApproverID == nil {
		return nil
	}
	ref := hierarchy.ApproverRef{Stage: hierarchy.StageSupervisor, PersonID: *v.PendingApproverID}
	return s.resolver.Authorize(ref, actor, action)
}

func (s *voucherServiceImpl) authorizeFleet(ctx context.Context, v *entity.Voucher, actor *entity.Person, action string) error {
	if v.IsOwnedBy(actor.ID) {
		return errs.Unauthorized(actor.ID, action, "claimants cannot approve their own voucher")
	}
	owner, err := s.loadPerson(ctx, v.PersonID)
	if err != nil {
		return err
	}
	ref, err := s.resolver.Resolve(owner, hierarchy.StageFleet)
	if err != nil {
		return err
	}
	return s.resolver.Authorize(ref, actor, action)
}

// OpenVoucher returns the period's open voucher or creates a draft for it
func (s *voucherServiceImpl) OpenVoucher(ctx context.Context, personID int64, month, year int) (*entity.Voucher, error) {
	if month < 1 || month > 12 {
		return nil, errs.Validation("month", "month must be between 1 and 12, got %d", month)
	}
	if year < 2000 || year > 9999 {
		return nil, errs.Validation("year", "year %d is out of range", year)
	}

	var voucher *entity.Voucher
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.loadPerson(txCtx, personID); err != nil {
			return err
		}
		v, err := s.openVoucher(txCtx, personID, month, year)
		if err != nil {
			return err
		}
		voucher = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

func (s *voucherServiceImpl) openVoucher(ctx context.Context, personID int64, month, year int) (*entity.Voucher, error) {
	existing, err := s.voucherRepo.GetOpenForPeriod(ctx, personID, month, year)
	if err != nil {
		return nil, fmt.Errorf("get open voucher: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	v := &entity.Voucher{
		PersonID:  personID,
		Month:     month,
		Year:      year,
		Status:    workflow.StateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.voucherRepo.Create(ctx, v); err != nil {
		if !errors.Is(err, port.ErrDuplicate) {
			return nil, fmt.Errorf("create voucher: %w", err)
		}
		// lost a race with another request opening the same period
		existing, err := s.voucherRepo.GetOpenForPeriod(ctx, personID, month, year)
		if err != nil {
			return nil, fmt.Errorf("get open voucher: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("create voucher: %w", port.ErrDuplicate)
		}
		return existing, nil
	}

	s.logger.Info("Draft voucher created", "voucher_id", v.ID, "person_id", personID, "month", month, "year", year)
	return v, nil
}

// AddTrip attaches trip to its owner's open voucher. Trips may only be added
// while that voucher is draft or rejected.
func (s *voucherServiceImpl) AddTrip(ctx context.Context, actorID int64, trip *entity.Trip) (*entity.Trip, error) {
	if trip.PersonID == 0 {
		trip.PersonID = actorID
	}
	if trip.PersonID != actorID {
		return nil, errs.Unauthorized(actorID, ActionAddTrip, "trips can only be recorded by their owner")
	}
	if trip.TripDate.IsZero() {
		return nil, errs.Validation("trip_date", "trip date is required")
	}
	if trip.Miles.IsNegative() {
		return nil, errs.Validation("miles", "miles cannot be negative")
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.loadPerson(txCtx, trip.PersonID); err != nil {
			return err
		}

		month, year := trip.Period()
		v, err := s.openVoucher(txCtx, trip.PersonID, month, year)
		if err != nil {
			return err
		}
		if !v.Status.AllowsTripEdits() {
			return errs.InvalidTransition(ActionAddTrip, v.Status.String())
		}

		trip.VoucherID = v.ID
		if trip.CreatedAt.IsZero() {
			trip.CreatedAt = s.now()
		}
		if err := s.tripRepo.Create(txCtx, trip); err != nil {
			return fmt.Errorf("create trip: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Trip added", "trip_id", trip.ID, "voucher_id", trip.VoucherID, "person_id", trip.PersonID)
	return trip, nil
}

// GetVoucher returns the voucher with its current status
func (s *voucherServiceImpl) GetVoucher(ctx context.Context, voucherID int64) (*entity.Voucher, error) {
	return s.loadVoucher(ctx, voucherID)
}

// ListCertifications returns the voucher's signature history, oldest first
func (s *voucherServiceImpl) ListCertifications(ctx context.Context, voucherID int64) ([]*entity.CertificationEntry, error) {
	if _, err := s.loadVoucher(ctx, voucherID); err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByVoucher(ctx, voucherID)
	if err != nil {
		s.logger.Error("Failed to list certifications", "error", err, "voucher_id", voucherID)
		return nil, fmt.Errorf("list certifications: %w", err)
	}
	return entries, nil
}

// ListPendingForApprover returns submitted vouchers routed to actorID and, for
// fleet managers, every supervisor-approved voucher they did not claim.
func (s *voucherServiceImpl) ListPendingForApprover(ctx context.Context, actorID int64) ([]*entity.Voucher, error) {
	actor, err := s.loadPerson(ctx, actorID)
	if err != nil {
		return nil, err
	}

	pending, err := s.voucherRepo.ListAwaitingSupervisor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list supervisor queue: %w", err)
	}

	if actor.IsFleetManager() {
		fleetQueue, err := s.voucherRepo.ListByStatus(ctx, workflow.StateSupervisorApproved)
		if err != nil {
			return nil, fmt.Errorf("list fleet queue: %w", err)
		}
		for _, v := range fleetQueue {
			if !v.IsOwnedBy(actorID) {
				pending = append(pending, v)
			}
		}
	}

	return pending, nil
}

func (s *voucherServiceImpl) loadVoucher(ctx context.Context, id int64) (*entity.Voucher, error) {
	v, err := s.voucherRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	if v == nil {
		return nil, errs.NotFound("voucher", id)
	}
	return v, nil
}

func (s *voucherServiceImpl) loadPerson(ctx context.Context, id int64) (*entity.Person, error) {
	p, err := s.personRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	if p == nil {
		return nil, errs.NotFound("person", id)
	}
	return p, nil
}
