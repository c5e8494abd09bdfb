package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
	"github.com/garyjia/inspector-vouchers/internal/domain/event"
	"github.com/garyjia/inspector-vouchers/internal/domain/hierarchy"
)

const (
	ActionRequestAssignment = "request assignment"
	ActionResolveAssignment = "resolve assignment"
	ActionCancelAssignment  = "cancel assignment"
)

// AssignmentService runs supervisor reassignment requests
type AssignmentService interface {
	RequestAssignment(ctx context.Context, inspectorID, requestingSupervisorID int64, reason string) (*entity.AssignmentRequest, error)
	ResolveAssignment(ctx context.Context, requestID, resolverID int64, decision entity.AssignmentDecision, notes string) (*entity.AssignmentRequest, error)
	CancelAssignment(ctx context.Context, requestID, actorID int64, reason string) (*entity.AssignmentRequest, error)
	GetAssignment(ctx context.Context, requestID int64) (*entity.AssignmentRequest, error)

	// ListAssignmentsForResolver returns pending requests resolverID may decide
	ListAssignmentsForResolver(ctx context.Context, resolverID int64) ([]*entity.AssignmentRequest, error)
}

type assignmentServiceImpl struct {
	assignmentRepo port.AssignmentRepository
	personRepo     port.PersonRepository
	txManager      port.TransactionManager
	resolver       *hierarchy.Resolver
	events         EventPublisher
	logger         Logger
	now            func() time.Time
}

// NewAssignmentService creates a new AssignmentService
func NewAssignmentService(
	assignmentRepo port.AssignmentRepository,
	personRepo port.PersonRepository,
	txManager port.TransactionManager,
	resolver *hierarchy.Resolver,
	events EventPublisher,
	logger Logger,
) AssignmentService {
	return &assignmentServiceImpl{
		assignmentRepo: assignmentRepo,
		personRepo:     personRepo,
		txManager:      txManager,
		resolver:       resolver,
		events:         publisherOrNop(events),
		logger:         logger,
		now:            time.Now,
	}
}

// RequestAssignment files a request for requestingSupervisorID to become the
// inspector's approver on the relation the inspector's position uses.
func (s *assignmentServiceImpl) RequestAssignment(ctx context.Context, inspectorID, requestingSupervisorID int64, reason string) (*entity.AssignmentRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.Validation("reason", "a reason is required")
	}
	if inspectorID == requestingSupervisorID {
		return nil, errs.Validation("requesting_supervisor_id", "a person cannot supervise themselves")
	}

	var req *entity.AssignmentRequest
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		inspector, err := s.loadPerson(txCtx, inspectorID)
		if err != nil {
			return err
		}
		requester, err := s.loadPerson(txCtx, requestingSupervisorID)
		if err != nil {
			return err
		}
		if !requester.Active {
			return errs.Unauthorized(requester.ID, ActionRequestAssignment, "requester is inactive")
		}

		subject := inspector.Position()
		if !hierarchy.CanHoldRelation(subject, requester.Position()) {
			return errs.Validation("requesting_supervisor_id", "a %s cannot supervise a %s", requester.Position(), subject)
		}

		relation := hierarchy.RelationFor(subject)
		current := currentSupervisor(inspector, relation)
		if current != nil && *current == requester.ID {
			return errs.Validation("requesting_supervisor_id", "person %d is already the %s", requester.ID, relation)
		}

		dup, err := s.assignmentRepo.FindPending(txCtx, inspectorID, requestingSupervisorID)
		if err != nil {
			return fmt.Errorf("find pending request: %w", err)
		}
		if dup != nil {
			return errs.Validation("inspector_id", "request %d is already pending for this inspector", dup.ID)
		}

		now := s.now()
		req = &entity.AssignmentRequest{
			InspectorID:            inspectorID,
			RequestingSupervisorID: requestingSupervisorID,
			CurrentSupervisorID:    current,
			Relation:               relation,
			Status:                 entity.AssignmentPending,
			Reason:                 reason,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := s.assignmentRepo.Create(txCtx, req); err != nil {
			if errors.Is(err, port.ErrDuplicate) {
				return errs.Validation("inspector_id", "a request is already pending for this inspector")
			}
			return fmt.Errorf("create assignment request: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure(ActionRequestAssignment, 0, requestingSupervisorID, err)
		return nil, err
	}

	s.logger.Info("Assignment requested", "request_id", req.ID, "inspector_id", inspectorID, "requester_id", requestingSupervisorID, "relation", req.Relation)
	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeAssignmentRequested, req.ID, requestingSupervisorID, map[string]interface{}{
		"inspector_id": inspectorID,
		"relation":     string(req.Relation),
	}))
	return req, nil
}

// ResolveAssignment approves or rejects a pending request. Approval rewrites
// the inspector's relation in the same transaction.
func (s *assignmentServiceImpl) ResolveAssignment(ctx context.Context, requestID, resolverID int64, decision entity.AssignmentDecision, notes string) (*entity.AssignmentRequest, error) {
	if !decision.IsValid() {
		return nil, errs.Validation("decision", "decision must be approve or reject, got %q", decision)
	}

	var req *entity.AssignmentRequest
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		resolver, err := s.loadPerson(txCtx, resolverID)
		if err != nil {
			return err
		}
		requester, err := s.loadPerson(txCtx, req.RequestingSupervisorID)
		if err != nil {
			return err
		}

		ok, err := s.resolver.CanResolveAssignment(txCtx, resolver, requester)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Unauthorized(resolverID, ActionResolveAssignment, "resolver must be FLS-class or higher above the requesting supervisor")
		}

		to := entity.AssignmentRejected
		if decision == entity.DecisionApprove {
			to = entity.AssignmentApproved
		}
		if !req.Status.CanTransition(to) {
			return errs.InvalidTransition(ActionResolveAssignment, string(req.Status))
		}

		now := s.now()
		req.Status = to
		req.ResolutionNotes = strings.TrimSpace(notes)
		req.ProcessedBy = &resolverID
		req.ProcessedAt = &now
		req.UpdatedAt = now

		if err := s.assignmentRepo.UpdateResolution(txCtx, req); err != nil {
			if errors.Is(err, port.ErrStatusConflict) {
				return s.conflict(txCtx, requestID, ActionResolveAssignment)
			}
			return fmt.Errorf("update assignment request: %w", err)
		}

		if to == entity.AssignmentApproved {
			if err := s.personRepo.UpdateRelation(txCtx, req.InspectorID, req.Relation, req.RequestingSupervisorID); err != nil {
				return fmt.Errorf("reassign supervisor: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logFailure(ActionResolveAssignment, requestID, resolverID, err)
		return nil, err
	}

	s.logger.Info("Assignment resolved", "request_id", requestID, "resolver_id", resolverID, "status", req.Status)
	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeAssignmentResolved, req.ID, resolverID, map[string]interface{}{
		"status":       string(req.Status),
		"requester_id": req.RequestingSupervisorID,
		"inspector_id": req.InspectorID,
	}))
	return req, nil
}

// CancelAssignment withdraws a pending request. Only its requester may cancel.
func (s *assignmentServiceImpl) CancelAssignment(ctx context.Context, requestID, actorID int64, reason string) (*entity.AssignmentRequest, error) {
	var req *entity.AssignmentRequest
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.RequestingSupervisorID != actorID {
			return errs.Unauthorized(actorID, ActionCancelAssignment, "only the requesting supervisor may cancel")
		}
		if !req.Status.CanTransition(entity.AssignmentCanceled) {
			return errs.InvalidTransition(ActionCancelAssignment, string(req.Status))
		}

		now := s.now()
		req.Status = entity.AssignmentCanceled
		req.ResolutionNotes = strings.TrimSpace(reason)
		req.ProcessedBy = &actorID
		req.ProcessedAt = &now
		req.UpdatedAt = now

		if err := s.assignmentRepo.UpdateResolution(txCtx, req); err != nil {
			if errors.Is(err, port.ErrStatusConflict) {
				return s.conflict(txCtx, requestID, ActionCancelAssignment)
			}
			return fmt.Errorf("update assignment request: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure(ActionCancelAssignment, requestID, actorID, err)
		return nil, err
	}

	s.logger.Info("Assignment canceled", "request_id", requestID, "actor_id", actorID)
	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeAssignmentCanceled, req.ID, actorID, map[string]interface{}{
		"inspector_id": req.InspectorID,
	}))
	return req, nil
}

// GetAssignment returns one request
func (s *assignmentServiceImpl) GetAssignment(ctx context.Context, requestID int64) (*entity.AssignmentRequest, error) {
	return s.loadRequest(ctx, requestID)
}

func (s *assignmentServiceImpl) ListAssignmentsForResolver(ctx context.Context, resolverID int64) ([]*entity.AssignmentRequest, error) {
	resolver, err := s.loadPerson(ctx, resolverID)
	if err != nil {
		return nil, err
	}

	pending, err := s.assignmentRepo.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	result := make([]*entity.AssignmentRequest, 0, len(pending))
	requesters := make(map[int64]*entity.Person)
	for _, req := range pending {
		requester, ok := requesters[req.RequestingSupervisorID]
		if !ok {
			requester, err = s.personRepo.GetByID(ctx, req.RequestingSupervisorID)
			if err != nil {
				return nil, fmt.Errorf("get requester: %w", err)
			}
			requesters[req.RequestingSupervisorID] = requester
		}
		if requester == nil {
			continue
		}

		allowed, err := s.resolver.CanResolveAssignment(ctx, resolver, requester)
		if err != nil {
			return nil, err
		}
		if allowed {
			result = append(result, req)
		}
	}
	return result, nil
}

func (s *assignmentServiceImpl) conflict(ctx context.Context, requestID int64, action string) error {
	current, err := s.assignmentRepo.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("re-read assignment request: %w", err)
	}
	if current == nil {
		return errs.NotFound("assignment request", requestID)
	}
	return errs.InvalidTransition(action, string(current.Status))
}

func (s *assignmentServiceImpl) logFailure(action string, requestID, actorID int64, err error) {
	if errs.KindOf(err) == errs.KindInternal {
		s.logger.Error("Assignment operation failed", "action", action, "request_id", requestID, "actor_id", actorID, "error", err)
		return
	}
	s.logger.Info("Assignment operation refused", "action", action, "request_id", requestID, "actor_id", actorID, "reason", err.Error())
}

func (s *assignmentServiceImpl) loadRequest(ctx context.Context, id int64) (*entity.AssignmentRequest, error) {
	req, err := s.assignmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get assignment request: %w", err)
	}
	if req == nil {
		return nil, errs.NotFound("assignment request", id)
	}
	return req, nil
}

func (s *assignmentServiceImpl) loadPerson(ctx context.Context, id int64) (*entity.Person, error) {
	p, err := s.personRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	if p == nil {
		return nil, errs.NotFound("person", id)
	}
	return p, nil
}

func currentSupervisor(p *entity.Person, relation entity.Relation) *int64 {
	var id *int64
	if relation == entity.RelationFLSSupervisor {
		id = p.FLSSupervisorID
	} else {
		id = p.AssignedSupervisorID
	}
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
