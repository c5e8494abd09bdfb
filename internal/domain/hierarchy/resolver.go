// Package hierarchy maps a person's organizational position onto the approver
// who must act at each approval stage. Every voucher transition and every
// assignment decision asks this package who may act; nothing else inspects
// positions for authorization.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
)

// Stage is one tier of approval
type Stage string

const (
	StageSupervisor Stage = "supervisor"
	StageFleet      Stage = "fleet"
)

// DefaultMaxDepth bounds chain-of-command walks
const DefaultMaxDepth = 5

// ApproverRef identifies who may act at a stage. For the supervisor stage it
// names one person through a relation; for the fleet stage any active holder
// of Role qualifies.
type ApproverRef struct {
	Stage     Stage
	Relation  entity.Relation
	PersonID  int64
	Role      entity.Role
	AnyHolder bool
}

// PersonLookup loads people for chain-of-command walks. A missing person is
// (nil, nil).
type PersonLookup interface {
	GetByID(ctx context.Context, id int64) (*entity.Person, error)
}

// Resolver answers approver questions for the voucher and assignment workflows
type Resolver struct {
	people   PersonLookup
	maxDepth int
}

// NewResolver creates a resolver. people may be nil when only Resolve and
// Authorize are needed.
func NewResolver(people PersonLookup) *Resolver {
	return &Resolver{people: people, maxDepth: DefaultMaxDepth}
}

// RelationFor returns the relation that names the supervisor-stage approver
// for a person holding pos. Everyone from SCSI/PHV upward is approved through
// fls_supervisor; line inspectors go through assigned_supervisor.
func RelationFor(pos entity.Position) entity.Relation {
	if pos.IsSupervisoryInspector() || pos.AtLeast(entity.PositionFLS) {
		return entity.RelationFLSSupervisor
	}
	return entity.RelationAssignedSupervisor
}

// ApproverPositions lists the positions that may hold the supervisor
// relation for someone at pos.
func ApproverPositions(pos entity.Position) []entity.Position {
	switch {
	case pos == entity.PositionDM, pos == entity.PositionDDM:
		return []entity.Position{entity.PositionDM}
	case pos == entity.PositionFLS:
		return []entity.Position{entity.PositionDDM}
	case pos.IsSupervisoryInspector():
		return []entity.Position{entity.PositionFLS}
	default:
		return []entity.Position{entity.PositionSCSI, entity.PositionPHV}
	}
}

// CanHoldRelation reports whether approver's position fits the supervisor
// relation of subject.
func CanHoldRelation(subject, approver entity.Position) bool {
	for _, p := range ApproverPositions(subject) {
		if p == approver {
			return true
		}
	}
	return false
}

func relationTarget(p *entity.Person, rel entity.Relation) *int64 {
	if rel == entity.RelationFLSSupervisor {
		return p.FLSSupervisorID
	}
	return p.AssignedSupervisorID
}

// Resolve returns who must act on person's voucher at stage. A person without
// the relation their position requires gets a ValidationError naming it.
func (r *Resolver) Resolve(person *entity.Person, stage Stage) (ApproverRef, error) {
	switch stage {
	case StageFleet:
		return ApproverRef{Stage: StageFleet, Role: entity.RoleFleetManager, AnyHolder: true}, nil
	case StageSupervisor:
	default:
		return ApproverRef{}, fmt.Errorf("unknown approval stage %q", stage)
	}

	rel := RelationFor(person.Position())
	target := relationTarget(person, rel)
	if target == nil || *target == 0 {
		return ApproverRef{}, errs.Validation(string(rel), "%s has no %s on file", person.DisplayName(), rel)
	}
	if *target == person.ID {
		return ApproverRef{}, errs.Validation(string(rel), "%s cannot approve their own voucher", person.DisplayName())
	}

	return ApproverRef{Stage: StageSupervisor, Relation: rel, PersonID: *target}, nil
}

// Authorize returns an AuthorizationError unless actor is the approver ref names.
func (r *Resolver) Authorize(ref ApproverRef, actor *entity.Person, action string) error {
	if actor == nil {
		return errs.Unauthorized(0, action, "unknown actor")
	}
	if !actor.Active {
		return errs.Unauthorized(actor.ID, action, "actor is inactive")
	}

	if ref.AnyHolder {
		if actor.Role != ref.Role {
			return errs.Unauthorized(actor.ID, action, fmt.Sprintf("requires role %s", ref.Role))
		}
		return nil
	}

	if actor.ID != ref.PersonID {
		return errs.Unauthorized(actor.ID, action, fmt.Sprintf("pending approver is person %d", ref.PersonID))
	}
	return nil
}

// ChainOfCommand walks supervisor relations upward from person and returns
// the people above them, nearest first. The walk stops at a missing relation,
// a cycle or the depth bound.
func (r *Resolver) ChainOfCommand(ctx context.Context, person *entity.Person) ([]*entity.Person, error) {
	if r.people == nil {
		return nil, fmt.Errorf("resolver has no person lookup")
	}

	chain := make([]*entity.Person, 0, r.maxDepth)
	seen := map[int64]bool{person.ID: true}
	current := person

	for depth := 0; depth < r.maxDepth; depth++ {
		target := relationTarget(current, RelationFor(current.Position()))
		if target == nil || seen[*target] {
			break
		}
		next, err := r.people.GetByID(ctx, *target)
		if err != nil {
			return nil, fmt.Errorf("failed to walk chain of command: %w", err)
		}
		if next == nil {
			break
		}
		seen[next.ID] = true
		chain = append(chain, next)
		current = next
	}

	return chain, nil
}

// CanResolveAssignment reports whether resolver may approve or reject an
// assignment request raised by requester. Admins always qualify; otherwise
// the resolver must be FLS-class or higher and sit above the requester.
func (r *Resolver) CanResolveAssignment(ctx context.Context, resolver, requester *entity.Person) (bool, error) {
	if !resolver.Active {
		return false, nil
	}
	if resolver.Role == entity.RoleAdmin {
		return true, nil
	}
	if !resolver.Position().AtLeast(entity.PositionFLS) {
		return false, nil
	}
	if resolver.ID == requester.ID {
		return false, nil
	}

	chain, err := r.ChainOfCommand(ctx, requester)
	if err != nil {
		return false, err
	}
	for _, p := range chain {
		if p.ID == resolver.ID {
			return true, nil
		}
	}
	return false, nil
}
