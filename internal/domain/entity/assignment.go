package entity

import "time"

// AssignmentStatus is the status of a supervisor reassignment request
type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentApproved AssignmentStatus = "approved"
	AssignmentRejected AssignmentStatus = "rejected"
	AssignmentCanceled AssignmentStatus = "canceled"
)

// Relation names one of the two approver relations on a Person
type Relation string

const (
	RelationAssignedSupervisor Relation = "assigned_supervisor"
	RelationFLSSupervisor      Relation = "fls_supervisor"
)

// AssignmentDecision is the resolver's answer to a pending request
type AssignmentDecision string

const (
	DecisionApprove AssignmentDecision = "approve"
	DecisionReject  AssignmentDecision = "reject"
)

// IsValid returns true for approve or reject
func (d AssignmentDecision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Only pending requests move, and every move is final.
var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentPending: {AssignmentApproved, AssignmentRejected, AssignmentCanceled},
}

// CanTransition reports whether a request may move from s to to
func (s AssignmentStatus) CanTransition(to AssignmentStatus) bool {
	for _, allowed := range assignmentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AssignmentRequest proposes that RequestingSupervisorID become the
// inspector's approver on Relation.
type AssignmentRequest struct {
	ID                     int64            `json:"id"`
	InspectorID            int64            `json:"inspector_id"`
	RequestingSupervisorID int64            `json:"requesting_supervisor_id"`
	CurrentSupervisorID    *int64           `json:"current_supervisor_id,omitempty"`
	Relation               Relation         `json:"relation"`
	Status                 AssignmentStatus `json:"status"`
	Reason                 string           `json:"reason"`
	ResolutionNotes        string           `json:"resolution_notes,omitempty"`
	ProcessedBy            *int64           `json:"processed_by,omitempty"`
	ProcessedAt            *time.Time       `json:"processed_at,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}
