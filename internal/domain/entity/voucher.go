package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

// Totals are the aggregated amounts of a voucher's trip set
type Totals struct {
	TotalMiles    decimal.Decimal `json:"total_miles"`
	MileageAmount decimal.Decimal `json:"mileage_amount"`
	LodgingAmount decimal.Decimal `json:"lodging_amount"`
	MealsAmount   decimal.Decimal `json:"meals_amount"`
	OtherAmount   decimal.Decimal `json:"other_amount"`
	PerDiemDays   int             `json:"per_diem_days"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TripCount     int             `json:"trip_count"`
}

// Equal compares every component of two totals
func (t Totals) Equal(o Totals) bool {
	return t.TotalMiles.Equal(o.TotalMiles) &&
		t.MileageAmount.Equal(o.MileageAmount) &&
		t.LodgingAmount.Equal(o.LodgingAmount) &&
		t.MealsAmount.Equal(o.MealsAmount) &&
		t.OtherAmount.Equal(o.OtherAmount) &&
		t.PerDiemDays == o.PerDiemDays &&
		t.TotalAmount.Equal(o.TotalAmount) &&
		t.TripCount == o.TripCount
}

// Voucher is one inspector's monthly reimbursement claim
type Voucher struct {
	ID       int64          `json:"id"`
	PersonID int64          `json:"person_id"`
	Month    int            `json:"month"`
	Year     int            `json:"year"`
	Status   workflow.State `json:"status"`
	Totals

	ClaimantSignature     string     `json:"claimant_signature,omitempty"`
	ClaimantSignedAt      *time.Time `json:"claimant_signed_at,omitempty"`
	SupervisorSignature   string     `json:"supervisor_signature,omitempty"`
	SupervisorSignedAt    *time.Time `json:"supervisor_signed_at,omitempty"`
	FleetManagerSignature string     `json:"fleet_manager_signature,omitempty"`
	FleetManagerSignedAt  *time.Time `json:"fleet_manager_signed_at,omitempty"`

	// PendingApproverID is the supervisor-stage approver resolved at submit
	PendingApproverID *int64     `json:"pending_approver_id,omitempty"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	RejectedBy        *int64     `json:"rejected_by,omitempty"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClearApprovals drops approver signatures, the resolved approver and the
// rejection so that the voucher can go through approval again.
func (v *Voucher) ClearApprovals() {
	v.SupervisorSignature = ""
	v.SupervisorSignedAt = nil
	v.FleetManagerSignature = ""
	v.FleetManagerSignedAt = nil
	v.PendingApproverID = nil
	v.RejectionReason = ""
	v.RejectedBy = nil
}

// IsOwnedBy reports whether personID is the claimant
func (v *Voucher) IsOwnedBy(personID int64) bool {
	return v.PersonID == personID
}
