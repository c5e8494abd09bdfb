package entity

import "time"

// CertificationStage labels a ledger entry
type CertificationStage string

const (
	StageClaimant     CertificationStage = "claimant"
	StageSupervisor   CertificationStage = "supervisor"
	StageFleetManager CertificationStage = "fleet_manager"
	StageRejected     CertificationStage = "rejected"
	// StageCleared marks the point where earlier approver signatures stopped counting
	StageCleared CertificationStage = "cleared"
)

// CertificationEntry is one append-only signature record on a voucher.
// DisplayName is captured at signing time so later renames don't rewrite history.
type CertificationEntry struct {
	ID          int64              `json:"id"`
	VoucherID   int64              `json:"voucher_id"`
	Stage       CertificationStage `json:"stage"`
	ActorID     int64              `json:"actor_id"`
	DisplayName string             `json:"display_name"`
	Note        string             `json:"note,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
