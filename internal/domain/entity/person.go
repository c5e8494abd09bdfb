package entity

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
)

// Role is the system role a person holds, independent of their position.
type Role string

const (
	RoleInspector    Role = "inspector"
	RoleSupervisor   Role = "supervisor"
	RoleFleetManager Role = "fleet_manager"
	RoleAdmin        Role = "admin"
)

// IsValid returns true if the role is one of the defined constants
func (r Role) IsValid() bool {
	switch r {
	case RoleInspector, RoleSupervisor, RoleFleetManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// Person is an inspector, supervisor or fleet manager profile.
//
// AssignedSupervisorID routes to an SCSI/PHV-class approver and
// FLSSupervisorID routes to an FLS/DDM/DM-class approver. Both are weak
// references and may be nil.
type Person struct {
	ID                   int64       `json:"id"`
	Name                 string      `json:"name"`
	Email                string      `json:"email,omitempty"`
	Role                 Role        `json:"role"`
	PositionTitle        string      `json:"position_title"`
	AssignedSupervisorID *int64      `json:"assigned_supervisor_id,omitempty"`
	FLSSupervisorID      *int64      `json:"fls_supervisor_id,omitempty"`
	Active               bool        `json:"active"`
	LarkOpenID           string      `json:"lark_open_id,omitempty"`
	FullName             string      `json:"full_name"`
	EmployeeNumber       string      `json:"employee_number"`
	DutyStation          string      `json:"duty_station"`
	HomeAddress          string      `json:"home_address"`
	CertifiedAt          *time.Time  `json:"certified_at,omitempty"`
	CostSplits           []CostSplit `json:"cost_splits,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// CostSplit assigns a share of a person's travel cost to an account.
type CostSplit struct {
	AccountCode string          `json:"account_code"`
	Percent     decimal.Decimal `json:"percent"`
}

// Position maps the person's free-text title onto the position enum.
func (p *Person) Position() Position {
	return ParsePosition(p.PositionTitle)
}

// DisplayName is the name stamped onto signatures.
func (p *Person) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Name
}

// IsFleetManager is true for an active holder of the fleet manager role.
func (p *Person) IsFleetManager() bool {
	return p.Active && p.Role == RoleFleetManager
}

// certification holds the identification fields a claimant must complete
// before a voucher can be submitted.
type certification struct {
	FullName       string     `json:"full_name" validate:"required"`
	EmployeeNumber string     `json:"employee_number" validate:"required"`
	DutyStation    string     `json:"duty_station" validate:"required"`
	HomeAddress    string     `json:"home_address" validate:"required"`
	CertifiedAt    *time.Time `json:"certified_at" validate:"required"`
}

var hundred = decimal.NewFromInt(100)

var certValidator = newCertValidator()

func newCertValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CheckCertification returns a ValidationError naming the first missing
// identification field, or a cost split that does not total exactly 100.
func (p *Person) CheckCertification() error {
	c := certification{
		FullName:       strings.TrimSpace(p.FullName),
		EmployeeNumber: strings.TrimSpace(p.EmployeeNumber),
		DutyStation:    strings.TrimSpace(p.DutyStation),
		HomeAddress:    strings.TrimSpace(p.HomeAddress),
		CertifiedAt:    p.CertifiedAt,
	}

	if err := certValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errs.Validation(verrs[0].Field(), "personal certification is incomplete")
		}
		return errs.Validation("certification", "%v", err)
	}

	if len(p.CostSplits) == 0 {
		return nil
	}

	total := decimal.Zero
	for _, s := range p.CostSplits {
		if s.Percent.IsNegative() {
			return errs.Validation("cost_splits", "percent for %s is negative", s.AccountCode)
		}
		total = total.Add(s.Percent)
	}
	if !total.Equal(hundred) {
		return errs.Validation("cost_splits", "percentages sum to %s, expected 100", total.String())
	}

	return nil
}
