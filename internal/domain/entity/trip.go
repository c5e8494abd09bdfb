package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trip is one dated journey with its computed mileage and optional expenses.
// Trips are recorded by the trip-entry collaborator; this service only reads
// them and guards edits by voucher status.
type Trip struct {
	ID          int64           `json:"id"`
	PersonID    int64           `json:"person_id"`
	VoucherID   int64           `json:"voucher_id"`
	TripDate    time.Time       `json:"trip_date"`
	Origin      string          `json:"origin,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Miles       decimal.Decimal `json:"miles"`
	Lodging     decimal.Decimal `json:"lodging"`
	Meals       decimal.Decimal `json:"meals"`
	PerDiemDays int             `json:"per_diem_days"`
	Other       decimal.Decimal `json:"other"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Period returns the (month, year) the trip falls in.
func (t *Trip) Period() (int, int) {
	return int(t.TripDate.Month()), t.TripDate.Year()
}

// MileageRate is a per-mile reimbursement rate effective from a date onward.
type MileageRate struct {
	ID            int64           `json:"id"`
	EffectiveDate time.Time       `json:"effective_date"`
	Rate          decimal.Decimal `json:"rate"`
}
