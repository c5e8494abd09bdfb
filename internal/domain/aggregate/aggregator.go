// Package aggregate sums one inspector's monthly trip set into voucher totals.
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
)

// RateFunc returns the per-mile rate effective on a date
type RateFunc func(date time.Time) (decimal.Decimal, error)

// Aggregate computes the totals for trips. All trips must belong to the same
// person and fall in the same month. Mileage cost is rounded to cents per trip
// before summing, which keeps the result independent of trip order.
func Aggregate(trips []*entity.Trip, rateAt RateFunc) (entity.Totals, error) {
	totals := entity.Totals{
		TotalMiles:    decimal.Zero,
		MileageAmount: decimal.Zero,
		LodgingAmount: decimal.Zero,
		MealsAmount:   decimal.Zero,
		OtherAmount:   decimal.Zero,
		TotalAmount:   decimal.Zero,
	}
	if len(trips) == 0 {
		return totals, nil
	}

	owner := trips[0].PersonID
	month, year := trips[0].Period()

	for _, trip := range trips {
		if trip.PersonID != owner {
			return entity.Totals{}, errs.Validation("trips", "trip %d belongs to person %d, expected %d", trip.ID, trip.PersonID, owner)
		}
		if m, y := trip.Period(); m != month || y != year {
			return entity.Totals{}, errs.Validation("trips", "trip %d is dated %04d-%02d, expected %04d-%02d", trip.ID, y, m, year, month)
		}
		if trip.Miles.IsNegative() || trip.Lodging.IsNegative() || trip.Meals.IsNegative() || trip.Other.IsNegative() || trip.PerDiemDays < 0 {
			return entity.Totals{}, errs.Validation("trips", "trip %d has a negative amount", trip.ID)
		}

		rate, err := rateAt(trip.TripDate)
		if err != nil {
			return entity.Totals{}, err
		}

		totals.TotalMiles = totals.TotalMiles.Add(trip.Miles)
		totals.MileageAmount = totals.MileageAmount.Add(trip.Miles.Mul(rate).Round(2))
		totals.LodgingAmount = totals.LodgingAmount.Add(trip.Lodging)
		totals.MealsAmount = totals.MealsAmount.Add(trip.Meals)
		totals.OtherAmount = totals.OtherAmount.Add(trip.Other)
		totals.PerDiemDays += trip.PerDiemDays
		totals.TripCount++
	}

	totals.TotalAmount = totals.MileageAmount.
		Add(totals.LodgingAmount).
		Add(totals.MealsAmount).
		Add(totals.OtherAmount)

	return totals, nil
}
