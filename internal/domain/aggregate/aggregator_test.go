package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func flatRate(r string) RateFunc {
	rate := decimal.RequireFromString(r)
	return func(time.Time) (decimal.Decimal, error) { return rate, nil }
}

func trip(id int64, date time.Time, miles string) *entity.Trip {
	return &entity.Trip{
		ID:       id,
		PersonID: 1,
		TripDate: date,
		Miles:    decimal.RequireFromString(miles),
		Lodging:  decimal.Zero,
		Meals:    decimal.Zero,
		Other:    decimal.Zero,
	}
}

func TestAggregate_HundredMilesAtSixtySevenCents(t *testing.T) {
	trips := []*entity.Trip{trip(1, day(2024, 3, 4), "100.0")}

	totals, err := Aggregate(trips, flatRate("0.67"))
	require.NoError(t, err)

	assert.True(t, totals.TotalMiles.Equal(decimal.RequireFromString("100.0")))
	assert.Equal(t, "67.00", totals.MileageAmount.StringFixed(2))
	assert.Equal(t, "67.00", totals.TotalAmount.StringFixed(2))
	assert.Equal(t, 1, totals.TripCount)
}

func TestAggregate_SumsExpenses(t *testing.T) {
	a := trip(1, day(2024, 3, 4), "10")
	a.Lodging = decimal.RequireFromString("120.50")
	a.Meals = decimal.RequireFromString("30")
	a.PerDiemDays = 1
	b := trip(2, day(2024, 3, 18), "12.5")
	b.Other = decimal.RequireFromString("4.25")
	b.PerDiemDays = 2

	totals, err := Aggregate([]*entity.Trip{a, b}, flatRate("0.655"))
	require.NoError(t, err)

	// 10*0.655=6.55, 12.5*0.655=8.1875 -> 8.19
	assert.Equal(t, "14.74", totals.MileageAmount.StringFixed(2))
	assert.Equal(t, "120.50", totals.LodgingAmount.StringFixed(2))
	assert.Equal(t, "30.00", totals.MealsAmount.StringFixed(2))
	assert.Equal(t, "4.25", totals.OtherAmount.StringFixed(2))
	assert.Equal(t, 3, totals.PerDiemDays)
	assert.Equal(t, "169.49", totals.TotalAmount.StringFixed(2))
}

func TestAggregate_PerDiemDaysDoNotChangeTotal(t *testing.T) {
	plain := trip(1, day(2024, 3, 4), "10")
	withDays := trip(1, day(2024, 3, 4), "10")
	withDays.PerDiemDays = 4

	a, err := Aggregate([]*entity.Trip{plain}, flatRate("0.67"))
	require.NoError(t, err)
	b, err := Aggregate([]*entity.Trip{withDays}, flatRate("0.67"))
	require.NoError(t, err)

	assert.Equal(t, 4, b.PerDiemDays)
	assert.True(t, a.TotalAmount.Equal(b.TotalAmount), "%s != %s", a.TotalAmount, b.TotalAmount)
}

func TestAggregate_IsOrderIndependentAndIdempotent(t *testing.T) {
	trips := []*entity.Trip{
		trip(1, day(2024, 5, 1), "33.333"),
		trip(2, day(2024, 5, 9), "0.1"),
		trip(3, day(2024, 5, 30), "250.75"),
	}
	reversed := []*entity.Trip{trips[2], trips[1], trips[0]}

	first, err := Aggregate(trips, flatRate("0.67"))
	require.NoError(t, err)
	again, err := Aggregate(trips, flatRate("0.67"))
	require.NoError(t, err)
	swapped, err := Aggregate(reversed, flatRate("0.67"))
	require.NoError(t, err)

	assert.True(t, first.Equal(again))
	assert.True(t, first.Equal(swapped))
}

func TestAggregate_Empty(t *testing.T) {
	totals, err := Aggregate(nil, flatRate("0.67"))
	require.NoError(t, err)
	assert.True(t, totals.TotalAmount.IsZero())
	assert.Equal(t, 0, totals.TripCount)
}

func TestAggregate_RejectsMixedSets(t *testing.T) {
	t.Run("different owner", func(t *testing.T) {
		other := trip(2, day(2024, 3, 5), "1")
		other.PersonID = 2

		_, err := Aggregate([]*entity.Trip{trip(1, day(2024, 3, 4), "1"), other}, flatRate("0.67"))
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})

	t.Run("different month", func(t *testing.T) {
		_, err := Aggregate([]*entity.Trip{trip(1, day(2024, 3, 31), "1"), trip(2, day(2024, 4, 1), "1")}, flatRate("0.67"))
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})

	t.Run("negative miles", func(t *testing.T) {
		_, err := Aggregate([]*entity.Trip{trip(1, day(2024, 3, 31), "-5")}, flatRate("0.67"))
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})
}

func TestRateTable(t *testing.T) {
	table := NewRateTable([]entity.MileageRate{
		{ID: 2, EffectiveDate: day(2024, 1, 1), Rate: decimal.RequireFromString("0.67")},
		{ID: 1, EffectiveDate: day(2023, 1, 1), Rate: decimal.RequireFromString("0.655")},
	})

	rate, err := table.RateAt(day(2023, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, "0.655", rate.String())

	rate, err = table.RateAt(day(2024, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "0.67", rate.String())

	_, err = table.RateAt(day(2022, 6, 1))
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "mileage_rate", ve.Field)
}

func TestAggregate_UsesRatePerTripDate(t *testing.T) {
	table := NewRateTable([]entity.MileageRate{
		{EffectiveDate: day(2024, 1, 1), Rate: decimal.RequireFromString("0.50")},
		{EffectiveDate: day(2024, 1, 15), Rate: decimal.RequireFromString("1.00")},
	})

	totals, err := Aggregate([]*entity.Trip{
		trip(1, day(2024, 1, 10), "10"),
		trip(2, day(2024, 1, 20), "10"),
	}, table.Func())
	require.NoError(t, err)
	assert.Equal(t, "15.00", totals.MileageAmount.StringFixed(2))

	_, err = Aggregate([]*entity.Trip{trip(3, day(2023, 12, 31), "1")}, table.Func())
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}
