package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
)

// RateTable is an in-memory snapshot of mileage rates ordered by effective date
type RateTable struct {
	rates []entity.MileageRate
}

// NewRateTable copies and sorts rates
func NewRateTable(rates []entity.MileageRate) *RateTable {
	sorted := make([]entity.MileageRate, len(rates))
	copy(sorted, rates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveDate.Before(sorted[j].EffectiveDate)
	})
	return &RateTable{rates: sorted}
}

// RateAt returns the rate with the latest effective date on or before date
func (t *RateTable) RateAt(date time.Time) (decimal.Decimal, error) {
	day := truncateDay(date)
	idx := sort.Search(len(t.rates), func(i int) bool {
		return truncateDay(t.rates[i].EffectiveDate).After(day)
	})
	if idx == 0 {
		return decimal.Zero, errs.Validation("mileage_rate", "no mileage rate effective on %s", day.Format("2006-01-02"))
	}
	return t.rates[idx-1].Rate, nil
}

// Func adapts the table to a RateFunc
func (t *RateTable) Func() RateFunc {
	return t.RateAt
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
