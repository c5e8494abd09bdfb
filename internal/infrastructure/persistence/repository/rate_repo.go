package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/persistence/sqlite"
)

// RateRepository implements port.RateRepository
type RateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRateRepository creates a new mileage rate repository
func NewRateRepository(db *sql.DB, logger *zap.Logger) *RateRepository {
	return &RateRepository{
		db:     db,
		logger: logger,
	}
}

// ListAll returns the rate table ordered by effective date
func (r *RateRepository) ListAll(ctx context.Context) ([]entity.MileageRate, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx,
		`SELECT id, effective_date, rate FROM mileage_rates ORDER BY effective_date`)
	if err != nil {
		r.logger.Error("Failed to list mileage rates", zap.Error(err))
		return nil, fmt.Errorf("failed to list mileage rates: %w", err)
	}
	defer rows.Close()

	var rates []entity.MileageRate
	for rows.Next() {
		var rate entity.MileageRate
		if err := rows.Scan(&rate.ID, &rate.EffectiveDate, &rate.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan mileage rate: %w", err)
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// Upsert sets the rate effective from rate.EffectiveDate
func (r *RateRepository) Upsert(ctx context.Context, rate *entity.MileageRate) error {
	query := `
		INSERT INTO mileage_rates (effective_date, rate) VALUES (?, ?)
		ON CONFLICT(effective_date) DO UPDATE SET rate = excluded.rate
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, rate.EffectiveDate.UTC(), rate.Rate)
	if err != nil {
		r.logger.Error("Failed to upsert mileage rate", zap.Time("effective_date", rate.EffectiveDate), zap.Error(err))
		return fmt.Errorf("failed to upsert mileage rate: %w", err)
	}
	return nil
}

var _ port.RateRepository = (*RateRepository)(nil)
