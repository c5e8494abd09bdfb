package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/persistence/sqlite"
)

// TripRepository implements port.TripRepository
type TripRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB, logger *zap.Logger) port.TripRepository {
	return &TripRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a trip
func (r *TripRepository) Create(ctx context.Context, trip *entity.Trip) error {
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO trips (
			person_id, voucher_id, trip_date, origin, destination,
			miles, lodging, meals, per_diem_days, other, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		trip.PersonID,
		trip.VoucherID,
		trip.TripDate.UTC(),
		trip.Origin,
		trip.Destination,
		trip.Miles,
		trip.Lodging,
		trip.Meals,
		trip.PerDiemDays,
		trip.Other,
		trip.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create trip", zap.Int64("voucher_id", trip.VoucherID), zap.Error(err))
		return fmt.Errorf("failed to create trip: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	trip.ID = id
	return nil
}

// ListByVoucher returns the voucher's trips in date order
func (r *TripRepository) ListByVoucher(ctx context.Context, voucherID int64) ([]*entity.Trip, error) {
	query := `
		SELECT id, person_id, voucher_id, trip_date, origin, destination,
			miles, lodging, meals, per_diem_days, other, created_at
		FROM trips
		WHERE voucher_id = ?
		ORDER BY trip_date, id
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, voucherID)
	if err != nil {
		r.logger.Error("Failed to list trips", zap.Int64("voucher_id", voucherID), zap.Error(err))
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []*entity.Trip
	for rows.Next() {
		var t entity.Trip
		if err := rows.Scan(
			&t.ID,
			&t.PersonID,
			&t.VoucherID,
			&t.TripDate,
			&t.Origin,
			&t.Destination,
			&t.Miles,
			&t.Lodging,
			&t.Meals,
			&t.PerDiemDays,
			&t.Other,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, &t)
	}

	return trips, rows.Err()
}

var _ port.TripRepository = (*TripRepository)(nil)
