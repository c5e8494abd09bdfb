package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/persistence/sqlite"
)

// VoucherRepository implements port.VoucherRepository
type VoucherRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(db *sql.DB, logger *zap.Logger) port.VoucherRepository {
	return &VoucherRepository{
		db:     db,
		logger: logger,
	}
}

const voucherColumns = `
	id, person_id, month, year, status,
	total_miles, mileage_amount, lodging_amount, meals_amount, other_amount,
	per_diem_days, total_amount, trip_count,
	claimant_signature, claimant_signed_at,
	supervisor_signature, supervisor_signed_at,
	fleet_manager_signature, fleet_manager_signed_at,
	pending_approver_id, rejection_reason, rejected_by, submitted_at,
	created_at, updated_at`

// Create inserts a new voucher record
func (r *VoucherRepository) Create(ctx context.Context, voucher *entity.Voucher) error {
	now := time.Now().UTC()
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = now
	}
	if voucher.UpdatedAt.IsZero() {
		voucher.UpdatedAt = voucher.CreatedAt
	}

	query := `
		INSERT INTO vouchers (
			person_id, month, year, status,
			total_miles, mileage_amount, lodging_amount, meals_amount, other_amount,
			per_diem_days, total_amount, trip_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		voucher.PersonID,
		voucher.Month,
		voucher.Year,
		voucher.Status,
		voucher.TotalMiles,
		voucher.MileageAmount,
		voucher.LodgingAmount,
		voucher.MealsAmount,
		voucher.OtherAmount,
		voucher.PerDiemDays,
		voucher.TotalAmount,
		voucher.TripCount,
		voucher.CreatedAt.UTC(),
		voucher.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create voucher",
			zap.Int64("person_id", voucher.PersonID),
			zap.Int("month", voucher.Month),
			zap.Int("year", voucher.Year),
			zap.Error(err))
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("open voucher for %d-%02d: %w", voucher.Year, voucher.Month, port.ErrDuplicate)
		}
		return fmt.Errorf("failed to create voucher: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	voucher.ID = id
	return nil
}

// GetByID retrieves a voucher by ID
func (r *VoucherRepository) GetByID(ctx context.Context, id int64) (*entity.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = ?`

	v, err := scanVoucher(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get voucher by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return v, nil
}

// GetOpenForPeriod retrieves the person's non-approved voucher for the period
func (r *VoucherRepository) GetOpenForPeriod(ctx context.Context, personID int64, month, year int) (*entity.Voucher, error) {
	query := `SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE person_id = ? AND month = ? AND year = ? AND status <> ?`

	v, err := scanVoucher(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, personID, month, year, workflow.StateApproved))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get open voucher",
			zap.Int64("person_id", personID),
			zap.Int("month", month),
			zap.Int("year", year),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get open voucher: %w", err)
	}
	return v, nil
}

// UpdateTransition writes the transition's fields only if the stored status
// still equals from.
func (r *VoucherRepository) UpdateTransition(ctx context.Context, voucher *entity.Voucher, from workflow.State) error {
	query := `
		UPDATE vouchers
		SET status = ?,
			total_miles = ?, mileage_amount = ?, lodging_amount = ?, meals_amount = ?, other_amount = ?,
			per_diem_days = ?, total_amount = ?, trip_count = ?,
			claimant_signature = ?, claimant_signed_at = ?,
			supervisor_signature = ?, supervisor_signed_at = ?,
			fleet_manager_signature = ?, fleet_manager_signed_at = ?,
			pending_approver_id = ?, rejection_reason = ?, rejected_by = ?, submitted_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		voucher.Status,
		voucher.TotalMiles,
		voucher.MileageAmount,
		voucher.LodgingAmount,
		voucher.MealsAmount,
		voucher.OtherAmount,
		voucher.PerDiemDays,
		voucher.TotalAmount,
		voucher.TripCount,
		voucher.ClaimantSignature,
		nullTime(voucher.ClaimantSignedAt),
		voucher.SupervisorSignature,
		nullTime(voucher.SupervisorSignedAt),
		voucher.FleetManagerSignature,
		nullTime(voucher.FleetManagerSignedAt),
		nullInt64(voucher.PendingApproverID),
		voucher.RejectionReason,
		nullInt64(voucher.RejectedBy),
		nullTime(voucher.SubmittedAt),
		voucher.UpdatedAt.UTC(),
		voucher.ID,
		from,
	)
	if err != nil {
		r.logger.Error("Failed to update voucher",
			zap.Int64("id", voucher.ID),
			zap.String("from", from.String()),
			zap.String("to", voucher.Status.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update voucher: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return port.ErrStatusConflict
	}
	return nil
}

// ListAwaitingSupervisor returns submitted vouchers routed to approverID
func (r *VoucherRepository) ListAwaitingSupervisor(ctx context.Context, approverID int64) ([]*entity.Voucher, error) {
	return r.list(ctx, "pending approver",
		`WHERE status = ? AND pending_approver_id = ? ORDER BY submitted_at, id`,
		workflow.StateSubmitted, approverID)
}

// ListByStatus returns vouchers in status, oldest update first
func (r *VoucherRepository) ListByStatus(ctx context.Context, status workflow.State) ([]*entity.Voucher, error) {
	return r.list(ctx, "status",
		`WHERE status = ? ORDER BY updated_at, id`,
		status)
}

// ListStale returns vouchers awaiting approval not touched since cutoff
func (r *VoucherRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*entity.Voucher, error) {
	return r.list(ctx, "stale",
		`WHERE status IN (?, ?) AND updated_at < ? ORDER BY updated_at, id`,
		workflow.StateSubmitted, workflow.StateSupervisorApproved, cutoff.UTC())
}

// ListApprovedForPeriod returns the period's approved vouchers
func (r *VoucherRepository) ListApprovedForPeriod(ctx context.Context, month, year int) ([]*entity.Voucher, error) {
	return r.list(ctx, "approved",
		`WHERE status = ? AND month = ? AND year = ? ORDER BY id`,
		workflow.StateApproved, month, year)
}

func (r *VoucherRepository) list(ctx context.Context, what, where string, args ...interface{}) ([]*entity.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers ` + where

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list vouchers", zap.String("by", what), zap.Error(err))
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*entity.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func scanVoucher(row rowScanner) (*entity.Voucher, error) {
	var (
		v                  entity.Voucher
		claimantSignedAt   sql.NullTime
		supervisorSignedAt sql.NullTime
		fleetSignedAt      sql.NullTime
		pendingApprover    sql.NullInt64
		rejectedBy         sql.NullInt64
		submittedAt        sql.NullTime
	)

	err := row.Scan(
		&v.ID,
		&v.PersonID,
		&v.Month,
		&v.Year,
		&v.Status,
		&v.TotalMiles,
		&v.MileageAmount,
		&v.LodgingAmount,
		&v.MealsAmount,
		&v.OtherAmount,
		&v.PerDiemDays,
		&v.TotalAmount,
		&v.TripCount,
		&v.ClaimantSignature,
		&claimantSignedAt,
		&v.SupervisorSignature,
		&supervisorSignedAt,
		&v.FleetManagerSignature,
		&fleetSignedAt,
		&pendingApprover,
		&v.RejectionReason,
		&rejectedBy,
		&submittedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.ClaimantSignedAt = timePtr(claimantSignedAt)
	v.SupervisorSignedAt = timePtr(supervisorSignedAt)
	v.FleetManagerSignedAt = timePtr(fleetSignedAt)
	v.PendingApproverID = int64Ptr(pendingApprover)
	v.RejectedBy = int64Ptr(rejectedBy)
	v.SubmittedAt = timePtr(submittedAt)
	return &v, nil
}

var _ port.VoucherRepository = (*VoucherRepository)(nil)
