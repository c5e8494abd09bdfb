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

// AssignmentRepository implements port.AssignmentRepository
type AssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment request repository
func NewAssignmentRepository(db *sql.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

const assignmentColumns = `
	id, inspector_id, requesting_supervisor_id, current_supervisor_id,
	relation, status, reason, resolution_notes, processed_by, processed_at,
	created_at, updated_at`

// Create inserts a new request
func (r *AssignmentRepository) Create(ctx context.Context, req *entity.AssignmentRequest) error {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}

	query := `
		INSERT INTO assignment_requests (
			inspector_id, requesting_supervisor_id, current_supervisor_id,
			relation, status, reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		req.InspectorID,
		req.RequestingSupervisorID,
		nullInt64(req.CurrentSupervisorID),
		req.Relation,
		req.Status,
		req.Reason,
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create assignment request",
			zap.Int64("inspector_id", req.InspectorID),
			zap.Int64("requester_id", req.RequestingSupervisorID),
			zap.Error(err))
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("pending assignment request: %w", port.ErrDuplicate)
		}
		return fmt.Errorf("failed to create assignment request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	return nil
}

// GetByID retrieves a request by ID
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*entity.AssignmentRequest, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignment_requests WHERE id = ?`

	req, err := scanAssignment(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get assignment request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get assignment request: %w", err)
	}
	return req, nil
}

// FindPending returns the pending request from requesterID for inspectorID, if any
func (r *AssignmentRepository) FindPending(ctx context.Context, inspectorID, requesterID int64) (*entity.AssignmentRequest, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM assignment_requests
		WHERE inspector_id = ? AND requesting_supervisor_id = ? AND status = ?`

	req, err := scanAssignment(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, inspectorID, requesterID, entity.AssignmentPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find pending assignment request", zap.Int64("inspector_id", inspectorID), zap.Error(err))
		return nil, fmt.Errorf("failed to find pending assignment request: %w", err)
	}
	return req, nil
}

// ListPending returns every pending request, oldest first
func (r *AssignmentRepository) ListPending(ctx context.Context) ([]*entity.AssignmentRequest, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignment_requests WHERE status = ? ORDER BY id`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, entity.AssignmentPending)
	if err != nil {
		r.logger.Error("Failed to list pending assignment requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list assignment requests: %w", err)
	}
	defer rows.Close()

	var reqs []*entity.AssignmentRequest
	for rows.Next() {
		req, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// UpdateResolution records the final status if the request is still pending
func (r *AssignmentRepository) UpdateResolution(ctx context.Context, req *entity.AssignmentRequest) error {
	query := `
		UPDATE assignment_requests
		SET status = ?, resolution_notes = ?, processed_by = ?, processed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		req.Status,
		req.ResolutionNotes,
		nullInt64(req.ProcessedBy),
		nullTime(req.ProcessedAt),
		req.UpdatedAt.UTC(),
		req.ID,
		entity.AssignmentPending,
	)
	if err != nil {
		r.logger.Error("Failed to resolve assignment request", zap.Int64("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to resolve assignment request: %w", err)
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

func scanAssignment(row rowScanner) (*entity.AssignmentRequest, error) {
	var (
		req         entity.AssignmentRequest
		current     sql.NullInt64
		processedBy sql.NullInt64
		processedAt sql.NullTime
	)

	err := row.Scan(
		&req.ID,
		&req.InspectorID,
		&req.RequestingSupervisorID,
		&current,
		&req.Relation,
		&req.Status,
		&req.Reason,
		&req.ResolutionNotes,
		&processedBy,
		&processedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.CurrentSupervisorID = int64Ptr(current)
	req.ProcessedBy = int64Ptr(processedBy)
	req.ProcessedAt = timePtr(processedAt)
	return &req, nil
}

var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
