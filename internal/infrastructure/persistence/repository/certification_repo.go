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

// CertificationRepository implements port.CertificationRepository. The table
// rejects UPDATE and DELETE through triggers, so Append is the only write.
type CertificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCertificationRepository creates a new certification ledger repository
func NewCertificationRepository(db *sql.DB, logger *zap.Logger) port.CertificationRepository {
	return &CertificationRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one ledger entry
func (r *CertificationRepository) Append(ctx context.Context, entry *entity.CertificationEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO certification_entries (
			voucher_id, stage, actor_id, display_name, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entry.VoucherID,
		entry.Stage,
		entry.ActorID,
		entry.DisplayName,
		entry.Note,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append certification",
			zap.Int64("voucher_id", entry.VoucherID),
			zap.String("stage", string(entry.Stage)),
			zap.Error(err))
		return fmt.Errorf("failed to append certification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByVoucher returns the voucher's entries in the order they were written
func (r *CertificationRepository) ListByVoucher(ctx context.Context, voucherID int64) ([]*entity.CertificationEntry, error) {
	query := `
		SELECT id, voucher_id, stage, actor_id, display_name, note, created_at
		FROM certification_entries
		WHERE voucher_id = ?
		ORDER BY id
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, voucherID)
	if err != nil {
		r.logger.Error("Failed to list certifications", zap.Int64("voucher_id", voucherID), zap.Error(err))
		return nil, fmt.Errorf("failed to list certifications: %w", err)
	}
	defer rows.Close()

	var entries []*entity.CertificationEntry
	for rows.Next() {
		var e entity.CertificationEntry
		if err := rows.Scan(&e.ID, &e.VoucherID, &e.Stage, &e.ActorID, &e.DisplayName, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan certification: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

var _ port.CertificationRepository = (*CertificationRepository)(nil)
