package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
)

// ExportService renders approved vouchers for the finance collaborator
type ExportService interface {
	// ExportApproved returns an xlsx workbook of the period's approved
	// vouchers and the file name it was archived under.
	ExportApproved(ctx context.Context, month, year int) ([]byte, string, error)
}

type exportServiceImpl struct {
	voucherRepo port.VoucherRepository
	personRepo  port.PersonRepository
	exporter    port.VoucherExporter
	storage     port.ExportArchive
	logger      Logger
}

// NewExportService creates a new ExportService. storage may be nil to skip archiving.
func NewExportService(
	voucherRepo port.VoucherRepository,
	personRepo port.PersonRepository,
	exporter port.VoucherExporter,
	storage port.ExportArchive,
	logger Logger,
) ExportService {
	return &exportServiceImpl{
		voucherRepo: voucherRepo,
		personRepo:  personRepo,
		exporter:    exporter,
		storage:     storage,
		logger:      logger,
	}
}

func (s *exportServiceImpl) ExportApproved(ctx context.Context, month, year int) ([]byte, string, error) {
	if month < 1 || month > 12 {
		return nil, "", errs.Validation("month", "month must be between 1 and 12, got %d", month)
	}
	if year < 2000 || year > 9999 {
		return nil, "", errs.Validation("year", "year %d is out of range", year)
	}

	vouchers, err := s.voucherRepo.ListApprovedForPeriod(ctx, month, year)
	if err != nil {
		return nil, "", fmt.Errorf("list approved vouchers: %w", err)
	}

	rows := make([]port.ExportRow, 0, len(vouchers))
	for _, v := range vouchers {
		owner, err := s.personRepo.GetByID(ctx, v.PersonID)
		if err != nil {
			return nil, "", fmt.Errorf("get voucher owner: %w", err)
		}
		if owner == nil {
			owner = &entity.Person{ID: v.PersonID}
		}
		rows = append(rows, exportRows(v, owner)...)
	}

	var buf bytes.Buffer
	sheet := fmt.Sprintf("%04d-%02d", year, month)
	if err := s.exporter.Write(&buf, sheet, rows); err != nil {
		s.logger.Error("Failed to render export", "error", err, "month", month, "year", year)
		return nil, "", fmt.Errorf("render export: %w", err)
	}

	name := fmt.Sprintf("vouchers_%04d_%02d.xlsx", year, month)
	if s.storage == nil {
		s.logger.Info("Approved vouchers exported", "month", month, "year", year, "vouchers", len(vouchers), "file", name)
		return buf.Bytes(), name, nil
	}
	if err := s.storage.Save(ctx, name, buf.Bytes()); err != nil {
		s.logger.Error("Failed to archive export", "error", err, "file", name)
		return nil, "", fmt.Errorf("archive export: %w", err)
	}

	s.logger.Info("Approved vouchers exported", "month", month, "year", year, "vouchers", len(vouchers), "path", s.storage.GetFullPath(name))
	return buf.Bytes(), name, nil
}

// exportRows emits one row per cost-split account, or one row without an
// account when the owner has no split on file.
func exportRows(v *entity.Voucher, owner *entity.Person) []port.ExportRow {
	base := port.ExportRow{
		VoucherID:      v.ID,
		EmployeeNumber: owner.EmployeeNumber,
		FullName:       owner.DisplayName(),
		DutyStation:    owner.DutyStation,
		Month:          v.Month,
		Year:           v.Year,
		TotalMiles:     v.TotalMiles.String(),
		MileageAmount:  v.MileageAmount.StringFixed(2),
		LodgingAmount:  v.LodgingAmount.StringFixed(2),
		MealsAmount:    v.MealsAmount.StringFixed(2),
		OtherAmount:    v.OtherAmount.StringFixed(2),
		PerDiemDays:    v.PerDiemDays,
		TotalAmount:    v.TotalAmount.StringFixed(2),
		SupervisorSig:  v.SupervisorSignature,
		FleetSig:       v.FleetManagerSignature,
	}
	if v.FleetManagerSignedAt != nil {
		base.ApprovedAt = v.FleetManagerSignedAt.Format(time.RFC3339)
	}

	if len(owner.CostSplits) == 0 {
		return []port.ExportRow{base}
	}

	rows := make([]port.ExportRow, 0, len(owner.CostSplits))
	for _, split := range owner.CostSplits {
		row := base
		row.AccountCode = split.AccountCode
		row.AccountPercent = split.Percent.String()
		rows = append(rows, row)
	}
	return rows
}
