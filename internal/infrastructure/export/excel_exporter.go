package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
)

const defaultSheet = "Sheet1"

var headers = []interface{}{
	"Voucher", "Employee No.", "Name", "Duty Station", "Period",
	"Miles", "Mileage", "Lodging", "Meals", "Other", "Per Diem Days", "Total",
	"Account", "Account %", "Supervisor", "Fleet Manager", "Approved At",
}

// ExcelExporter implements port.VoucherExporter with excelize
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new xlsx exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Write renders rows to a single-sheet workbook. Amount columns are numeric
// cells with two decimals; an empty rows slice yields just the header.
func (e *ExcelExporter) Write(w io.Writer, sheet string, rows []port.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		values := []interface{}{
			row.VoucherID,
			row.EmployeeNumber,
			row.FullName,
			row.DutyStation,
			fmt.Sprintf("%04d-%02d", row.Year, row.Month),
			e.number(row.TotalMiles),
			e.number(row.MileageAmount),
			e.number(row.LodgingAmount),
			e.number(row.MealsAmount),
			e.number(row.OtherAmount),
			row.PerDiemDays,
			e.number(row.TotalAmount),
			row.AccountCode,
			e.number(row.AccountPercent),
			row.SupervisorSig,
			row.FleetSig,
			row.ApprovedAt,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if len(rows) > 0 {
		// money columns G..J and L; K is the per diem day count
		lastRow := len(rows) + 1
		for _, span := range [][2]string{{"G", "J"}, {"L", "L"}} {
			if err := f.SetCellStyle(sheet, fmt.Sprintf("%s2", span[0]), fmt.Sprintf("%s%d", span[1], lastRow), amountStyle); err != nil {
				return fmt.Errorf("failed to style amounts: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		e.logger.Error("Failed to write workbook", zap.String("sheet", sheet), zap.Error(err))
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Workbook written", zap.String("sheet", sheet), zap.Int("rows", len(rows)))
	return nil
}

// number turns a decimal string into a float cell value. Blank stays blank.
func (e *ExcelExporter) number(s string) interface{} {
	if s == "" {
		return ""
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		e.logger.Warn("Non-numeric amount exported as text", zap.String("value", s))
		return s
	}
	return d.InexactFloat64()
}

var _ port.VoucherExporter = (*ExcelExporter)(nil)
