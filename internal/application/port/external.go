package port

import (
	"context"
	"io"
)

// Message is a plain notification addressed to one person. Handle is the
// messaging identity, e.g. a Lark open_id.
type Message struct {
	RecipientID int64
	Handle      string
	Title       string
	Body        string
}

// Notifier delivers messages to people. Failures are reported but never roll
// back the change that triggered them.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// ExportRow is one approved voucher flattened for finance
type ExportRow struct {
	VoucherID      int64
	EmployeeNumber string
	FullName       string
	DutyStation    string
	Month          int
	Year           int
	TotalMiles     string
	MileageAmount  string
	LodgingAmount  string
	MealsAmount    string
	OtherAmount    string
	PerDiemDays    int
	TotalAmount    string
	SupervisorSig  string
	FleetSig       string
	ApprovedAt     string
	AccountCode    string
	AccountPercent string
}

// VoucherExporter renders approved vouchers to a spreadsheet
type VoucherExporter interface {
	Write(w io.Writer, sheet string, rows []ExportRow) error
}
