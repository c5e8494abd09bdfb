package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

// ErrStatusConflict is returned by compare-and-set writes when the stored
// status no longer matches the expected one.
var ErrStatusConflict = errors.New("status changed concurrently")

// ErrDuplicate is returned by Create when a uniqueness rule already holds a
// row for the same key, such as a second open voucher for one period.
var ErrDuplicate = errors.New("record already exists")

// Lookups return (nil, nil) when the row does not exist.

// PersonRepository defines persistence operations for Person
type PersonRepository interface {
	Create(ctx context.Context, person *entity.Person) error
	GetByID(ctx context.Context, id int64) (*entity.Person, error)
	ListByRole(ctx context.Context, role entity.Role) ([]*entity.Person, error)
	// UpdateRelation points one of the person's approver relations at supervisorID
	UpdateRelation(ctx context.Context, personID int64, relation entity.Relation, supervisorID int64) error
}

// TripRepository defines persistence operations for Trip
type TripRepository interface {
	Create(ctx context.Context, trip *entity.Trip) error
	ListByVoucher(ctx context.Context, voucherID int64) ([]*entity.Trip, error)
}

// VoucherRepository defines persistence operations for Voucher
type VoucherRepository interface {
	Create(ctx context.Context, voucher *entity.Voucher) error
	GetByID(ctx context.Context, id int64) (*entity.Voucher, error)

	// GetOpenForPeriod returns the non-approved voucher for (person, month, year)
	GetOpenForPeriod(ctx context.Context, personID int64, month, year int) (*entity.Voucher, error)

	// UpdateTransition writes status, totals, signatures and routing fields
	// only if the stored status still equals from. Otherwise ErrStatusConflict.
	UpdateTransition(ctx context.Context, voucher *entity.Voucher, from workflow.State) error

	// ListAwaitingSupervisor returns submitted vouchers routed to approverID
	ListAwaitingSupervisor(ctx context.Context, approverID int64) ([]*entity.Voucher, error)

	ListByStatus(ctx context.Context, status workflow.State) ([]*entity.Voucher, error)

	// ListStale returns vouchers awaiting approval whose last update is before cutoff
	ListStale(ctx context.Context, cutoff time.Time) ([]*entity.Voucher, error)

	ListApprovedForPeriod(ctx context.Context, month, year int) ([]*entity.Voucher, error)
}

// CertificationRepository is the append-only signature ledger
type CertificationRepository interface {
	Append(ctx context.Context, entry *entity.CertificationEntry) error
	ListByVoucher(ctx context.Context, voucherID int64) ([]*entity.CertificationEntry, error)
}

// AssignmentRepository defines persistence operations for AssignmentRequest
type AssignmentRepository interface {
	Create(ctx context.Context, req *entity.AssignmentRequest) error
	GetByID(ctx context.Context, id int64) (*entity.AssignmentRequest, error)
	FindPending(ctx context.Context, inspectorID, requesterID int64) (*entity.AssignmentRequest, error)
	ListPending(ctx context.Context) ([]*entity.AssignmentRequest, error)

	// UpdateResolution records the final status if the request is still pending.
	// Otherwise ErrStatusConflict.
	UpdateResolution(ctx context.Context, req *entity.AssignmentRequest) error
}

// RateRepository reads the mileage rate table
type RateRepository interface {
	ListAll(ctx context.Context) ([]entity.MileageRate, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
