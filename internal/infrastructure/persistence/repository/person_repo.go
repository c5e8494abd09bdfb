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

// PersonRepository implements port.PersonRepository
type PersonRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPersonRepository creates a new person repository
func NewPersonRepository(db *sql.DB, logger *zap.Logger) port.PersonRepository {
	return &PersonRepository{
		db:     db,
		logger: logger,
	}
}

const personColumns = `
	id, name, email, role, position_title, assigned_supervisor_id,
	fls_supervisor_id, active, lark_open_id, full_name, employee_number,
	duty_station, home_address, certified_at, created_at, updated_at`

// Create inserts a person and their cost splits. A non-zero ID is kept so
// directory imports can preserve upstream identifiers.
func (r *PersonRepository) Create(ctx context.Context, person *entity.Person) error {
	now := time.Now().UTC()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	if person.UpdatedAt.IsZero() {
		person.UpdatedAt = now
	}

	var id sql.NullInt64
	if person.ID != 0 {
		id = sql.NullInt64{Int64: person.ID, Valid: true}
	}

	query := `
		INSERT INTO people (
			id, name, email, role, position_title, assigned_supervisor_id,
			fls_supervisor_id, active, lark_open_id, full_name, employee_number,
			duty_station, home_address, certified_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := sqlite.Executor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		id,
		person.Name,
		person.Email,
		person.Role,
		person.PositionTitle,
		nullInt64(person.AssignedSupervisorID),
		nullInt64(person.FLSSupervisorID),
		person.Active,
		person.LarkOpenID,
		person.FullName,
		person.EmployeeNumber,
		person.DutyStation,
		person.HomeAddress,
		nullTime(person.CertifiedAt),
		person.CreatedAt.UTC(),
		person.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create person", zap.String("name", person.Name), zap.Error(err))
		return fmt.Errorf("failed to create person: %w", err)
	}

	newID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	person.ID = newID

	for _, split := range person.CostSplits {
		_, err := exec.ExecContext(ctx,
			`INSERT INTO person_cost_splits (person_id, account_code, percent) VALUES (?, ?, ?)`,
			person.ID, split.AccountCode, split.Percent,
		)
		if err != nil {
			r.logger.Error("Failed to create cost split", zap.Int64("person_id", person.ID), zap.Error(err))
			return fmt.Errorf("failed to create cost split: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a person by ID
func (r *PersonRepository) GetByID(ctx context.Context, id int64) (*entity.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE id = ?`

	person, err := scanPerson(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get person by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get person: %w", err)
	}

	splits, err := r.costSplits(ctx, id)
	if err != nil {
		return nil, err
	}
	person.CostSplits = splits
	return person, nil
}

// ListByRole returns people holding role, ordered by ID
func (r *PersonRepository) ListByRole(ctx context.Context, role entity.Role) ([]*entity.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE role = ? ORDER BY id`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, role)
	if err != nil {
		r.logger.Error("Failed to list people by role", zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	var people []*entity.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// UpdateRelation points the person's relation at supervisorID
func (r *PersonRepository) UpdateRelation(ctx context.Context, personID int64, relation entity.Relation, supervisorID int64) error {
	var column string
	switch relation {
	case entity.RelationAssignedSupervisor:
		column = "assigned_supervisor_id"
	case entity.RelationFLSSupervisor:
		column = "fls_supervisor_id"
	default:
		return fmt.Errorf("unknown relation %q", relation)
	}

	query := `UPDATE people SET ` + column + ` = ?, updated_at = ? WHERE id = ?`
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, supervisorID, time.Now().UTC(), personID)
	if err != nil {
		r.logger.Error("Failed to update relation",
			zap.Int64("person_id", personID),
			zap.String("relation", string(relation)),
			zap.Error(err))
		return fmt.Errorf("failed to update relation: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("person %d not found", personID)
	}
	return nil
}

func (r *PersonRepository) costSplits(ctx context.Context, personID int64) ([]entity.CostSplit, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx,
		`SELECT account_code, percent FROM person_cost_splits WHERE person_id = ? ORDER BY account_code`,
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cost splits: %w", err)
	}
	defer rows.Close()

	var splits []entity.CostSplit
	for rows.Next() {
		var s entity.CostSplit
		if err := rows.Scan(&s.AccountCode, &s.Percent); err != nil {
			return nil, fmt.Errorf("failed to scan cost split: %w", err)
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

func scanPerson(row rowScanner) (*entity.Person, error) {
	var (
		p           entity.Person
		assigned    sql.NullInt64
		fls         sql.NullInt64
		certifiedAt sql.NullTime
	)

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Role,
		&p.PositionTitle,
		&assigned,
		&fls,
		&p.Active,
		&p.LarkOpenID,
		&p.FullName,
		&p.EmployeeNumber,
		&p.DutyStation,
		&p.HomeAddress,
		&certifiedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.AssignedSupervisorID = int64Ptr(assigned)
	p.FLSSupervisorID = int64Ptr(fls)
	p.CertifiedAt = timePtr(certifiedAt)
	return &p, nil
}

var _ port.PersonRepository = (*PersonRepository)(nil)
