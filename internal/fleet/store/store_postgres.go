package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medcourier/internal/fleet/models"
	"medcourier/internal/platform/postgres"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/sentinel"
	txcontext "medcourier/pkg/platform/tx"
)

// PostgresStore persists fleet records. It joins the transaction carried by
// ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Executor(ctx, s.db)
}

func certStrings(certs []id.Certification) []string {
	out := make([]string, len(certs))
	for i, c := range certs {
		out[i] = string(c)
	}
	return out
}

func (s *PostgresStore) CreateDriver(ctx context.Context, d *models.Driver) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO drivers (id, name, opted_out_of_assignments, certifications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(d.ID), d.Name, d.OptedOutOfAssignments, pq.Array(certStrings(d.Certifications)), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindDriver(ctx context.Context, driverID id.DriverID) (*models.Driver, error) {
	var (
		rawID uuid.UUID
		certs []string
		d     models.Driver
	)
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, name, opted_out_of_assignments, certifications, created_at, updated_at
		FROM drivers WHERE id = $1`, uuid.UUID(driverID)).
		Scan(&rawID, &d.Name, &d.OptedOutOfAssignments, pq.Array(&certs), &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find driver: %w", err)
	}
	d.ID = id.DriverID(rawID)
	for _, c := range certs {
		d.Certifications = append(d.Certifications, id.Certification(c))
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDriver(ctx context.Context, d *models.Driver) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE drivers SET name = $2, opted_out_of_assignments = $3, certifications = $4, updated_at = $5
		WHERE id = $1`,
		uuid.UUID(d.ID), d.Name, d.OptedOutOfAssignments, pq.Array(certStrings(d.Certifications)), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update driver: %w", err)
	}
	return requireRow(res)
}

const vehicleColumns = `id, driver_id, plate, is_active, registration_expiry_date,
	current_odometer, refrigeration_capable, created_at, updated_at`

func (s *PostgresStore) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	_, err := s.q(ctx).ExecContext(ctx, `INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(v.ID), uuid.UUID(v.DriverID), v.Plate, v.IsActive, nullTime(v.RegistrationExpiryDate),
		v.CurrentOdometer, v.RefrigerationCapable, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindVehicle(ctx context.Context, vehicleID id.VehicleID) (*models.Vehicle, error) {
	v, err := scanVehicle(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, uuid.UUID(vehicleID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find vehicle: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVehiclesByDriver(ctx context.Context, driverID id.DriverID) ([]*models.Vehicle, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE driver_id = $1 ORDER BY created_at, id`, uuid.UUID(driverID))
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var out []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateVehicle(ctx context.Context, v *models.Vehicle) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE vehicles SET plate = $2, is_active = $3, registration_expiry_date = $4,
			current_odometer = $5, refrigeration_capable = $6, updated_at = $7
		WHERE id = $1`,
		uuid.UUID(v.ID), v.Plate, v.IsActive, nullTime(v.RegistrationExpiryDate),
		v.CurrentOdometer, v.RefrigerationCapable, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	return requireRow(res)
}

const maintenanceColumns = `id, vehicle_id, type, odometer, cost_cents, notes, performed_at, created_at`

func (s *PostgresStore) AppendMaintenance(ctx context.Context, l *models.MaintenanceLog) error {
	var cost sql.NullInt64
	if l.CostCents != nil {
		cost = sql.NullInt64{Int64: *l.CostCents, Valid: true}
	}
	_, err := s.q(ctx).ExecContext(ctx, `INSERT INTO maintenance_logs (`+maintenanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(l.ID), uuid.UUID(l.VehicleID), string(l.Type), l.Odometer, cost, l.Notes, l.PerformedAt, l.CreatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert maintenance log: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestMaintenance(ctx context.Context, vehicleID id.VehicleID, typ models.MaintenanceType) (*models.MaintenanceLog, error) {
	l, err := scanMaintenance(s.q(ctx).QueryRowContext(ctx, `SELECT `+maintenanceColumns+`
		FROM maintenance_logs WHERE vehicle_id = $1 AND type = $2
		ORDER BY performed_at DESC LIMIT 1`, uuid.UUID(vehicleID), string(typ)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest maintenance: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) ListMaintenance(ctx context.Context, vehicleID id.VehicleID) ([]*models.MaintenanceLog, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+maintenanceColumns+`
		FROM maintenance_logs WHERE vehicle_id = $1 ORDER BY performed_at DESC`, uuid.UUID(vehicleID))
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	defer rows.Close()

	var out []*models.MaintenanceLog
	for rows.Next() {
		l, err := scanMaintenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan maintenance log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row scanner) (*models.Vehicle, error) {
	var (
		v                  models.Vehicle
		rawID, rawDriverID uuid.UUID
		expiry             sql.NullTime
	)
	if err := row.Scan(&rawID, &rawDriverID, &v.Plate, &v.IsActive, &expiry,
		&v.CurrentOdometer, &v.RefrigerationCapable, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.ID = id.VehicleID(rawID)
	v.DriverID = id.DriverID(rawDriverID)
	if expiry.Valid {
		t := expiry.Time
		v.RegistrationExpiryDate = &t
	}
	return &v, nil
}

func scanMaintenance(row scanner) (*models.MaintenanceLog, error) {
	var (
		l                   models.MaintenanceLog
		rawID, rawVehicleID uuid.UUID
		typ                 string
		cost                sql.NullInt64
	)
	if err := row.Scan(&rawID, &rawVehicleID, &typ, &l.Odometer, &cost, &l.Notes, &l.PerformedAt, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.ID = id.MaintenanceLogID(rawID)
	l.VehicleID = id.VehicleID(rawVehicleID)
	l.Type = models.MaintenanceType(typ)
	if cost.Valid {
		c := cost.Int64
		l.CostCents = &c
	}
	return &l, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
