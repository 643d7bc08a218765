package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"medcourier/internal/platform/postgres"
	"medcourier/internal/shift/models"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/sentinel"
	txcontext "medcourier/pkg/platform/tx"
)

// openShiftIndex is the partial unique index allowing one open shift per
// driver. It is the last line against concurrent clock-ins.
const openShiftIndex = "shifts_one_open_per_driver"

const shiftColumns = `id, driver_id, vehicle_id, clock_in, clock_out, total_hours, start_odometer, end_odometer`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Executor(ctx, s.db)
}

func (s *PostgresStore) Create(ctx context.Context, sh *models.Shift) error {
	_, err := s.q(ctx).ExecContext(ctx, `INSERT INTO shifts (`+shiftColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(sh.ID), uuid.UUID(sh.DriverID), nullVehicle(sh.VehicleID), sh.ClockIn,
		sh.ClockOut, sh.TotalHours, nullInt(sh.StartOdometer), nullInt(sh.EndOdometer))
	if err != nil {
		if postgres.IsUniqueViolation(err) && postgres.ConstraintName(err) == openShiftIndex {
			return sentinel.ErrAlreadyUsed
		}
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert shift: %w", err)
	}
	return nil
}

// FindOpen locks the driver's open shift when called inside a transaction.
func (s *PostgresStore) FindOpen(ctx context.Context, driverID id.DriverID) (*models.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE driver_id = $1 AND clock_out IS NULL`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	sh, err := scanShift(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(driverID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find open shift: %w", err)
	}
	return sh, nil
}

func (s *PostgresStore) Close(ctx context.Context, sh *models.Shift) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE shifts SET clock_out = $2, total_hours = $3, end_odometer = $4
		WHERE id = $1 AND clock_out IS NULL`,
		uuid.UUID(sh.ID), sh.ClockOut, sh.TotalHours, nullInt(sh.EndOdometer))
	if err != nil {
		return fmt.Errorf("close shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) ListByDriver(ctx context.Context, driverID id.DriverID, limit int) ([]*models.Shift, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+shiftColumns+`
		FROM shifts WHERE driver_id = $1 ORDER BY clock_in DESC LIMIT $2`, uuid.UUID(driverID), limit)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Shift, 0, limit)
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShift(row scanner) (*models.Shift, error) {
	var (
		sh                 models.Shift
		rawID, rawDriverID uuid.UUID
		rawVehicleID       uuid.NullUUID
		clockOut           sql.NullTime
		hours              sql.NullFloat64
		start, end         sql.NullInt64
	)
	if err := row.Scan(&rawID, &rawDriverID, &rawVehicleID, &sh.ClockIn, &clockOut, &hours, &start, &end); err != nil {
		return nil, err
	}
	sh.ID = id.ShiftID(rawID)
	sh.DriverID = id.DriverID(rawDriverID)
	if rawVehicleID.Valid {
		v := id.VehicleID(rawVehicleID.UUID)
		sh.VehicleID = &v
	}
	if clockOut.Valid {
		t := clockOut.Time
		sh.ClockOut = &t
	}
	if hours.Valid {
		h := hours.Float64
		sh.TotalHours = &h
	}
	sh.StartOdometer = intPtr(start)
	sh.EndOdometer = intPtr(end)
	return &sh, nil
}

func nullVehicle(v *id.VehicleID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
