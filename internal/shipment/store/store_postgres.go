package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medcourier/internal/platform/postgres"
	"medcourier/internal/shipment/lifecycle"
	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/sentinel"
	txcontext "medcourier/pkg/platform/tx"
)

const shipmentColumns = `
	id, tracking_code, shipper_id, status,
	commodity_description, specimen_category, temperature_kind, temperature_min, temperature_max,
	ready_time, delivery_deadline, access_instructions, driver_instructions, priority, po_number,
	estimated_containers, estimated_weight_kg, declared_value_cents, notes,
	quote_amount_cents, driver_quote_amount_cents, driver_id, vehicle_id,
	pickup_signature, pickup_signature_digest, pickup_signer_name, pickup_signature_unavailable_reason,
	pickup_temperature, pickup_temperature_exception, pickup_recorded_by, pickup_recorded_at,
	delivery_signature, delivery_signature_digest, delivery_signer_name, delivery_signature_unavailable_reason,
	delivery_temperature, delivery_temperature_exception, delivery_recorded_by, delivery_recorded_at,
	created_at, updated_at`

// PostgresShipmentStore persists shipments in PostgreSQL. It joins the
// transaction carried by ctx when there is one.
type PostgresShipmentStore struct {
	db *sql.DB
}

func NewPostgresShipmentStore(db *sql.DB) *PostgresShipmentStore {
	return &PostgresShipmentStore{db: db}
}

func (s *PostgresShipmentStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Executor(ctx, s.db)
}

func (s *PostgresShipmentStore) Create(ctx context.Context, sh *models.Shipment) error {
	query := `INSERT INTO shipments (` + shipmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37, $38, $39, $40, $41)`
	_, err := s.q(ctx).ExecContext(ctx, query, shipmentArgs(sh)...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (s *PostgresShipmentStore) Update(ctx context.Context, sh *models.Shipment) error {
	query := `UPDATE shipments SET
		status = $4,
		commodity_description = $5, specimen_category = $6, temperature_kind = $7,
		temperature_min = $8, temperature_max = $9, ready_time = $10, delivery_deadline = $11,
		access_instructions = $12, driver_instructions = $13, priority = $14, po_number = $15,
		estimated_containers = $16, estimated_weight_kg = $17, declared_value_cents = $18, notes = $19,
		quote_amount_cents = $20, driver_quote_amount_cents = $21, driver_id = $22, vehicle_id = $23,
		pickup_signature = $24, pickup_signature_digest = $25, pickup_signer_name = $26,
		pickup_signature_unavailable_reason = $27, pickup_temperature = $28,
		pickup_temperature_exception = $29, pickup_recorded_by = $30, pickup_recorded_at = $31,
		delivery_signature = $32, delivery_signature_digest = $33, delivery_signer_name = $34,
		delivery_signature_unavailable_reason = $35, delivery_temperature = $36,
		delivery_temperature_exception = $37, delivery_recorded_by = $38, delivery_recorded_at = $39,
		updated_at = $41
		WHERE id = $1 AND tracking_code = $2 AND shipper_id = $3 AND created_at = $40`
	res, err := s.q(ctx).ExecContext(ctx, query, shipmentArgs(sh)...)
	if err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update shipment rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresShipmentStore) FindByID(ctx context.Context, shipmentID id.ShipmentID) (*models.Shipment, error) {
	return s.findOne(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, uuid.UUID(shipmentID))
}

func (s *PostgresShipmentStore) FindByIDForUpdate(ctx context.Context, shipmentID id.ShipmentID) (*models.Shipment, error) {
	return s.findOne(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, uuid.UUID(shipmentID))
}

func (s *PostgresShipmentStore) FindByTrackingCode(ctx context.Context, code id.TrackingCode) (*models.Shipment, error) {
	return s.findOne(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE tracking_code = $1`, string(code))
}

func (s *PostgresShipmentStore) findOne(ctx context.Context, query string, arg any) (*models.Shipment, error) {
	sh, err := scanShipment(s.q(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find shipment: %w", err)
	}
	return sh, nil
}

// FindByIDsForUpdate locks rows in id order so concurrent batches over
// overlapping sets cannot deadlock.
func (s *PostgresShipmentStore) FindByIDsForUpdate(ctx context.Context, ids []id.ShipmentID) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, x := range ids {
		raw[i] = x.String()
	}
	query := `SELECT ` + shipmentColumns + ` FROM shipments
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE`
	rows, err := s.q(ctx).QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("lock shipments: %w", err)
	}
	defer rows.Close()
	return scanShipments(rows)
}

func (s *PostgresShipmentStore) List(ctx context.Context, f ports.Filter) ([]*models.Shipment, error) {
	var (
		where []string
		args  []any
	)
	if f.ShipperID != nil {
		args = append(args, uuid.UUID(*f.ShipperID))
		where = append(where, fmt.Sprintf("shipper_id = $%d", len(args)))
	}
	if f.DriverID != nil {
		args = append(args, uuid.UUID(*f.DriverID))
		where = append(where, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d::text[])", len(args)))
	}
	query := `SELECT ` + shipmentColumns + ` FROM shipments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()
	return scanShipments(rows)
}

func (s *PostgresShipmentStore) Delete(ctx context.Context, shipmentID id.ShipmentID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM shipments WHERE id = $1`, uuid.UUID(shipmentID))
	if err != nil {
		return fmt.Errorf("delete shipment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete shipment rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// CountInCustody counts the driver's PICKED_UP and IN_TRANSIT shipments.
// Inside a transaction it also share-locks the driver's SCHEDULED rows, so a
// pickup in flight either commits before the count reads it or waits for the
// caller's transaction to end.
func (s *PostgresShipmentStore) CountInCustody(ctx context.Context, driverID id.DriverID) (int, error) {
	if _, ok := txcontext.From(ctx); !ok {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM shipments WHERE driver_id = $1 AND status = ANY($2::text[])`,
			uuid.UUID(driverID),
			pq.Array([]string{string(lifecycle.StatusPickedUp), string(lifecycle.StatusInTransit)}),
		).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count shipments in custody: %w", err)
		}
		return n, nil
	}

	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT status FROM shipments WHERE driver_id = $1 AND status = ANY($2::text[]) FOR SHARE`,
		uuid.UUID(driverID),
		pq.Array([]string{
			string(lifecycle.StatusScheduled),
			string(lifecycle.StatusPickedUp),
			string(lifecycle.StatusInTransit),
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("lock shipments in custody: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, fmt.Errorf("scan shipment status: %w", err)
		}
		if lifecycle.Status(status).InCustody() {
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate shipments in custody: %w", err)
	}
	return n, nil
}

func nullableUUID[T ~[16]byte](v *T) *uuid.UUID {
	if v == nil {
		return nil
	}
	u := uuid.UUID(*v)
	return &u
}

func checkpointArgs(c models.Checkpoint) []any {
	return []any{
		c.SignatureBlob,
		c.SignatureDigest,
		c.SignerName,
		c.SignatureUnavailableReason,
		c.Temperature,
		c.TemperatureException,
		c.RecordedBy,
		c.RecordedAt,
	}
}

func shipmentArgs(sh *models.Shipment) []any {
	args := []any{
		uuid.UUID(sh.ID),
		string(sh.TrackingCode),
		uuid.UUID(sh.ShipperID),
		string(sh.Status),
		sh.CommodityDescription,
		string(sh.SpecimenCategory),
		string(sh.TemperatureKind),
		sh.TemperatureMin,
		sh.TemperatureMax,
		sh.ReadyTime,
		sh.DeliveryDeadline,
		sh.AccessInstructions,
		sh.DriverInstructions,
		string(sh.Priority),
		sh.PONumber,
		sh.EstimatedContainers,
		sh.EstimatedWeightKg,
		sh.DeclaredValueCents,
		sh.Notes,
		sh.QuoteAmountCents,
		sh.DriverQuoteAmountCents,
		nullableUUID(sh.DriverID),
		nullableUUID(sh.VehicleID),
	}
	args = append(args, checkpointArgs(sh.Pickup)...)
	args = append(args, checkpointArgs(sh.Delivery)...)
	return append(args, sh.CreatedAt, sh.UpdatedAt)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*models.Shipment, error) {
	var (
		sh                                 models.Shipment
		shipmentID, shipperID              uuid.UUID
		driverID, vehicleID                *uuid.UUID
		code, status, category, kind, prio string
	)
	dest := []any{
		&shipmentID, &code, &shipperID, &status,
		&sh.CommodityDescription, &category, &kind, &sh.TemperatureMin, &sh.TemperatureMax,
		&sh.ReadyTime, &sh.DeliveryDeadline, &sh.AccessInstructions, &sh.DriverInstructions, &prio, &sh.PONumber,
		&sh.EstimatedContainers, &sh.EstimatedWeightKg, &sh.DeclaredValueCents, &sh.Notes,
		&sh.QuoteAmountCents, &sh.DriverQuoteAmountCents, &driverID, &vehicleID,
	}
	dest = append(dest, checkpointDest(&sh.Pickup)...)
	dest = append(dest, checkpointDest(&sh.Delivery)...)
	dest = append(dest, &sh.CreatedAt, &sh.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	sh.ID = id.ShipmentID(shipmentID)
	sh.ShipperID = id.ShipperID(shipperID)
	sh.TrackingCode = id.TrackingCode(code)
	sh.Status = lifecycle.Status(status)
	sh.SpecimenCategory = id.SpecimenCategory(category)
	sh.TemperatureKind = id.TemperatureKind(kind)
	sh.Priority = models.Priority(prio)
	if driverID != nil {
		d := id.DriverID(*driverID)
		sh.DriverID = &d
	}
	if vehicleID != nil {
		v := id.VehicleID(*vehicleID)
		sh.VehicleID = &v
	}
	return &sh, nil
}

func checkpointDest(c *models.Checkpoint) []any {
	return []any{
		&c.SignatureBlob,
		&c.SignatureDigest,
		&c.SignerName,
		&c.SignatureUnavailableReason,
		&c.Temperature,
		&c.TemperatureException,
		&c.RecordedBy,
		&c.RecordedAt,
	}
}

func scanShipments(rows *sql.Rows) ([]*models.Shipment, error) {
	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipments: %w", err)
	}
	return out, nil
}
