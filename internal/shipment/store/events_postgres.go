package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medcourier/internal/shipment/lifecycle"
	"medcourier/internal/shipment/models"
	id "medcourier/pkg/domain"
	txcontext "medcourier/pkg/platform/tx"
)

// TrackingTopic receives every tracking event through the outbox.
const TrackingTopic = "medcourier.tracking"

// PostgresEventStore appends tracking events and their outbox entries in the
// caller's transaction.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (s *PostgresEventStore) Append(ctx context.Context, e *models.TrackingEvent) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal tracking metadata: %w", err)
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal tracking event: %w", err)
	}

	q := txcontext.Executor(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO tracking_events (id, shipment_id, type, from_status, to_status, actor_id, note, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(e.ID),
		uuid.UUID(e.ShipmentID),
		string(e.Type),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorID,
		e.Note,
		metadata,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tracking event: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO outbox (id, topic, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, 'shipment', $3, $4, $5, $6)
	`,
		uuid.New(),
		TrackingTopic,
		e.ShipmentID.String(),
		string(e.Type),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert tracking outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) ListByShipment(ctx context.Context, shipmentID id.ShipmentID) ([]*models.TrackingEvent, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, shipment_id, type, from_status, to_status, actor_id, note, metadata, created_at
		FROM tracking_events
		WHERE shipment_id = $1
		ORDER BY created_at, seq
	`, uuid.UUID(shipmentID))
	if err != nil {
		return nil, fmt.Errorf("query tracking events: %w", err)
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var (
			e             models.TrackingEvent
			eventID, sid  uuid.UUID
			typ, from, to string
			metadata      []byte
		)
		if err := rows.Scan(&eventID, &sid, &typ, &from, &to, &e.ActorID, &e.Note, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tracking event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.ShipmentID = id.ShipmentID(sid)
		e.Type = models.EventType(typ)
		e.FromStatus = lifecycle.Status(from)
		e.ToStatus = lifecycle.Status(to)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode tracking metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking events: %w", err)
	}
	return out, nil
}
