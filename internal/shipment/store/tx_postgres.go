package store

import (
	"context"
	"database/sql"
	"time"

	"medcourier/internal/platform/postgres"
	"medcourier/internal/shipment/ports"
)

// PostgresTx runs shipment work in one database transaction. The ctx handed
// to the callback carries the *sql.Tx, so the audit outbox and the fleet
// stores join the same transaction.
type PostgresTx struct {
	db      *sql.DB
	stores  ports.Stores
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{
		db: db,
		stores: ports.Stores{
			Shipments: NewPostgresShipmentStore(db),
			Events:    NewPostgresEventStore(db),
		},
		timeout: timeout,
	}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	return postgres.RunInTx(ctx, t.db, t.timeout, func(ctx context.Context) error {
		return fn(ctx, t.stores)
	})
}
