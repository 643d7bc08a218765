package store

import (
	"context"
	"sync"
	"time"

	"medcourier/internal/shipment/ports"
	dErrors "medcourier/pkg/domain-errors"
)

// defaultTxTimeout is the maximum duration for a shipment transaction.
const defaultTxTimeout = 5 * time.Second

// InMemoryTx serializes transactions with one coarse lock. Bulk assignment
// touches many shipments at once, so per-key shards would not give it
// isolation. Services validate everything before their first write, so a
// failed callback leaves nothing behind.
type InMemoryTx struct {
	mu      sync.Mutex
	stores  ports.Stores
	timeout time.Duration
}

func NewInMemoryTx(shipments ports.ShipmentStore, events ports.EventStore) *InMemoryTx {
	return &InMemoryTx{stores: ports.Stores{Shipments: shipments, Events: events}}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.stores)
}
