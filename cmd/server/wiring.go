package main

import (
	"context"
	"database/sql"
	"log/slog"

	assignmenthandler "medcourier/internal/assignment/handler"
	assignmentmetrics "medcourier/internal/assignment/metrics"
	assignmentservice "medcourier/internal/assignment/service"
	"medcourier/internal/compliance"
	"medcourier/internal/eligibility"
	fleethandler "medcourier/internal/fleet/handler"
	fleetmetrics "medcourier/internal/fleet/metrics"
	fleetservice "medcourier/internal/fleet/service"
	fleetstore "medcourier/internal/fleet/store"
	"medcourier/internal/platform/config"
	"medcourier/internal/platform/postgres"
	platformredis "medcourier/internal/platform/redis"
	shifthandler "medcourier/internal/shift/handler"
	shiftmetrics "medcourier/internal/shift/metrics"
	shiftservice "medcourier/internal/shift/service"
	shiftstore "medcourier/internal/shift/store"
	shipmenthandler "medcourier/internal/shipment/handler"
	shipmentmetrics "medcourier/internal/shipment/metrics"
	"medcourier/internal/shipment/ports"
	shipmentservice "medcourier/internal/shipment/service"
	shipmentstore "medcourier/internal/shipment/store"
	"medcourier/pkg/platform/audit"
	compliancepub "medcourier/pkg/platform/audit/publishers/compliance"
	securitypub "medcourier/pkg/platform/audit/publishers/security"
	auditmemory "medcourier/pkg/platform/audit/store/memory"
	auditpostgres "medcourier/pkg/platform/audit/store/postgres"
)

// backends is the persistence layer: Postgres when a database is configured,
// in-memory stores otherwise.
type backends struct {
	shipments ports.ShipmentStore
	events    ports.EventStore
	tx        ports.Tx
	fleet     fleetservice.Store
	shifts    shiftservice.Store
	audit     audit.Store
	runInTx   func(ctx context.Context, fn func(ctx context.Context) error) error
}

func newPostgresBackends(db *sql.DB) *backends {
	return &backends{
		shipments: shipmentstore.NewPostgresShipmentStore(db),
		events:    shipmentstore.NewPostgresEventStore(db),
		tx:        shipmentstore.NewPostgresTx(db, 0),
		fleet:     fleetstore.NewPostgresStore(db),
		shifts:    shiftstore.NewPostgresStore(db),
		audit:     auditpostgres.New(db),
		runInTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return postgres.RunInTx(ctx, db, 0, fn)
		},
	}
}

func newMemoryBackends() *backends {
	shipments := shipmentstore.NewInMemoryShipmentStore()
	events := shipmentstore.NewInMemoryEventStore()
	return &backends{
		shipments: shipments,
		events:    events,
		tx:        shipmentstore.NewInMemoryTx(shipments, events),
		fleet:     fleetstore.NewInMemoryStore(),
		shifts:    shiftstore.NewInMemoryStore(),
		audit:     auditmemory.NewInMemoryStore(),
		runInTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
	}
}

// application holds the HTTP handlers and the resources main must close.
type application struct {
	shipments   *shipmenthandler.Handler
	fleet       *fleethandler.Handler
	assignments *assignmenthandler.Handler
	shifts      *shifthandler.Handler
	security    *securitypub.Publisher
}

func newApplication(cfg config.Config, log *slog.Logger, b *backends, redis *platformredis.Client) *application {
	complianceAudit := compliancepub.New(b.audit,
		compliancepub.WithLogger(log),
		compliancepub.WithMetrics(compliancepub.NewMetrics()),
	)
	securityAudit := securitypub.New(b.audit, securitypub.WithLogger(log))
	evaluator := compliance.NewEvaluator(cfg.Compliance)

	shipments := shipmentservice.New(b.shipments, b.events, b.tx,
		shipmentservice.WithLogger(log),
		shipmentservice.WithMetrics(shipmentmetrics.New()),
		shipmentservice.WithAuditPublisher(complianceAudit),
		shipmentservice.WithSecurityPublisher(securityAudit),
	)
	fleet := fleetservice.New(b.fleet,
		fleetservice.WithLogger(log),
		fleetservice.WithMetrics(fleetmetrics.New()),
		fleetservice.WithAuditPublisher(complianceAudit),
		fleetservice.WithTxRunner(b.runInTx),
		fleetservice.WithEvaluator(evaluator),
	)
	assignments := assignmentservice.New(b.tx, fleet,
		assignmentservice.WithLogger(log),
		assignmentservice.WithMetrics(assignmentmetrics.New()),
		assignmentservice.WithAuditPublisher(complianceAudit),
		assignmentservice.WithChecker(eligibility.NewChecker(evaluator)),
	)
	shiftOpts := []shiftservice.Option{
		shiftservice.WithLogger(log),
		shiftservice.WithMetrics(shiftmetrics.New()),
		shiftservice.WithSecurityPublisher(securityAudit),
		shiftservice.WithTxRunner(b.runInTx),
		shiftservice.WithLockTTL(cfg.Redis.ClockInLockTTL),
	}
	if redis != nil {
		shiftOpts = append(shiftOpts, shiftservice.WithLocker(platformredis.NewLocker(redis.Client, redisLockKeyspace)))
	}
	shifts := shiftservice.New(b.shifts, b.shipments, fleet, shiftOpts...)

	return &application{
		shipments:   shipmenthandler.New(shipments, log),
		fleet:       fleethandler.New(fleet, log),
		assignments: assignmenthandler.New(assignments, log),
		shifts:      shifthandler.New(shifts, log),
		security:    securityAudit,
	}
}
