// Package compliance writes regulatory audit events with fail-closed semantics.
//
// Emit appends to the audit store synchronously. Postgres stores join the
// caller's transaction, so the event commits or rolls back with the custody
// or assignment change it describes. A failed write fails the operation.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "medcourier/pkg/platform/audit"
	"medcourier/pkg/requestcontext"
)

// Publisher emits compliance events.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and persists event. Request id, actor and timestamp missing
// from the event are taken from ctx. Actions outside the compliance category
// are refused so security noise never lands in the regulatory trail.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	if event.SubjectID == "" {
		return fmt.Errorf("compliance event requires SubjectID")
	}
	if event.Action == "" {
		return fmt.Errorf("compliance event requires Action")
	}
	if cat := event.Action.Category(); cat != audit.CategoryCompliance {
		return fmt.Errorf("action %q is a %s event, not compliance", event.Action, cat)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Actor(ctx).ID
	}

	start := time.Now()
	if err := p.store.Append(ctx, event.ToEvent()); err != nil {
		p.metrics.observe(event.Action, false, time.Since(start))
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "compliance audit write failed",
				"request_id", event.RequestID,
				"action", event.Action,
				"subject_type", event.SubjectType,
				"subject_id", event.SubjectID,
				"error", err,
			)
		}
		return fmt.Errorf("persist compliance event %s: %w", event.Action, err)
	}
	p.metrics.observe(event.Action, true, time.Since(start))
	return nil
}
