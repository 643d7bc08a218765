package audit

import "context"

// Store persists audit events. Postgres implementations write to the outbox
// and join the caller's transaction when one is in the context.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectType, subjectID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
