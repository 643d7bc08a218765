package store

import (
	"context"
	"sync"

	"medcourier/internal/shift/models"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/sentinel"
)

const shardCount = 32

type shard struct {
	mu       sync.Mutex
	byDriver map[id.DriverID][]*models.Shift
}

// InMemoryStore keeps shifts in per-driver shards. The open-shift check and
// the insert run under one shard lock, so concurrent clock-ins for a driver
// serialize and only the first one succeeds.
type InMemoryStore struct {
	shards [shardCount]*shard
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{byDriver: make(map[id.DriverID][]*models.Shift)}
	}
	return s
}

func (s *InMemoryStore) shardFor(driverID id.DriverID) *shard {
	// ids are random uuids, so the last byte spreads evenly
	return s.shards[int(driverID[len(driverID)-1])%shardCount]
}

func clone(sh *models.Shift) *models.Shift {
	c := *sh
	return &c
}

func (s *InMemoryStore) Create(_ context.Context, sh *models.Shift) error {
	b := s.shardFor(sh.DriverID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.byDriver[sh.DriverID] {
		if existing.IsOpen() {
			return sentinel.ErrAlreadyUsed
		}
	}
	b.byDriver[sh.DriverID] = append(b.byDriver[sh.DriverID], clone(sh))
	return nil
}

func (s *InMemoryStore) FindOpen(_ context.Context, driverID id.DriverID) (*models.Shift, error) {
	b := s.shardFor(driverID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sh := range b.byDriver[driverID] {
		if sh.IsOpen() {
			return clone(sh), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Close persists a closed shift. It fails with ErrInvalidState if the stored
// shift was closed by someone else first.
func (s *InMemoryStore) Close(_ context.Context, sh *models.Shift) error {
	b := s.shardFor(sh.DriverID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.byDriver[sh.DriverID] {
		if existing.ID != sh.ID {
			continue
		}
		if !existing.IsOpen() {
			return sentinel.ErrInvalidState
		}
		b.byDriver[sh.DriverID][i] = clone(sh)
		return nil
	}
	return sentinel.ErrNotFound
}

// ListByDriver returns the newest shifts first.
func (s *InMemoryStore) ListByDriver(_ context.Context, driverID id.DriverID, limit int) ([]*models.Shift, error) {
	b := s.shardFor(driverID)
	b.mu.Lock()
	defer b.mu.Unlock()
	all := b.byDriver[driverID]
	out := make([]*models.Shift, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(all[i]))
	}
	return out, nil
}
