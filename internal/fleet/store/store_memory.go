package store

import (
	"context"
	"slices"
	"sync"

	"medcourier/internal/fleet/models"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/sentinel"
)

// InMemoryStore keeps drivers, vehicles and maintenance logs behind one
// lock. It satisfies every fleet store interface.
type InMemoryStore struct {
	mu          sync.RWMutex
	drivers     map[id.DriverID]*models.Driver
	vehicles    map[id.VehicleID]*models.Vehicle
	vehicleSeq  []id.VehicleID
	maintenance map[id.VehicleID][]*models.MaintenanceLog
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		drivers:     make(map[id.DriverID]*models.Driver),
		vehicles:    make(map[id.VehicleID]*models.Vehicle),
		maintenance: make(map[id.VehicleID][]*models.MaintenanceLog),
	}
}

func cloneDriver(d *models.Driver) *models.Driver {
	c := *d
	c.Certifications = slices.Clone(d.Certifications)
	return &c
}

func cloneVehicle(v *models.Vehicle) *models.Vehicle {
	c := *v
	return &c
}

func (s *InMemoryStore) CreateDriver(_ context.Context, d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[d.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.drivers[d.ID] = cloneDriver(d)
	return nil
}

func (s *InMemoryStore) FindDriver(_ context.Context, driverID id.DriverID) (*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[driverID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDriver(d), nil
}

func (s *InMemoryStore) UpdateDriver(_ context.Context, d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.drivers[d.ID] = cloneDriver(d)
	return nil
}

func (s *InMemoryStore) CreateVehicle(_ context.Context, v *models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[v.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.drivers[v.DriverID]; !ok {
		return sentinel.ErrNotFound
	}
	s.vehicles[v.ID] = cloneVehicle(v)
	s.vehicleSeq = append(s.vehicleSeq, v.ID)
	return nil
}

func (s *InMemoryStore) FindVehicle(_ context.Context, vehicleID id.VehicleID) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneVehicle(v), nil
}

// ListVehiclesByDriver returns vehicles in registration order.
func (s *InMemoryStore) ListVehiclesByDriver(_ context.Context, driverID id.DriverID) ([]*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Vehicle
	for _, vid := range s.vehicleSeq {
		if v := s.vehicles[vid]; v.DriverID == driverID {
			out = append(out, cloneVehicle(v))
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateVehicle(_ context.Context, v *models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[v.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.vehicles[v.ID] = cloneVehicle(v)
	return nil
}

func (s *InMemoryStore) AppendMaintenance(_ context.Context, l *models.MaintenanceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[l.VehicleID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *l
	s.maintenance[l.VehicleID] = append(s.maintenance[l.VehicleID], &c)
	return nil
}

// LatestMaintenance returns the most recently performed log of the given type.
func (s *InMemoryStore) LatestMaintenance(_ context.Context, vehicleID id.VehicleID, typ models.MaintenanceType) (*models.MaintenanceLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.MaintenanceLog
	for _, l := range s.maintenance[vehicleID] {
		if l.Type != typ {
			continue
		}
		if latest == nil || l.PerformedAt.After(latest.PerformedAt) {
			latest = l
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	c := *latest
	return &c, nil
}

// ListMaintenance returns a vehicle's logs, newest first.
func (s *InMemoryStore) ListMaintenance(_ context.Context, vehicleID id.VehicleID) ([]*models.MaintenanceLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.maintenance[vehicleID]
	out := make([]*models.MaintenanceLog, 0, len(logs))
	for _, l := range logs {
		c := *l
		out = append(out, &c)
	}
	slices.SortStableFunc(out, func(a, b *models.MaintenanceLog) int {
		return b.PerformedAt.Compare(a.PerformedAt)
	})
	return out, nil
}
