package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// MemoryStore keeps rides in a mutex-guarded map. The CAS contract is the
// same as the Postgres store's conditional UPDATE; tests and single-node
// deployments rely on it.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateStatusCAS(ctx context.Context, id string, from, to models.RideStatus, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	if driverID != "" {
		r.DriverID = driverID
	}
	r.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) HasActiveRide(ctx context.Context, passengerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.PassengerID == passengerID && !r.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.Status == models.StatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
