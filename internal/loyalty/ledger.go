package loyalty

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidPoints = errors.New("points must be positive")

// DefaultPointsPerRide is the award for one completed ride.
const DefaultPointsPerRide = 15

// Ledger tracks passenger loyalty balances. Credit is keyed on ride id and
// applies at most once per ride, so at-least-once delivery of completion
// events never double-credits. Balances only grow; redemption bookkeeping
// lives elsewhere.
type Ledger interface {
	// Credit returns true when the credit was applied, false when the ride
	// was already credited.
	Credit(ctx context.Context, passengerID, rideID string, points int64) (bool, error)
	Balance(ctx context.Context, passengerID string) (int64, error)
}

// MemoryLedger mirrors the Postgres ledger semantics for tests and
// single-node runs.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	credited map[string]struct{} // ride ids already applied
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64), credited: make(map[string]struct{})}
}

func (l *MemoryLedger) Credit(ctx context.Context, passengerID, rideID string, points int64) (bool, error) {
	if points <= 0 {
		return false, ErrInvalidPoints
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, done := l.credited[rideID]; done {
		return false, nil
	}
	l.credited[rideID] = struct{}{}
	l.balances[passengerID] += points
	return true, nil
}

func (l *MemoryLedger) Balance(ctx context.Context, passengerID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[passengerID], nil
}
