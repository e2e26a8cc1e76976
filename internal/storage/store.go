package storage

import (
	"context"
	"errors"

	"github.com/example/ride-hailing/internal/models"
)

var ErrNotFound = errors.New("ride not found")

// RideStore defines persistence operations for rides. UpdateStatusCAS is the
// only mutation allowed after creation: a conditional update that commits only
// if the ride is still in the expected state, so concurrent accept/cancel
// races resolve to exactly one winner.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	// UpdateStatusCAS transitions id from->to, binding driverID when non-empty.
	// Returns false (and no error) when the ride was no longer in `from`.
	UpdateStatusCAS(ctx context.Context, id string, from, to models.RideStatus, driverID string) (bool, error)
	// HasActiveRide reports whether the passenger has a ride in a
	// non-terminal state.
	HasActiveRide(ctx context.Context, passengerID string) (bool, error)
	// ListPending returns rides still waiting for a driver, oldest first.
	ListPending(ctx context.Context) ([]*models.Ride, error)
}
