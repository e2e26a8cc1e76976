package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/storage"
)

// Notifier is the dispatch fan-out the engine drives. Publish happens after a
// ride is persisted as pending; Retract only after a CAS commit removed it
// from contention, which preserves per-ride publish-before-retract ordering.
type Notifier interface {
	PublishPending(ctx context.Context, ride *models.Ride)
	Retract(ctx context.Context, rideID string)
	RideUpdated(ctx context.Context, ride *models.Ride)
}

// Presence answers whether a driver is currently online.
type Presence interface {
	IsOnline(ctx context.Context, driverID string) (bool, error)
}

// Ledger credits loyalty points at most once per ride id.
type Ledger interface {
	Credit(ctx context.Context, passengerID, rideID string, points int64) (bool, error)
}

// Engine is the single implementation of the ride state machine:
// pending -> accepted -> ongoing -> completed, with cancellation allowed from
// any non-terminal state. Every transition after creation goes through the
// store's conditional update, so concurrent actors resolve to exactly one
// winner without a read-then-write race.
type Engine struct {
	Store         storage.RideStore
	Notifier      Notifier
	Presence      Presence
	Loyalty       Ledger
	PointsPerRide int64
	Logger        *slog.Logger
}

// Request validates and persists a new ride in pending state and publishes it
// to the dispatch feeds. The fare is computed here, once, and never
// recomputed.
func (e *Engine) Request(ctx context.Context, req models.RideRequest) (*models.Ride, error) {
	if req.Pickup == req.Dropoff {
		return nil, ErrInvalidRoute
	}
	active, err := e.Store.HasActiveRide(ctx, req.PassengerID)
	if err != nil {
		return nil, upstream(err)
	}
	if active {
		return nil, ErrActiveRide
	}

	distanceKm := geo.Haversine(req.Pickup.Lat, req.Pickup.Lon, req.Dropoff.Lat, req.Dropoff.Lon) / 1000.0
	quote := fare.Quote
	if req.Shared {
		quote = fare.SharedQuote
	}
	amount, err := quote(req.VehicleClass, distanceKm)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ride := &models.Ride{
		ID:           uuid.NewString(),
		PassengerID:  req.PassengerID,
		VehicleClass: req.VehicleClass,
		Pickup:       req.Pickup,
		Dropoff:      req.Dropoff,
		Fare:         amount,
		Shared:       req.Shared,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Store.CreateRide(ctx, ride); err != nil {
		return nil, upstream(err)
	}
	observability.RidesCreated.Inc()
	e.Notifier.PublishPending(ctx, ride)
	e.Logger.Info("ride requested",
		"ride_id", ride.ID, "passenger_id", ride.PassengerID,
		"class", ride.VehicleClass, "fare", ride.Fare)
	return ride, nil
}

// Accept binds a driver to a pending ride. First acceptance wins: the store
// CAS commits for exactly one caller and everyone else gets ErrAlreadyTaken.
func (e *Engine) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	if e.Presence != nil {
		online, err := e.Presence.IsOnline(ctx, driverID)
		if err != nil {
			return nil, upstream(err)
		}
		if !online {
			return nil, ErrDriverOffline
		}
	}

	ok, err := e.Store.UpdateStatusCAS(ctx, rideID, models.StatusPending, models.StatusAccepted, driverID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, upstream(err)
	}
	if !ok {
		observability.AcceptConflicts.Inc()
		return nil, ErrAlreadyTaken
	}

	ride, err := e.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, upstream(err)
	}
	observability.RidesAccepted.Inc()
	e.Notifier.Retract(ctx, rideID)
	e.Notifier.RideUpdated(ctx, ride)
	e.Logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	return ride, nil
}

// Start moves an accepted ride to ongoing. Only the bound driver may start.
func (e *Engine) Start(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	ride, err := e.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, invalidTransition(ride.Status, models.StatusOngoing)
	}
	return e.transition(ctx, ride, models.StatusAccepted, models.StatusOngoing)
}

// Complete finishes an ongoing ride and credits the passenger's loyalty
// balance. The credit is keyed on ride id, so redelivered completion events
// never double-credit.
func (e *Engine) Complete(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	ride, err := e.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, invalidTransition(ride.Status, models.StatusCompleted)
	}
	done, err := e.transition(ctx, ride, models.StatusOngoing, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	observability.RidesCompleted.Inc()
	if e.Loyalty != nil {
		credited, err := e.Loyalty.Credit(ctx, done.PassengerID, done.ID, e.PointsPerRide)
		if err != nil {
			// The ride is completed; the credit can be replayed safely.
			e.Logger.Error("loyalty credit failed", "ride_id", done.ID, "error", err)
		} else if credited {
			observability.LoyaltyPointsCredited.Add(float64(e.PointsPerRide))
		}
	}
	return done, nil
}

// Cancel tears a ride down before completion. A pending ride may only be
// cancelled by its passenger; once a driver is bound, either party may
// cancel. A cancel racing an accept is settled by the same CAS guard, and the
// loser must not retry.
func (e *Engine) Cancel(ctx context.Context, rideID, actorID string) (*models.Ride, error) {
	ride, err := e.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	switch ride.Status {
	case models.StatusPending:
		if actorID != ride.PassengerID {
			return nil, invalidTransition(ride.Status, models.StatusCancelled)
		}
	case models.StatusAccepted, models.StatusOngoing:
		if actorID != ride.PassengerID && actorID != ride.DriverID {
			return nil, invalidTransition(ride.Status, models.StatusCancelled)
		}
	default:
		return nil, invalidTransition(ride.Status, models.StatusCancelled)
	}

	wasPending := ride.Status == models.StatusPending
	cancelled, err := e.transition(ctx, ride, ride.Status, models.StatusCancelled)
	if err != nil {
		return nil, err
	}
	observability.RidesCancelled.Inc()
	if wasPending {
		e.Notifier.Retract(ctx, rideID)
	}
	e.Logger.Info("ride cancelled", "ride_id", rideID, "actor_id", actorID, "was_pending", wasPending)
	return cancelled, nil
}

// Get fetches a ride by id.
func (e *Engine) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	return e.getRide(ctx, rideID)
}

// ListPending returns the dispatchable backlog, oldest first. Driver feeds
// replay it on connect so offers published before the session opened are not
// lost.
func (e *Engine) ListPending(ctx context.Context) ([]*models.Ride, error) {
	rides, err := e.Store.ListPending(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	return rides, nil
}

func (e *Engine) getRide(ctx context.Context, rideID string) (*models.Ride, error) {
	ride, err := e.Store.GetRide(ctx, rideID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, upstream(err)
	}
	return ride, nil
}

// transition applies one CAS edge and notifies ride watchers. A failed CAS
// means some concurrent actor moved the ride first; the caller gets the
// freshly observed state in the error.
func (e *Engine) transition(ctx context.Context, ride *models.Ride, from, to models.RideStatus) (*models.Ride, error) {
	if ride.Status != from {
		return nil, invalidTransition(ride.Status, to)
	}
	ok, err := e.Store.UpdateStatusCAS(ctx, ride.ID, from, to, "")
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, upstream(err)
	}
	if !ok {
		current, err := e.getRide(ctx, ride.ID)
		if err != nil {
			return nil, err
		}
		return nil, invalidTransition(current.Status, to)
	}
	updated, err := e.getRide(ctx, ride.ID)
	if err != nil {
		return nil, err
	}
	e.Notifier.RideUpdated(ctx, updated)
	return updated, nil
}
