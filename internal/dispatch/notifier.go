package dispatch

import (
	"context"
	"log/slog"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
)

// Candidate is an eligible recipient for a pending-ride publish, annotated
// with its distance and ETA to the pickup point.
type Candidate struct {
	DriverID   string
	DistanceM  float64
	ETASeconds float64
}

// RecipientSelector narrows the publish fan-out; nearby-only filtering is a
// policy knob, not a correctness requirement, so a nil selector means
// broadcast to every connected driver.
type RecipientSelector interface {
	Recipients(ctx context.Context, pickup models.Coord) []Candidate
}

// PushSender is the out-of-band fallback for drivers without a live feed
// session (e.g. FCM data messages).
type PushSender interface {
	Offer(rideID string, payload any) error
}

// Notifier fans newly pending rides out to driver feeds and retracts them
// once the lifecycle engine has committed an accept or cancel. Callers must
// only invoke Retract after the store CAS commits, which keeps the per-ride
// publish-before-retract ordering.
type Notifier struct {
	reg      *Registry
	selector RecipientSelector
	push     PushSender
	logger   *slog.Logger
}

func NewNotifier(reg *Registry, selector RecipientSelector, push PushSender, logger *slog.Logger) *Notifier {
	return &Notifier{reg: reg, selector: selector, push: push, logger: logger}
}

// Registry exposes the underlying feed registry for transport handlers.
func (n *Notifier) Registry() *Registry { return n.reg }

// PublishPending offers a pending ride to eligible online drivers.
// Delivery is at-most-once and unacknowledged; a driver that misses the
// publish simply never sees the ride.
func (n *Notifier) PublishPending(ctx context.Context, ride *models.Ride) {
	if n.selector == nil {
		n.reg.BroadcastDrivers(Event{Type: EventRidePublished, RideID: ride.ID, Ride: ride})
		observability.RidesPublished.Inc()
		return
	}
	cands := n.selector.Recipients(ctx, ride.Pickup)
	for _, c := range cands {
		ev := Event{
			Type:       EventRidePublished,
			RideID:     ride.ID,
			Ride:       ride,
			DistanceM:  c.DistanceM,
			ETASeconds: c.ETASeconds,
		}
		if !n.reg.SendToDriver(c.DriverID, ev) && n.push != nil {
			if err := n.push.Offer(ride.ID, ev); err != nil {
				n.logger.Warn("push offer failed", "ride_id", ride.ID, "driver_id", c.DriverID, "error", err)
			}
		}
	}
	observability.RidesPublished.Inc()
}

// Retract withdraws a ride from every driver feed. Retraction always goes to
// all feeds, regardless of how the publish was filtered, so every driver that
// received the offer also receives the withdrawal. Retracting a ride that was
// never published (or already retracted) is a no-op for the receivers.
func (n *Notifier) Retract(ctx context.Context, rideID string) {
	n.reg.BroadcastDrivers(Event{Type: EventRideRetracted, RideID: rideID})
	observability.RidesRetracted.Inc()
}

// RideUpdated notifies watchers of one ride about a committed transition.
func (n *Notifier) RideUpdated(ctx context.Context, ride *models.Ride) {
	n.reg.NotifyRide(ride.ID, Event{Type: EventRideUpdated, RideID: ride.ID, Ride: ride})
}
