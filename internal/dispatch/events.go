package dispatch

import "github.com/example/ride-hailing/internal/models"

type EventType string

const (
	EventRidePublished EventType = "ride_published"
	EventRideRetracted EventType = "ride_retracted"
	EventRideUpdated   EventType = "ride_updated"
)

// Event is the single message shape delivered on every feed. Published events
// carry the ride plus the pickup distance/ETA computed for the receiving
// driver; retractions carry only the ride id.
type Event struct {
	Type       EventType    `json:"type"`
	RideID     string       `json:"ride_id"`
	Ride       *models.Ride `json:"ride,omitempty"`
	DistanceM  float64      `json:"distance_m,omitempty"`
	ETASeconds float64      `json:"eta_seconds,omitempty"`
}
