package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VehicleClass is the product tier a passenger books.
type VehicleClass string

const (
	VehicleBoda   VehicleClass = "boda"   // two-wheeler
	VehicleTuktuk VehicleClass = "tuktuk" // three-wheeler
	VehicleTaxi   VehicleClass = "taxi"   // car
)

type RideStatus string

const (
	StatusPending   RideStatus = "pending"
	StatusAccepted  RideStatus = "accepted"
	StatusOngoing   RideStatus = "ongoing"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

// Terminal reports whether no further transition may leave s.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Ride struct {
	ID           string       `json:"id"`
	PassengerID  string       `json:"passenger_id"`
	DriverID     string       `json:"driver_id,omitempty"` // empty until accepted
	VehicleClass VehicleClass `json:"vehicle_class"`
	Pickup       Coord        `json:"pickup"`
	Dropoff      Coord        `json:"dropoff"`
	Fare         int64        `json:"fare"` // smallest currency unit (KES)
	Shared       bool         `json:"shared"`
	Status       RideStatus   `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DriverPresence is the latest known state of a driver; last-writer-wins,
// no history kept. A stale Updated value is a freshness signal, not an error.
type DriverPresence struct {
	DriverID string    `json:"driver_id"`
	Loc      Coord     `json:"loc"`
	Online   bool      `json:"online"`
	Updated  time.Time `json:"updated"`
}

type LoyaltyAccount struct {
	PassengerID string `json:"passenger_id"`
	Points      int64  `json:"points"`
}

type RideRequest struct {
	PassengerID  string       `json:"passenger_id"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	Pickup       Coord        `json:"pickup"`
	Dropoff      Coord        `json:"dropoff"`
	Shared       bool         `json:"shared"`
}
