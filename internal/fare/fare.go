package fare

import (
	"errors"
	"math"

	"github.com/example/ride-hailing/internal/models"
)

var ErrInvalidVehicleClass = errors.New("invalid vehicle class")

// rate holds the per-class tariff. Amounts are whole KES, the smallest unit
// billed by the mobile-money gateway.
type rate struct {
	Base  int64
	PerKm int64
}

var rates = map[models.VehicleClass]rate{
	models.VehicleBoda:   {Base: 100, PerKm: 20},
	models.VehicleTuktuk: {Base: 200, PerKm: 30},
	models.VehicleTaxi:   {Base: 400, PerKm: 50},
}

// sharedFactor discounts a ride offered for sharing; both parties pay 60%.
const sharedFactor = 0.6

// Quote returns the fare for a vehicle class and trip distance. It is pure and
// deterministic so the passenger-side estimate and the authoritative
// server-side computation agree. Pass distanceKm <= 0 to charge the base fare
// only.
func Quote(class models.VehicleClass, distanceKm float64) (int64, error) {
	r, ok := rates[class]
	if !ok {
		return 0, ErrInvalidVehicleClass
	}
	total := r.Base
	if distanceKm > 0 {
		total += int64(math.Ceil(distanceKm)) * r.PerKm
	}
	return total, nil
}

// SharedQuote returns the per-passenger fare when the ride is shared,
// rounded half-up.
func SharedQuote(class models.VehicleClass, distanceKm float64) (int64, error) {
	solo, err := Quote(class, distanceKm)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(float64(solo) * sharedFactor)), nil
}
