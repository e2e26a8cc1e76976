package lifecycle

import (
	"errors"
	"fmt"

	"github.com/example/ride-hailing/internal/models"
)

var (
	// ErrAlreadyTaken means the caller lost the first-acceptance race.
	// Expected and non-fatal; the driver's feed will have been retracted.
	ErrAlreadyTaken = errors.New("ride already taken")
	// ErrInvalidTransition marks a transition the state machine forbids.
	ErrInvalidTransition = errors.New("invalid ride transition")
	ErrRideNotFound      = errors.New("ride not found")
	ErrActiveRide        = errors.New("passenger already has an active ride")
	ErrInvalidRoute      = errors.New("pickup and dropoff must differ")
	ErrDriverOffline     = errors.New("driver is not online")
	// ErrUpstreamUnavailable wraps persistence failures; the operation must
	// not be assumed to have committed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// InvalidTransitionError carries the observed vs requested state so the UI
// can report exactly which gate was missed. errors.Is matches it against
// ErrInvalidTransition.
type InvalidTransitionError struct {
	Current   models.RideStatus
	Requested models.RideStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid ride transition: %s -> %s", e.Current, e.Requested)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidTransition(current, requested models.RideStatus) error {
	return &InvalidTransitionError{Current: current, Requested: requested}
}

func upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
