package fare

import (
	"errors"
	"testing"

	"github.com/example/ride-hailing/internal/models"
)

func TestQuoteBaseFares(t *testing.T) {
	cases := []struct {
		class models.VehicleClass
		want  int64
	}{
		{models.VehicleBoda, 100},
		{models.VehicleTuktuk, 200},
		{models.VehicleTaxi, 400},
	}
	for _, c := range cases {
		t.Run(string(c.class), func(t *testing.T) {
			got, err := Quote(c.class, 0)
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if got != c.want {
				t.Fatalf("Quote(%s, 0) = %d, want %d", c.class, got, c.want)
			}
		})
	}
}

func TestQuoteDistanceScaling(t *testing.T) {
	// 2.5km rounds up to 3 billable km: 100 + 3*20 = 160.
	got, err := Quote(models.VehicleBoda, 2.5)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got != 160 {
		t.Fatalf("Quote(boda, 2.5) = %d, want 160", got)
	}
}

func TestQuoteUnknownClass(t *testing.T) {
	_, err := Quote(models.VehicleClass("matatu"), 0)
	if !errors.Is(err, ErrInvalidVehicleClass) {
		t.Fatalf("expected ErrInvalidVehicleClass, got %v", err)
	}
}

func TestSharedQuote(t *testing.T) {
	got, err := SharedQuote(models.VehicleTaxi, 0)
	if err != nil {
		t.Fatalf("SharedQuote: %v", err)
	}
	if got != 240 {
		t.Fatalf("SharedQuote(taxi, 0) = %d, want 240", got)
	}
	if _, err := SharedQuote(models.VehicleClass("cart"), 1); !errors.Is(err, ErrInvalidVehicleClass) {
		t.Fatalf("expected ErrInvalidVehicleClass, got %v", err)
	}
}

func TestQuoteDeterministic(t *testing.T) {
	a, _ := Quote(models.VehicleTuktuk, 7.2)
	b, _ := Quote(models.VehicleTuktuk, 7.2)
	if a != b {
		t.Fatalf("Quote not deterministic: %d vs %d", a, b)
	}
}
