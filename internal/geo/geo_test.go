package geo

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

func TestIsOnlineHonoursStaleness(t *testing.T) {
	g := NewIndex()
	ctx := context.Background()

	g.Upsert(ctx, models.DriverPresence{DriverID: "fresh", Online: true, Updated: time.Now()})
	g.Upsert(ctx, models.DriverPresence{DriverID: "stale", Online: true, Updated: time.Now().Add(-3 * time.Minute)})
	g.Upsert(ctx, models.DriverPresence{DriverID: "off", Online: false, Updated: time.Now()})

	cases := []struct {
		id   string
		want bool
	}{
		{"fresh", true},
		{"stale", false},
		{"off", false},
		{"unknown", false},
	}
	for _, c := range cases {
		got, err := g.IsOnline(ctx, c.id)
		if err != nil {
			t.Fatalf("%s: %v", c.id, err)
		}
		if got != c.want {
			t.Fatalf("IsOnline(%s) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestSetOnlineRefreshesPresence(t *testing.T) {
	g := NewIndex()
	ctx := context.Background()

	g.Upsert(ctx, models.DriverPresence{DriverID: "d1", Online: true, Updated: time.Now().Add(-3 * time.Minute)})
	if online, _ := g.IsOnline(ctx, "d1"); online {
		t.Fatalf("stale driver reported online")
	}
	g.SetOnline(ctx, "d1", true)
	if online, _ := g.IsOnline(ctx, "d1"); !online {
		t.Fatalf("refreshed driver reported offline")
	}
	g.SetOnline(ctx, "d1", false)
	if online, _ := g.IsOnline(ctx, "d1"); online {
		t.Fatalf("driver still online after going offline")
	}
}

func TestNearbyFiltersAndRanks(t *testing.T) {
	g := NewIndex()
	ctx := context.Background()
	now := time.Now()

	g.Upsert(ctx, models.DriverPresence{DriverID: "close", Loc: models.Coord{Lat: 0.001, Lon: 0}, Online: true, Updated: now})
	g.Upsert(ctx, models.DriverPresence{DriverID: "closer", Loc: models.Coord{Lat: 0.0005, Lon: 0}, Online: true, Updated: now})
	g.Upsert(ctx, models.DriverPresence{DriverID: "far", Loc: models.Coord{Lat: 0.1, Lon: 0}, Online: true, Updated: now})
	g.Upsert(ctx, models.DriverPresence{DriverID: "offline", Loc: models.Coord{Lat: 0, Lon: 0}, Online: false, Updated: now})
	g.Upsert(ctx, models.DriverPresence{DriverID: "stale", Loc: models.Coord{Lat: 0, Lon: 0}, Online: true, Updated: now.Add(-10 * time.Minute)})

	out := g.Nearby(ctx, 0, 0, 2)
	if len(out) != 2 {
		t.Fatalf("got %d drivers, want 2", len(out))
	}
	if out[0].DriverID != "closer" || out[1].DriverID != "close" {
		t.Fatalf("order = %s, %s", out[0].DriverID, out[1].DriverID)
	}
}

func TestHaversine(t *testing.T) {
	// one degree of latitude is about 111.2 km
	d := Haversine(0, 0, 1, 0)
	if math.Abs(d-111195) > 200 {
		t.Fatalf("1 degree lat = %.0f m", d)
	}
	if d := Haversine(-1.2921, 36.8219, -1.2921, 36.8219); d != 0 {
		t.Fatalf("zero distance = %f", d)
	}
}
