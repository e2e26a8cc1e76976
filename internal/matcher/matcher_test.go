package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// fakeGeo returns a fixed candidate set regardless of the query point.
type fakeGeo struct {
	drivers []models.DriverPresence
}

func (f *fakeGeo) Upsert(ctx context.Context, p models.DriverPresence) error { return nil }
func (f *fakeGeo) SetOnline(ctx context.Context, driverID string, online bool) error {
	return nil
}
func (f *fakeGeo) IsOnline(ctx context.Context, driverID string) (bool, error) { return true, nil }
func (f *fakeGeo) Nearby(ctx context.Context, lat, lon float64, limit int) []models.DriverPresence {
	if limit > len(f.drivers) {
		limit = len(f.drivers)
	}
	return f.drivers[:limit]
}

func TestRecipientsRankedByETA(t *testing.T) {
	now := time.Now()
	g := &fakeGeo{drivers: []models.DriverPresence{
		{DriverID: "far", Loc: models.Coord{Lat: 0.01, Lon: 0}, Online: true, Updated: now},
		{DriverID: "near", Loc: models.Coord{Lat: 0.001, Lon: 0}, Online: true, Updated: now},
	}}
	s := &Service{Geo: g, DefaultSpeedMps: 10, TopN: 5}

	out := s.Recipients(context.Background(), models.Coord{Lat: 0, Lon: 0})
	if len(out) != 2 {
		t.Fatalf("got %d candidates", len(out))
	}
	if out[0].DriverID != "near" || out[1].DriverID != "far" {
		t.Fatalf("order = %s, %s", out[0].DriverID, out[1].DriverID)
	}
	if out[0].ETASeconds <= 0 || out[0].ETASeconds >= out[1].ETASeconds {
		t.Fatalf("eta not ascending: %f vs %f", out[0].ETASeconds, out[1].ETASeconds)
	}
	if out[0].DistanceM <= 0 {
		t.Fatalf("distance not annotated: %f", out[0].DistanceM)
	}
}

func TestRecipientsRespectsTopN(t *testing.T) {
	now := time.Now()
	g := &fakeGeo{drivers: []models.DriverPresence{
		{DriverID: "a", Loc: models.Coord{Lat: 0.001, Lon: 0}, Online: true, Updated: now},
		{DriverID: "b", Loc: models.Coord{Lat: 0.002, Lon: 0}, Online: true, Updated: now},
		{DriverID: "c", Loc: models.Coord{Lat: 0.003, Lon: 0}, Online: true, Updated: now},
	}}
	s := &Service{Geo: g, DefaultSpeedMps: 10, TopN: 2}

	if out := s.Recipients(context.Background(), models.Coord{}); len(out) != 2 {
		t.Fatalf("got %d candidates, want 2", len(out))
	}
}
