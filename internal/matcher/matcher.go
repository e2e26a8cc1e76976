package matcher

import (
	"context"
	"sort"

	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/eta"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
)

// Service selects which online drivers receive a pending-ride publish.
// Dispatch itself is first-acceptance-wins; this is only the fan-out policy:
// nearest fresh drivers ranked by ETA to the pickup point. Leave the service
// out of the notifier entirely to broadcast to everyone.
type Service struct {
	Geo             geo.Geo
	DefaultSpeedMps float64
	TopN            int
	ETAClient       eta.Client // optional OSRM client
	ETACache        *eta.Cache // optional ETA cache
}

func (s *Service) Recipients(ctx context.Context, pickup models.Coord) []dispatch.Candidate {
	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}
	cands := s.Geo.Nearby(ctx, pickup.Lat, pickup.Lon, topN)
	out := make([]dispatch.Candidate, 0, len(cands))
	for _, d := range cands {
		out = append(out, dispatch.Candidate{
			DriverID:   d.DriverID,
			DistanceM:  geo.Haversine(d.Loc.Lat, d.Loc.Lon, pickup.Lat, pickup.Lon),
			ETASeconds: s.estimate(d.Loc, pickup),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ETASeconds < out[j].ETASeconds })
	return out
}

func (s *Service) estimate(from, to models.Coord) float64 {
	if s.ETACache != nil {
		if v, ok := s.ETACache.Get(from, to); ok {
			return v
		}
	}
	if s.ETAClient != nil {
		if v, err := s.ETAClient.EstimateSeconds(from, to); err == nil {
			if s.ETACache != nil {
				s.ETACache.Set(from, to, v)
			}
			return v
		}
	}
	return eta.EstimateSeconds(from, to, s.DefaultSpeedMps)
}
