package geo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// Geo is the driver presence index consumed by dispatch selection and the
// lifecycle accept guard. Positions are last-writer-wins snapshots; presence
// that has not been refreshed within the staleness horizon is treated as
// offline rather than as an error.
type Geo interface {
	Upsert(ctx context.Context, p models.DriverPresence) error
	SetOnline(ctx context.Context, driverID string, online bool) error
	IsOnline(ctx context.Context, driverID string) (bool, error)
	Nearby(ctx context.Context, lat, lon float64, limit int) []models.DriverPresence
}

// DefaultStaleAfter is how long a presence report stays trustworthy.
const DefaultStaleAfter = 2 * time.Minute

type Index struct {
	mu         sync.RWMutex
	drivers    map[string]models.DriverPresence
	staleAfter time.Duration
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.DriverPresence), staleAfter: DefaultStaleAfter}
}

func (g *Index) Upsert(ctx context.Context, p models.DriverPresence) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Updated.IsZero() {
		p.Updated = time.Now()
	}
	g.drivers[p.DriverID] = p
	return nil
}

func (g *Index) SetOnline(ctx context.Context, driverID string, online bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.drivers[driverID]
	p.DriverID = driverID
	p.Online = online
	p.Updated = time.Now()
	g.drivers[driverID] = p
	return nil
}

func (g *Index) IsOnline(ctx context.Context, driverID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.drivers[driverID]
	if !ok {
		return false, nil
	}
	return p.Online && time.Since(p.Updated) <= g.staleAfter, nil
}

// naive scan; in prod use geo-hash or the Redis index
func (g *Index) Nearby(ctx context.Context, lat, lon float64, limit int) []models.DriverPresence {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		p    models.DriverPresence
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, p := range g.drivers {
		if !p.Online || time.Since(p.Updated) > g.staleAfter {
			continue
		}
		dist := Haversine(lat, lon, p.Loc.Lat, p.Loc.Lon)
		arr = append(arr, pair{p, dist})
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.DriverPresence, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].p)
	}
	return out
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
