package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands plus a per-driver meta
// hash for the online flag and report time. This is the shared index the API
// and the Kafka consumer both write to.
type RedisGeo struct {
	client     *redis.Client
	key        string
	staleAfter time.Duration
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key, staleAfter: DefaultStaleAfter}
}

// NewRedisGeoWithClient wires an existing client (used by the consumer).
func NewRedisGeoWithClient(c *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: c, key: key, staleAfter: DefaultStaleAfter}
}

func (r *RedisGeo) Upsert(ctx context.Context, p models.DriverPresence) error {
	if p.Updated.IsZero() {
		p.Updated = time.Now()
	}
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: p.Loc.Lon,
		Latitude:  p.Loc.Lat,
		Name:      p.DriverID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(p.DriverID), map[string]interface{}{
		"online":  strconv.FormatBool(p.Online),
		"updated": p.Updated.UTC().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) SetOnline(ctx context.Context, driverID string, online bool) error {
	return r.client.HSet(ctx, metaKey(driverID), map[string]interface{}{
		"online":  strconv.FormatBool(online),
		"updated": time.Now().UTC().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) IsOnline(ctx context.Context, driverID string) (bool, error) {
	m, err := r.client.HGetAll(ctx, metaKey(driverID)).Result()
	if err != nil {
		return false, err
	}
	return metaFresh(m, r.staleAfter), nil
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lon float64, limit int) []models.DriverPresence {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: 5000, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.DriverPresence, 0, len(res))
	for _, g := range res {
		m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err != nil || !metaFresh(m, r.staleAfter) {
			continue
		}
		p := models.DriverPresence{
			DriverID: g.Name,
			Loc:      models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			Online:   true,
		}
		if v, ok := m["updated"]; ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				p.Updated = t
			}
		}
		out = append(out, p)
	}
	return out
}

func metaFresh(m map[string]string, staleAfter time.Duration) bool {
	if m["online"] != "true" {
		return false
	}
	t, err := time.Parse(time.RFC3339, m["updated"])
	if err != nil {
		return false
	}
	return time.Since(t) <= staleAfter
}

func metaKey(id string) string { return "driver:meta:" + id }
