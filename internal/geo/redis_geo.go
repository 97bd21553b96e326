package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/madhavpai09/velo/internal/models"
)

// RedisIndex implements Index using Redis GEO commands, so the location
// pipeline (HTTP ingest or the Kafka consumer) and the broadcaster can share
// one fleet-wide view across processes.
type RedisIndex struct {
	client *redis.Client
	key    string
	radius float64 // meters
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key, radius: 15000}
}

func (r *RedisIndex) Upsert(ctx context.Context, driverID string, c models.Coord) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: c.Lon, Latitude: c.Lat, Name: driverID}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(driverID), map[string]interface{}{
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Nearby(ctx context.Context, c models.Coord, limit int) ([]Position, error) {
	res, err := r.client.GeoRadius(ctx, r.key, c.Lon, c.Lat, &redis.GeoRadiusQuery{
		Radius:    r.radius,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(res))
	for _, g := range res {
		out = append(out, Position{
			DriverID:       g.Name,
			Coord:          models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			DistanceMeters: g.Dist,
		})
	}
	return out, nil
}

func (r *RedisIndex) Close() error { return r.client.Close() }

func metaKey(id string) string { return "driver:meta:" + id }
