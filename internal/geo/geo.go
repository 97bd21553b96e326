package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/madhavpai09/velo/internal/models"
)

// Position is a driver's last known location as seen by the spatial index.
type Position struct {
	DriverID       string
	Coord          models.Coord
	DistanceMeters float64
	Updated        time.Time
}

// Index is the minimal spatial interface the broadcaster needs: upsert a
// driver position, query the nearest drivers to a pickup point.
type Index interface {
	Upsert(ctx context.Context, driverID string, c models.Coord) error
	Nearby(ctx context.Context, c models.Coord, limit int) ([]Position, error)
}

// MemoryIndex is the in-process fallback used when Redis is not configured.
type MemoryIndex struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{positions: make(map[string]Position)}
}

func (g *MemoryIndex) Upsert(_ context.Context, driverID string, c models.Coord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[driverID] = Position{DriverID: driverID, Coord: c, Updated: time.Now()}
	return nil
}

// naive scan; fine at this fleet size, swap for geo-hash or H3 beyond that
func (g *MemoryIndex) Nearby(_ context.Context, c models.Coord, limit int) ([]Position, error) {
	g.mu.RLock()
	out := make([]Position, 0, len(g.positions))
	for _, p := range g.positions {
		p.DistanceMeters = Haversine(c.Lat, c.Lon, p.Coord.Lat, p.Coord.Lon)
		out = append(out, p)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
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
