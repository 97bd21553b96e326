package eta

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/madhavpai09/velo/internal/geo"
	"github.com/madhavpai09/velo/internal/models"
)

// Estimator computes pickup ETAs for offers. When an OSRM endpoint is
// configured it asks the routing engine and caches the answer; otherwise it
// falls back to straight-line distance over a default city speed.
type Estimator struct {
	osrm            string
	client          *http.Client
	defaultSpeedMps float64

	mu    sync.RWMutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

func NewEstimator(osrmEndpoint string, defaultSpeedMps float64) *Estimator {
	if defaultSpeedMps <= 0 {
		defaultSpeedMps = 8.0 // ~28.8 km/h city speed
	}
	return &Estimator{
		osrm:            osrmEndpoint,
		client:          &http.Client{Timeout: 2 * time.Second},
		defaultSpeedMps: defaultSpeedMps,
		cache:           make(map[string]cacheEntry),
		ttl:             30 * time.Second,
	}
}

// Seconds estimates the travel time from a driver position to the pickup.
func (e *Estimator) Seconds(from, to models.Coord) float64 {
	if e.osrm == "" {
		return e.fallback(from, to)
	}
	key := cacheKey(from, to)
	if v, ok := e.cached(key); ok {
		return v
	}
	v, err := e.route(from, to)
	if err != nil {
		return e.fallback(from, to)
	}
	e.store(key, v)
	return v
}

func (e *Estimator) fallback(from, to models.Coord) float64 {
	return geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / e.defaultSpeedMps
}

// route queries OSRM: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}?overview=false
func (e *Estimator) route(from, to models.Coord) (float64, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", e.osrm, from.Lon, from.Lat, to.Lon, to.Lat)
	resp, err := e.client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration float64 `json:"duration"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return 0, fmt.Errorf("osrm no route: %v", out.Code)
	}
	return out.Routes[0].Duration, nil
}

func (e *Estimator) cached(key string) (float64, bool) {
	e.mu.RLock()
	entry, ok := e.cache[key]
	e.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(entry.ts) > e.ttl {
		e.mu.Lock()
		delete(e.cache, key)
		e.mu.Unlock()
		return 0, false
	}
	return entry.v, true
}

func (e *Estimator) store(key string, v float64) {
	e.mu.Lock()
	e.cache[key] = cacheEntry{v: v, ts: time.Now()}
	e.mu.Unlock()
}

func cacheKey(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}
