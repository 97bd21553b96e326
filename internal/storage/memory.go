package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/madhavpai09/velo/internal/models"
)

// MemoryStore is the in-process Store used by tests and dependency-free local
// runs. One mutex serializes every mutation, which is what makes Transition a
// true compare-and-set here.
type MemoryStore struct {
	mu            sync.RWMutex
	rides         map[string]*models.Ride
	offers        map[string]*models.Offer
	drivers       map[string]*models.Driver
	schools       map[string]*models.School
	routes        map[string]*models.Route
	stops         map[string]*models.Stop
	students      map[string]*models.Student
	subscriptions map[string]*models.Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:         make(map[string]*models.Ride),
		offers:        make(map[string]*models.Offer),
		drivers:       make(map[string]*models.Driver),
		schools:       make(map[string]*models.School),
		routes:        make(map[string]*models.Route),
		stops:         make(map[string]*models.Stop),
		students:      make(map[string]*models.Student),
		subscriptions: make(map[string]*models.Subscription),
	}
}

// ---- rides ----

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(_ context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, from []models.RideStatus, to models.RideStatus, upd RideUpdate) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
	}
	if !statusIn(r.Status, from) {
		return nil, fmt.Errorf("ride %s is %s: %w", id, r.Status, models.ErrConflict)
	}
	r.Status = to
	applyUpdate(r, upd)
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) VerifyOTP(_ context.Context, id, code string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
	}
	if r.Status != models.RideAccepted || r.OTP == "" || r.OTP != code {
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrInvalidOTP)
	}
	r.Status = models.RideInProgress
	r.OTPVerified = true
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ActiveRideForRider(_ context.Context, riderID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *models.Ride
	for _, r := range m.rides {
		if r.RiderID != riderID || r.Status.Terminal() {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("rider %s: %w", riderID, models.ErrNotFound)
	}
	cp := *newest
	return &cp, nil
}

func (m *MemoryStore) RidesByStatus(_ context.Context, statuses ...models.RideStatus) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Ride
	for _, r := range m.rides {
		if statusIn(r.Status, statuses) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- offers ----

func (m *MemoryStore) CreateOffer(_ context.Context, o *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.offers[o.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOffer(_ context.Context, id string) (*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, fmt.Errorf("offer %s: %w", id, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) OffersForRide(_ context.Context, rideID string) ([]*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Offer
	for _, o := range m.offers {
		if o.RideID == rideID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) OpenOfferForDriver(_ context.Context, driverID string) (*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *models.Offer
	for _, o := range m.offers {
		if o.DriverID != driverID || o.Status != models.OfferOpen {
			continue
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			newest = o
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("driver %s: %w", driverID, models.ErrNotFound)
	}
	cp := *newest
	return &cp, nil
}

func (m *MemoryStore) SetOfferStatus(_ context.Context, id string, from, to models.OfferStatus) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, fmt.Errorf("offer %s: %w", id, models.ErrNotFound)
	}
	if o.Status != from {
		return nil, fmt.Errorf("offer %s is %s: %w", id, o.Status, models.ErrConflict)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) CloseRideOffers(_ context.Context, rideID, exceptOfferID string, to models.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if o.RideID != rideID || o.ID == exceptOfferID || o.Status != models.OfferOpen {
			continue
		}
		o.Status = to
		o.UpdatedAt = time.Now()
	}
	return nil
}

// ---- drivers ----

func (m *MemoryStore) PutDriver(_ context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.drivers[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDriver(_ context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.driverLocked(id)
}

func (m *MemoryStore) driverLocked(id string) (*models.Driver, error) {
	d, ok := m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", id, models.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListDrivers(_ context.Context) ([]*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetAvailability(_ context.Context, id string, available bool, seen time.Time) error {
	return m.mutateDriver(id, func(d *models.Driver) {
		d.Available = available
		d.LastSeen = seen
	})
}

func (m *MemoryStore) SetLocation(_ context.Context, id string, c models.Coord, seen time.Time) error {
	return m.mutateDriver(id, func(d *models.Driver) {
		d.Loc = c
		d.LastSeen = seen
	})
}

func (m *MemoryStore) Touch(_ context.Context, id string, seen time.Time) error {
	return m.mutateDriver(id, func(d *models.Driver) { d.LastSeen = seen })
}

func (m *MemoryStore) SetCurrentRide(_ context.Context, id, rideID string) error {
	return m.mutateDriver(id, func(d *models.Driver) { d.CurrentRideID = rideID })
}

func (m *MemoryStore) SetVerified(_ context.Context, id string, verified bool) error {
	return m.mutateDriver(id, func(d *models.Driver) { d.SafetyVerified = verified })
}

func (m *MemoryStore) AddRating(_ context.Context, id string, rating int) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", id, models.ErrNotFound)
	}
	d.Rating = (d.Rating*float64(d.RatingCount) + float64(rating)) / float64(d.RatingCount+1)
	d.RatingCount++
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) mutateDriver(id string, fn func(*models.Driver)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return fmt.Errorf("driver %s: %w", id, models.ErrNotFound)
	}
	fn(d)
	return nil
}

// ---- school pool ----

func (m *MemoryStore) PutSchool(_ context.Context, s *models.School) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.schools[s.ID] = &cp
	return nil
}

func (m *MemoryStore) PutRoute(_ context.Context, r *models.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.routes[r.ID] = &cp
	return nil
}

func (m *MemoryStore) PutStop(_ context.Context, s *models.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stops[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ListSchools(_ context.Context) ([]*models.School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.School, 0, len(m.schools))
	for _, s := range m.schools {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetRoute(_ context.Context, id string) (*models.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, fmt.Errorf("route %s: %w", id, models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) RoutesForSchool(_ context.Context, schoolID string) ([]*models.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Route
	for _, r := range m.routes {
		if r.SchoolID == schoolID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) StopsForRoute(_ context.Context, routeID string) ([]*models.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Stop
	for _, s := range m.stops {
		if s.RouteID == routeID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *MemoryStore) SetRouteDriver(_ context.Context, routeID, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return fmt.Errorf("route %s: %w", routeID, models.ErrNotFound)
	}
	r.DriverID = driverID
	return nil
}

func (m *MemoryStore) AdjustRouteOccupancy(_ context.Context, routeID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return fmt.Errorf("route %s: %w", routeID, models.ErrNotFound)
	}
	if r.Occupancy+delta > r.Capacity {
		return fmt.Errorf("route %s full: %w", routeID, models.ErrCapacityExceeded)
	}
	r.Occupancy += delta
	if r.Occupancy < 0 {
		r.Occupancy = 0
	}
	return nil
}

func (m *MemoryStore) CreateStudent(_ context.Context, s *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.students[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetStudent(_ context.Context, id string) (*models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, models.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) StudentsForUser(_ context.Context, userID string) ([]*models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Student
	for _, s := range m.students {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateSubscription(_ context.Context, s *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subscriptions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, models.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateSubscription(_ context.Context, s *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[s.ID]; !ok {
		return fmt.Errorf("subscription %s: %w", s.ID, models.ErrNotFound)
	}
	cp := *s
	cp.UpdatedAt = time.Now()
	m.subscriptions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) SubscriptionsForRider(_ context.Context, riderID string) ([]*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Subscription
	for _, s := range m.subscriptions {
		if s.RiderID == riderID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ActiveSubscriptionForStudent(_ context.Context, studentID string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subscriptions {
		if s.StudentID == studentID && s.Status == models.SubscriptionActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("student %s: %w", studentID, models.ErrNotFound)
}

// ---- helpers ----

func statusIn(s models.RideStatus, set []models.RideStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func applyUpdate(r *models.Ride, upd RideUpdate) {
	if upd.DriverID != nil {
		r.DriverID = *upd.DriverID
	}
	if upd.OTP != nil {
		r.OTP = *upd.OTP
	}
	if upd.OTPVerified != nil {
		r.OTPVerified = *upd.OTPVerified
	}
	if upd.HoldID != nil {
		r.HoldID = *upd.HoldID
	}
	if upd.Rating != nil {
		r.Rating = *upd.Rating
	}
	if upd.OfferDeadline != nil {
		r.OfferDeadline = *upd.OfferDeadline
	}
}
