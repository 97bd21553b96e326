package broadcast

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/madhavpai09/velo/internal/directory"
	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/eta"
	"github.com/madhavpai09/velo/internal/geo"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/observability"
	"github.com/madhavpai09/velo/internal/storage"
)

// Broadcaster turns a pending ride into a set of open offers, one per
// eligible driver, nearest first. There is no background sweeper: Refresh is
// called from the read path and performs whatever maintenance the ride is
// due, so a ride nobody polls costs nothing.
type Broadcaster struct {
	rides   storage.RideStore
	offers  storage.OfferStore
	drivers *directory.Directory
	index   geo.Index
	eta     *eta.Estimator
	events  dispatch.Dispatcher
	fanout  int
	window  time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func New(rides storage.RideStore, offers storage.OfferStore, drivers *directory.Directory, index geo.Index, est *eta.Estimator, events dispatch.Dispatcher, fanout int, window time.Duration, log *slog.Logger) *Broadcaster {
	if events == nil {
		events = dispatch.Nop{}
	}
	return &Broadcaster{
		rides:   rides,
		offers:  offers,
		drivers: drivers,
		index:   index,
		eta:     est,
		events:  events,
		fanout:  fanout,
		window:  window,
		now:     time.Now,
		log:     log,
	}
}

// SetClock overrides the time source for tests.
func (b *Broadcaster) SetClock(now func() time.Time) { b.now = now }

// Broadcast offers a pending ride to up to fanout eligible drivers and moves
// it to offered. With no candidates the ride stays pending and the next
// Refresh retries. Calling it on a ride that already left pending is a no-op.
func (b *Broadcaster) Broadcast(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := b.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RidePending {
		return r, nil
	}
	candidates, err := b.rank(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		b.log.Debug("no eligible drivers", "ride_id", r.ID, "class", r.Class)
		return r, nil
	}

	deadline := b.now().Add(b.window)
	r, err = b.rides.Transition(ctx, r.ID, []models.RideStatus{models.RidePending}, models.RideOffered, storage.RideUpdate{OfferDeadline: &deadline})
	if err != nil {
		// Lost a race with a concurrent broadcast or a cancel; the other
		// writer owns the ride now.
		return b.rides.GetRide(ctx, rideID)
	}
	for _, c := range candidates {
		if err := b.offerTo(ctx, r, c); err != nil {
			b.log.Warn("offer create failed", "ride_id", r.ID, "driver_id", c.driver.ID, "error", err)
		}
	}
	b.log.Info("ride broadcast", "ride_id", r.ID, "offers", len(candidates), "deadline", deadline)
	return r, nil
}

// Refresh performs read-time maintenance: re-broadcast a still-pending ride,
// extend offers to drivers that became eligible since the broadcast, and
// expire a ride whose window closed with no acceptance and nobody left to
// ask. Callers pass the ride they just loaded and use the returned one.
func (b *Broadcaster) Refresh(ctx context.Context, r *models.Ride) (*models.Ride, error) {
	switch r.Status {
	case models.RidePending:
		if b.now().After(r.OfferDeadline) {
			return b.expire(ctx, r)
		}
		return b.Broadcast(ctx, r.ID)
	case models.RideOffered:
		candidates, err := b.rank(ctx, r)
		if err != nil {
			return r, nil
		}
		existing, err := b.offers.OffersForRide(ctx, r.ID)
		if err != nil {
			b.log.Warn("load offers failed", "ride_id", r.ID, "error", err)
			return r, nil
		}
		byDriver := make(map[string]models.OfferStatus, len(existing))
		for _, o := range existing {
			byDriver[o.DriverID] = o.Status
		}
		// A driver whose offer already settled (declined, expired,
		// superseded) is out of the running even while online, so they do
		// not keep the ride alive past its window.
		remaining := 0
		for _, c := range candidates {
			if st, ok := byDriver[c.driver.ID]; !ok || st == models.OfferOpen {
				remaining++
			}
		}
		if b.now().After(r.OfferDeadline) && remaining == 0 {
			return b.expire(ctx, r)
		}
		b.fill(ctx, r, candidates, byDriver)
		return r, nil
	default:
		return r, nil
	}
}

func (b *Broadcaster) expire(ctx context.Context, r *models.Ride) (*models.Ride, error) {
	exp, err := b.rides.Transition(ctx, r.ID, []models.RideStatus{models.RidePending, models.RideOffered}, models.RideExpired, storage.RideUpdate{})
	if err != nil {
		// Someone accepted or cancelled between our read and the guard.
		return b.rides.GetRide(ctx, r.ID)
	}
	if err := b.offers.CloseRideOffers(ctx, r.ID, "", models.OfferExpired); err != nil {
		b.log.Warn("close offers failed", "ride_id", r.ID, "error", err)
	}
	observability.RidesExpired.Inc()
	if err := b.events.NotifyRider(r.RiderID, dispatch.Event{Type: dispatch.EventRideExpired, RideID: r.ID, Status: string(models.RideExpired)}); err != nil {
		b.log.Debug("rider push skipped", "ride_id", r.ID, "error", err)
	}
	b.log.Info("ride expired", "ride_id", r.ID)
	return exp, nil
}

// fill creates offers for candidates that do not already hold one. Existing
// offers, whatever their status, are respected so a driver who declined is
// not re-asked for the same ride.
func (b *Broadcaster) fill(ctx context.Context, r *models.Ride, candidates []candidate, byDriver map[string]models.OfferStatus) {
	for _, c := range candidates {
		if _, ok := byDriver[c.driver.ID]; ok {
			continue
		}
		if err := b.offerTo(ctx, r, c); err != nil {
			b.log.Warn("offer create failed", "ride_id", r.ID, "driver_id", c.driver.ID, "error", err)
		}
	}
}

func (b *Broadcaster) offerTo(ctx context.Context, r *models.Ride, c candidate) error {
	now := b.now()
	o := &models.Offer{
		ID:         uuid.NewString(),
		RideID:     r.ID,
		DriverID:   c.driver.ID,
		Status:     models.OfferOpen,
		ETASeconds: c.etaSeconds,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := b.offers.CreateOffer(ctx, o); err != nil {
		return err
	}
	observability.OffersBroadcast.Inc()
	ev := dispatch.Event{
		Type:       dispatch.EventOffer,
		RideID:     r.ID,
		OfferID:    o.ID,
		DriverID:   c.driver.ID,
		RiderID:    r.RiderID,
		ETASeconds: c.etaSeconds,
	}
	if err := b.events.NotifyDriver(c.driver.ID, ev); err != nil {
		b.log.Debug("driver push skipped", "driver_id", c.driver.ID, "error", err)
	}
	return nil
}

type candidate struct {
	driver     *models.Driver
	distance   float64
	etaSeconds float64
}

// rank returns eligible drivers nearest the pickup first, capped at fanout.
// The geo index supplies distances when present; otherwise the last stored
// driver position is measured directly.
func (b *Broadcaster) rank(ctx context.Context, r *models.Ride) ([]candidate, error) {
	eligible, err := b.drivers.Eligible(ctx, r.Class)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	dist := make(map[string]float64, len(eligible))
	if b.index != nil {
		positions, err := b.index.Nearby(ctx, r.Pickup, b.fanout*2)
		if err == nil {
			for _, p := range positions {
				dist[p.DriverID] = p.DistanceMeters
			}
		} else {
			b.log.Warn("geo lookup failed, using stored positions", "error", err)
		}
	}

	out := make([]candidate, 0, len(eligible))
	for _, d := range eligible {
		m, ok := dist[d.ID]
		if !ok {
			m = geo.Haversine(r.Pickup.Lat, r.Pickup.Lon, d.Loc.Lat, d.Loc.Lon)
		}
		c := candidate{driver: d, distance: m}
		if b.eta != nil {
			c.etaSeconds = b.eta.Seconds(d.Loc, r.Pickup)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].distance < out[j].distance })
	if b.fanout > 0 && len(out) > b.fanout {
		out = out[:b.fanout]
	}
	return out, nil
}
