package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/madhavpai09/velo/internal/directory"
	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/logging"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/storage"
)

type eventRecorder struct {
	mu     sync.Mutex
	driver []dispatch.Event
	rider  []dispatch.Event
}

func (r *eventRecorder) NotifyDriver(_ string, ev dispatch.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.driver = append(r.driver, ev)
	return nil
}

func (r *eventRecorder) NotifyRider(_ string, ev dispatch.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rider = append(r.rider, ev)
	return nil
}

type fixture struct {
	store  *storage.MemoryStore
	dir    *directory.Directory
	b      *Broadcaster
	events *eventRecorder
	now    time.Time
}

func newFixture(t *testing.T, fanout int) *fixture {
	t.Helper()
	log := logging.NewLogger("error")
	f := &fixture{
		store:  storage.NewMemoryStore(),
		events: &eventRecorder{},
		now:    time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
	}
	f.dir = directory.New(f.store, nil, 120*time.Second, log)
	f.dir.SetClock(func() time.Time { return f.now })
	f.b = New(f.store, f.store, f.dir, nil, nil, f.events, fanout, time.Minute, log)
	f.b.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) addDriver(t *testing.T, id string, loc models.Coord) {
	t.Helper()
	_, err := f.dir.Register(context.Background(), id, "driver "+id, loc)
	require.NoError(t, err)
}

func (f *fixture) newRide(t *testing.T, class models.RideClass) *models.Ride {
	t.Helper()
	r := &models.Ride{
		ID:            "ride-1",
		RiderID:       "rider-1",
		Pickup:        models.Coord{Lat: 12.9716, Lon: 77.5946},
		Dropoff:       models.Coord{Lat: 12.9352, Lon: 77.6245},
		Class:         class,
		Status:        models.RidePending,
		OfferDeadline: f.now.Add(time.Minute),
		CreatedAt:     f.now,
		UpdatedAt:     f.now,
	}
	require.NoError(t, f.store.CreateRide(context.Background(), r))
	return r
}

func TestBroadcastOffersNearestFirstCappedAtFanout(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.addDriver(t, "near", models.Coord{Lat: 12.9720, Lon: 77.5950})
	f.addDriver(t, "mid", models.Coord{Lat: 12.9800, Lon: 77.6000})
	f.addDriver(t, "far", models.Coord{Lat: 13.0500, Lon: 77.7000})
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)
	require.Equal(t, models.RideOffered, got.Status)
	require.Equal(t, f.now.Add(time.Minute), got.OfferDeadline)

	offers, err := f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	byDriver := map[string]bool{}
	for _, o := range offers {
		require.Equal(t, models.OfferOpen, o.Status)
		byDriver[o.DriverID] = true
	}
	require.True(t, byDriver["near"])
	require.True(t, byDriver["mid"])
	require.False(t, byDriver["far"])
	require.Len(t, f.events.driver, 2)
	require.Equal(t, dispatch.EventOffer, f.events.driver[0].Type)
}

func TestBroadcastNoCandidatesStaysPending(t *testing.T) {
	f := newFixture(t, 4)
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(context.Background(), ride.ID)
	require.NoError(t, err)
	require.Equal(t, models.RidePending, got.Status)

	offers, err := f.store.OffersForRide(context.Background(), ride.ID)
	require.NoError(t, err)
	require.Empty(t, offers)
}

func TestBroadcastIdempotentAfterOffered(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "d1", models.Coord{Lat: 12.97, Lon: 77.59})
	ride := f.newRide(t, models.ClassStandard)

	_, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)
	_, err = f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)

	offers, err := f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
}

func TestBroadcastSafetyTierFiltersDrivers(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "plain", models.Coord{Lat: 12.97, Lon: 77.59})
	f.addDriver(t, "vetted", models.Coord{Lat: 12.99, Lon: 77.61})
	require.NoError(t, f.dir.SetVerified(ctx, "vetted", true))
	ride := f.newRide(t, models.ClassSafetyVerified)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)
	require.Equal(t, models.RideOffered, got.Status)

	offers, err := f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, "vetted", offers[0].DriverID)
}

func TestRefreshExpiresPastDeadlineWithNobodyLeft(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "d1", models.Coord{Lat: 12.97, Lon: 77.59})
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)
	require.Equal(t, models.RideOffered, got.Status)

	// The only candidate goes silent past the liveness window and the offer
	// deadline passes.
	f.now = f.now.Add(3 * time.Minute)

	got, err = f.b.Refresh(ctx, got)
	require.NoError(t, err)
	require.Equal(t, models.RideExpired, got.Status)

	offers, err := f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, models.OfferExpired, offers[0].Status)
	require.Len(t, f.events.rider, 1)
	require.Equal(t, dispatch.EventRideExpired, f.events.rider[0].Type)
}

func TestRefreshKeepsOfferedRideAliveWhileCandidatesRemain(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "d1", models.Coord{Lat: 12.97, Lon: 77.59})
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)

	f.now = f.now.Add(90 * time.Second)
	_, err = f.dir.Heartbeat(ctx, "d1")
	require.NoError(t, err)

	got, err = f.b.Refresh(ctx, got)
	require.NoError(t, err)
	require.Equal(t, models.RideOffered, got.Status)
}

func TestRefreshOffersToNewlyEligibleDriver(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "early", models.Coord{Lat: 12.97, Lon: 77.59})
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)

	f.addDriver(t, "late", models.Coord{Lat: 12.98, Lon: 77.60})
	got, err = f.b.Refresh(ctx, got)
	require.NoError(t, err)
	require.Equal(t, models.RideOffered, got.Status)

	offers, err := f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 2)
}

func TestRefreshDoesNotReofferAfterDecline(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "d1", models.Coord{Lat: 12.97, Lon: 77.59})
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)
	offers, err := f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	_, err = f.store.SetOfferStatus(ctx, offers[0].ID, models.OfferOpen, models.OfferDeclined)
	require.NoError(t, err)

	got, err = f.b.Refresh(ctx, got)
	require.NoError(t, err)
	require.Equal(t, models.RideOffered, got.Status)

	offers, err = f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, models.OfferDeclined, offers[0].Status)
}

func TestRefreshExpiresWhenEveryOfferDeclined(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "d1", models.Coord{Lat: 12.97, Lon: 77.59})
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)
	offers, err := f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	_, err = f.store.SetOfferStatus(ctx, offers[0].ID, models.OfferOpen, models.OfferDeclined)
	require.NoError(t, err)

	// The decliner keeps heartbeating, so they still rank as eligible, but
	// with no open offer left the ride must expire once the window closes.
	f.now = f.now.Add(90 * time.Second)
	_, err = f.dir.Heartbeat(ctx, "d1")
	require.NoError(t, err)

	got, err = f.b.Refresh(ctx, got)
	require.NoError(t, err)
	require.Equal(t, models.RideExpired, got.Status)

	offers, err = f.store.OffersForRide(ctx, ride.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, models.OfferDeclined, offers[0].Status)
	require.Len(t, f.events.rider, 1)
	require.Equal(t, dispatch.EventRideExpired, f.events.rider[0].Type)
}

func TestRefreshLeavesSettledRidesAlone(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.addDriver(t, "d1", models.Coord{Lat: 12.97, Lon: 77.59})
	ride := f.newRide(t, models.ClassStandard)

	got, err := f.b.Broadcast(ctx, ride.ID)
	require.NoError(t, err)
	drv := "d1"
	got, err = f.store.Transition(ctx, ride.ID, []models.RideStatus{models.RideOffered}, models.RideAccepted, storage.RideUpdate{DriverID: &drv})
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	got, err = f.b.Refresh(ctx, got)
	require.NoError(t, err)
	require.Equal(t, models.RideAccepted, got.Status)
}
