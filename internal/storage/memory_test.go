package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/madhavpai09/velo/internal/models"
)

func newRide(id string) *models.Ride {
	return &models.Ride{
		ID:        id,
		RiderID:   "rider-1",
		Class:     models.ClassStandard,
		Status:    models.RidePending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func strPtr(s string) *string { return &s }

func TestTransitionGuard(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.CreateRide(ctx, newRide("r1")); err != nil {
		t.Fatal(err)
	}

	r, err := m.Transition(ctx, "r1", []models.RideStatus{models.RidePending}, models.RideOffered, RideUpdate{})
	if err != nil {
		t.Fatalf("pending->offered: %v", err)
	}
	if r.Status != models.RideOffered {
		t.Fatalf("status = %s", r.Status)
	}

	// guard miss: ride is offered, not pending
	_, err = m.Transition(ctx, "r1", []models.RideStatus{models.RidePending}, models.RideCancelled, RideUpdate{})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	_, err = m.Transition(ctx, "missing", []models.RideStatus{models.RidePending}, models.RideOffered, RideUpdate{})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionBindsFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.CreateRide(ctx, newRide("r1"))
	_, _ = m.Transition(ctx, "r1", []models.RideStatus{models.RidePending}, models.RideOffered, RideUpdate{})

	r, err := m.Transition(ctx, "r1", []models.RideStatus{models.RideOffered}, models.RideAccepted,
		RideUpdate{DriverID: strPtr("d9"), OTP: strPtr("4821")})
	if err != nil {
		t.Fatal(err)
	}
	if r.DriverID != "d9" || r.OTP != "4821" {
		t.Fatalf("fields not bound: %+v", r)
	}
}

// N goroutines race the offered->accepted compare-and-set; exactly one wins.
func TestConcurrentAcceptanceExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.CreateRide(ctx, newRide("r1"))
	_, _ = m.Transition(ctx, "r1", []models.RideStatus{models.RidePending}, models.RideOffered, RideUpdate{})

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		driver := string(rune('a' + i%26))
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			_, err := m.Transition(ctx, "r1", []models.RideStatus{models.RideOffered}, models.RideAccepted,
				RideUpdate{DriverID: &d})
			if err == nil {
				wins <- d
			} else if !errors.Is(err, models.ErrConflict) {
				t.Errorf("loser got unexpected error: %v", err)
			}
		}(driver)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	r, _ := m.GetRide(ctx, "r1")
	if r.Status != models.RideAccepted || r.DriverID != winners[0] {
		t.Fatalf("ride not bound to winner: %+v", r)
	}
}

func TestVerifyOTP(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.CreateRide(ctx, newRide("r1"))
	_, _ = m.Transition(ctx, "r1", []models.RideStatus{models.RidePending}, models.RideOffered, RideUpdate{})

	// not yet accepted
	if _, err := m.VerifyOTP(ctx, "r1", "4821"); !errors.Is(err, models.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP before acceptance, got %v", err)
	}

	_, _ = m.Transition(ctx, "r1", []models.RideStatus{models.RideOffered}, models.RideAccepted,
		RideUpdate{DriverID: strPtr("d1"), OTP: strPtr("4821")})

	if _, err := m.VerifyOTP(ctx, "r1", "1234"); !errors.Is(err, models.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP on mismatch, got %v", err)
	}
	r, _ := m.GetRide(ctx, "r1")
	if r.Status != models.RideAccepted {
		t.Fatalf("failed verify must not change state, got %s", r.Status)
	}

	r, err := m.VerifyOTP(ctx, "r1", "4821")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.RideInProgress || !r.OTPVerified {
		t.Fatalf("expected in_progress verified ride, got %+v", r)
	}

	// codes are single-use per ride: a second verify finds no accepted ride
	if _, err := m.VerifyOTP(ctx, "r1", "4821"); !errors.Is(err, models.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP after advance, got %v", err)
	}
}

func TestOfferGuards(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()
	for _, o := range []*models.Offer{
		{ID: "o1", RideID: "r1", DriverID: "a", Status: models.OfferOpen, CreatedAt: now},
		{ID: "o2", RideID: "r1", DriverID: "b", Status: models.OfferOpen, CreatedAt: now},
		{ID: "o3", RideID: "r1", DriverID: "c", Status: models.OfferOpen, CreatedAt: now},
	} {
		_ = m.CreateOffer(ctx, o)
	}

	if _, err := m.SetOfferStatus(ctx, "o1", models.OfferOpen, models.OfferAccepted); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SetOfferStatus(ctx, "o1", models.OfferOpen, models.OfferDeclined); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := m.CloseRideOffers(ctx, "r1", "o1", models.OfferSuperseded); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"o2", "o3"} {
		o, _ := m.GetOffer(ctx, id)
		if o.Status != models.OfferSuperseded {
			t.Fatalf("offer %s = %s, want superseded", id, o.Status)
		}
	}
	o, _ := m.GetOffer(ctx, "o1")
	if o.Status != models.OfferAccepted {
		t.Fatalf("winner offer must stay accepted, got %s", o.Status)
	}

	if _, err := m.OpenOfferForDriver(ctx, "b"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("driver b should have no open offer, got %v", err)
	}
}

func TestRouteOccupancy(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.PutRoute(ctx, &models.Route{ID: "rt1", Capacity: 2})

	if err := m.AdjustRouteOccupancy(ctx, "rt1", 1); err != nil {
		t.Fatal(err)
	}
	if err := m.AdjustRouteOccupancy(ctx, "rt1", 1); err != nil {
		t.Fatal(err)
	}
	if err := m.AdjustRouteOccupancy(ctx, "rt1", 1); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if err := m.AdjustRouteOccupancy(ctx, "rt1", -1); err != nil {
		t.Fatal(err)
	}
}
