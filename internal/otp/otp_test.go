package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/madhavpai09/velo/internal/logging"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/storage"
)

func TestGenerateFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != CodeLength {
			t.Fatalf("expected %d digits, got %q", CodeLength, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-numeric code %q", code)
			}
		}
		seen[code] = true
	}
	// 200 draws from 10000 codes virtually never collapse to a single value
	if len(seen) < 2 {
		t.Fatal("generator returned a constant code")
	}
}

func TestVerifyAdvancesRide(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.CreateRide(ctx, &models.Ride{ID: "r1", RiderID: "u1", Status: models.RidePending, CreatedAt: time.Now()})
	_, _ = store.Transition(ctx, "r1", []models.RideStatus{models.RidePending}, models.RideOffered, storage.RideUpdate{})
	d, code := "d1", "4821"
	_, _ = store.Transition(ctx, "r1", []models.RideStatus{models.RideOffered}, models.RideAccepted,
		storage.RideUpdate{DriverID: &d, OTP: &code})

	v := NewVerifier(store, logging.NewLogger("error"))

	if _, err := v.Verify(ctx, "r1", "1234"); !errors.Is(err, models.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if _, err := v.Verify(ctx, "r1", ""); !errors.Is(err, models.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for empty code, got %v", err)
	}

	ride, err := v.Verify(ctx, "r1", " 4821 ")
	if err != nil {
		t.Fatalf("trimmed exact match should verify: %v", err)
	}
	if ride.Status != models.RideInProgress || !ride.OTPVerified {
		t.Fatalf("unexpected ride state: %+v", ride)
	}

	if _, err := v.Verify(ctx, "missing", "4821"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
