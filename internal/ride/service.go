package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/madhavpai09/velo/internal/arbiter"
	"github.com/madhavpai09/velo/internal/broadcast"
	"github.com/madhavpai09/velo/internal/directory"
	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/observability"
	"github.com/madhavpai09/velo/internal/otp"
	"github.com/madhavpai09/velo/internal/payments"
	"github.com/madhavpai09/velo/internal/storage"
)

// Service owns the ride lifecycle end to end: create and broadcast, accept
// and decline, OTP handoff, completion and rating. All state lives in the
// store; the service enforces the transition graph and ownership on top of
// the store's guarded updates.
type Service struct {
	rides    storage.RideStore
	offers   storage.OfferStore
	drivers  storage.DriverStore
	dir      *directory.Directory
	bc       *broadcast.Broadcaster
	arb      *arbiter.Arbiter
	verifier *otp.Verifier
	pay      payments.Gateway
	events   dispatch.Dispatcher
	window   time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewService(rides storage.RideStore, offers storage.OfferStore, drivers storage.DriverStore, dir *directory.Directory, bc *broadcast.Broadcaster, arb *arbiter.Arbiter, verifier *otp.Verifier, pay payments.Gateway, events dispatch.Dispatcher, window time.Duration, log *slog.Logger) *Service {
	if pay == nil {
		pay = payments.Nop{}
	}
	if events == nil {
		events = dispatch.Nop{}
	}
	return &Service{
		rides:    rides,
		offers:   offers,
		drivers:  drivers,
		dir:      dir,
		bc:       bc,
		arb:      arb,
		verifier: verifier,
		pay:      pay,
		events:   events,
		window:   window,
		now:      time.Now,
		log:      log,
	}
}

// SetClock overrides the time source for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateRequest is the rider-facing shape of a new ride.
type CreateRequest struct {
	RiderID   string           `json:"rider_id"`
	Pickup    models.Coord     `json:"pickup"`
	Dropoff   models.Coord     `json:"dropoff"`
	Class     models.RideClass `json:"class"`
	FareCents int64            `json:"fare_cents"`
}

func (r *CreateRequest) validate() error {
	if r.RiderID == "" {
		return fmt.Errorf("%w: rider_id required", models.ErrValidation)
	}
	if r.Class == "" {
		r.Class = models.ClassStandard
	}
	if !r.Class.Valid() {
		return fmt.Errorf("%w: unknown ride class %q", models.ErrValidation, r.Class)
	}
	if r.FareCents < 0 {
		return fmt.Errorf("%w: negative fare", models.ErrValidation)
	}
	return nil
}

// Create registers a pending ride and immediately broadcasts it. A rider
// with a ride still in flight gets Conflict; the existing ride must settle
// first.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Ride, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if active, err := s.rides.ActiveRideForRider(ctx, req.RiderID); err == nil {
		return nil, fmt.Errorf("%w: ride %s still active", models.ErrConflict, active.ID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	r := &models.Ride{
		ID:            uuid.NewString(),
		RiderID:       req.RiderID,
		Pickup:        req.Pickup,
		Dropoff:       req.Dropoff,
		Class:         req.Class,
		FareCents:     req.FareCents,
		Status:        models.RidePending,
		OfferDeadline: now.Add(s.window),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.rides.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	observability.RidesCreated.Inc()
	s.log.Info("ride created", "ride_id", r.ID, "rider_id", r.RiderID, "class", r.Class)

	broadcasted, err := s.bc.Broadcast(ctx, r.ID)
	if err != nil {
		s.log.Warn("initial broadcast failed", "ride_id", r.ID, "error", err)
		return r, nil
	}
	return broadcasted, nil
}

// Status returns the ride after any read-time maintenance it was due.
func (s *Service) Status(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return s.bc.Refresh(ctx, r)
}

// ActiveForRider returns the rider's in-flight ride, if any.
func (s *Service) ActiveForRider(ctx context.Context, riderID string) (*models.Ride, error) {
	r, err := s.rides.ActiveRideForRider(ctx, riderID)
	if err != nil {
		return nil, err
	}
	return s.bc.Refresh(ctx, r)
}

// CurrentForDriver returns the ride the driver is presently assigned to.
func (s *Service) CurrentForDriver(ctx context.Context, driverID string) (*models.Ride, error) {
	drv, err := s.drivers.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if drv.CurrentRideID == "" {
		return nil, models.ErrNotFound
	}
	return s.rides.GetRide(ctx, drv.CurrentRideID)
}

// OpenOffer is the polling shim for drivers without a push connection.
func (s *Service) OpenOffer(ctx context.Context, driverID string) (*models.Offer, error) {
	o, err := s.offers.OpenOfferForDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	// Maintenance may close this offer; report only what survives it.
	r, err := s.rides.GetRide(ctx, o.RideID)
	if err != nil {
		return nil, err
	}
	if _, err := s.bc.Refresh(ctx, r); err != nil {
		return nil, err
	}
	return s.offers.GetOffer(ctx, o.ID)
}

// Accept forwards to the arbiter; see arbiter.Accept for the contract.
func (s *Service) Accept(ctx context.Context, driverID, offerID string) (*models.Ride, error) {
	return s.arb.Accept(ctx, driverID, offerID)
}

// Decline forwards to the arbiter.
func (s *Service) Decline(ctx context.Context, driverID, offerID string) error {
	return s.arb.Decline(ctx, driverID, offerID)
}

// Cancel withdraws a ride that has not been accepted yet. Anything at or
// past accepted refuses with ErrInvalidTransition; terminal states too.
func (s *Service) Cancel(ctx context.Context, riderID, rideID string) (*models.Ride, error) {
	r, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != riderID {
		return nil, models.ErrUnauthorized
	}
	cancelled, err := s.rides.Transition(ctx, rideID, []models.RideStatus{models.RidePending, models.RideOffered}, models.RideCancelled, storage.RideUpdate{})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: ride is %s", models.ErrInvalidTransition, r.Status)
		}
		return nil, err
	}
	if err := s.offers.CloseRideOffers(ctx, rideID, "", models.OfferExpired); err != nil {
		s.log.Warn("close offers failed", "ride_id", rideID, "error", err)
	}
	observability.RidesCancelled.Inc()
	s.notifyRide(cancelled, dispatch.EventRideCancelled)
	s.log.Info("ride cancelled", "ride_id", rideID)
	return cancelled, nil
}

// VerifyOTP confirms the pickup handoff and starts the trip.
func (s *Service) VerifyOTP(ctx context.Context, rideID, code string) (*models.Ride, error) {
	r, err := s.verifier.Verify(ctx, rideID, code)
	if err != nil {
		return nil, err
	}
	s.notifyRide(r, dispatch.EventOTPVerified)
	return r, nil
}

// Complete ends an in-progress trip. Only the assigned driver may call it.
func (s *Service) Complete(ctx context.Context, driverID, rideID string) (*models.Ride, error) {
	r, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != driverID {
		return nil, models.ErrUnauthorized
	}
	done, err := s.rides.Transition(ctx, rideID, []models.RideStatus{models.RideInProgress}, models.RideCompleted, storage.RideUpdate{})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: ride is %s", models.ErrInvalidTransition, r.Status)
		}
		return nil, err
	}
	if err := s.drivers.SetCurrentRide(ctx, driverID, ""); err != nil {
		s.log.Warn("current ride not cleared", "driver_id", driverID, "error", err)
	}
	if done.HoldID != "" {
		if err := s.pay.Capture(ctx, done.HoldID); err != nil {
			s.log.Warn("fare capture failed", "ride_id", rideID, "hold_id", done.HoldID, "error", err)
		}
	}
	observability.RidesCompleted.Inc()
	s.notifyRide(done, dispatch.EventRideCompleted)
	s.log.Info("ride completed", "ride_id", rideID, "driver_id", driverID)
	return done, nil
}

// Rate records the rider's 1..5 rating on a completed ride and folds it into
// the driver's running average. A ride can be rated once.
func (s *Service) Rate(ctx context.Context, riderID, rideID string, stars int) (*models.Ride, error) {
	if stars < 1 || stars > 5 {
		return nil, fmt.Errorf("%w: rating must be 1..5", models.ErrValidation)
	}
	r, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != riderID {
		return nil, models.ErrUnauthorized
	}
	if r.Status != models.RideCompleted {
		return nil, fmt.Errorf("%w: ride is %s", models.ErrInvalidTransition, r.Status)
	}
	if r.Rating != 0 {
		return nil, fmt.Errorf("%w: already rated", models.ErrConflict)
	}
	rated, err := s.rides.Transition(ctx, rideID, []models.RideStatus{models.RideCompleted}, models.RideCompleted, storage.RideUpdate{Rating: &stars})
	if err != nil {
		return nil, err
	}
	if rated.DriverID != "" {
		if _, err := s.dir.Rate(ctx, rated.DriverID, stars); err != nil {
			s.log.Warn("driver rating not recorded", "driver_id", rated.DriverID, "error", err)
		}
	}
	return rated, nil
}

// Recover resets rides stranded mid-broadcast by a previous process. Offered
// rides go back to pending with a fresh window and their stale offers are
// expired; the next poll re-broadcasts against the current fleet.
func (s *Service) Recover(ctx context.Context) error {
	stuck, err := s.rides.RidesByStatus(ctx, models.RideOffered)
	if err != nil {
		return err
	}
	for _, r := range stuck {
		if err := s.offers.CloseRideOffers(ctx, r.ID, "", models.OfferExpired); err != nil {
			s.log.Warn("recovery: close offers failed", "ride_id", r.ID, "error", err)
			continue
		}
		deadline := s.now().Add(s.window)
		if _, err := s.rides.Transition(ctx, r.ID, []models.RideStatus{models.RideOffered}, models.RidePending, storage.RideUpdate{OfferDeadline: &deadline}); err != nil {
			s.log.Warn("recovery: reset failed", "ride_id", r.ID, "error", err)
		}
	}
	if len(stuck) > 0 {
		s.log.Info("recovery sweep", "rides_reset", len(stuck))
	}
	return nil
}

func (s *Service) notifyRide(r *models.Ride, t dispatch.EventType) {
	ev := dispatch.Event{Type: t, RideID: r.ID, DriverID: r.DriverID, RiderID: r.RiderID, Status: string(r.Status)}
	if err := s.events.NotifyRider(r.RiderID, ev); err != nil {
		s.log.Debug("rider push skipped", "ride_id", r.ID, "error", err)
	}
	if r.DriverID != "" {
		if err := s.events.NotifyDriver(r.DriverID, ev); err != nil {
			s.log.Debug("driver push skipped", "ride_id", r.ID, "error", err)
		}
	}
}
