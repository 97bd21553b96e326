package arbiter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/observability"
	"github.com/madhavpai09/velo/internal/otp"
	"github.com/madhavpai09/velo/internal/payments"
	"github.com/madhavpai09/velo/internal/storage"
)

// Arbiter settles the race when several drivers accept the same ride. The
// decision itself is one guarded status update on the ride row; everything
// else here is bookkeeping around whichever side of that update the caller
// landed on.
type Arbiter struct {
	rides   storage.RideStore
	offers  storage.OfferStore
	drivers storage.DriverStore
	pay     payments.Gateway
	events  dispatch.Dispatcher
	log     *slog.Logger
}

func New(rides storage.RideStore, offers storage.OfferStore, drivers storage.DriverStore, pay payments.Gateway, events dispatch.Dispatcher, log *slog.Logger) *Arbiter {
	if pay == nil {
		pay = payments.Nop{}
	}
	if events == nil {
		events = dispatch.Nop{}
	}
	return &Arbiter{rides: rides, offers: offers, drivers: drivers, pay: pay, events: events, log: log}
}

// Accept resolves one driver's claim on an offer. Exactly one concurrent
// caller per ride returns the accepted ride; every other caller gets
// models.ErrConflict and their offer is marked superseded. Offers belonging
// to a different driver read as not found.
func (a *Arbiter) Accept(ctx context.Context, driverID, offerID string) (*models.Ride, error) {
	o, err := a.offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.DriverID != driverID {
		return nil, models.ErrNotFound
	}
	drv, err := a.drivers.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	r, err := a.rides.GetRide(ctx, o.RideID)
	if err != nil {
		return nil, err
	}
	if r.Class == models.ClassSafetyVerified && !drv.SafetyVerified {
		return nil, models.ErrUnauthorized
	}

	code, err := otp.Generate()
	if err != nil {
		return nil, err
	}
	won, err := a.rides.Transition(ctx, o.RideID, []models.RideStatus{models.RideOffered}, models.RideAccepted, storage.RideUpdate{DriverID: &driverID, OTP: &code})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			a.lose(ctx, o)
		}
		return nil, err
	}

	observability.AcceptWins.Inc()
	if _, err := a.offers.SetOfferStatus(ctx, o.ID, models.OfferOpen, models.OfferAccepted); err != nil {
		a.log.Warn("winner offer not marked", "offer_id", o.ID, "error", err)
	}
	if err := a.offers.CloseRideOffers(ctx, o.RideID, o.ID, models.OfferSuperseded); err != nil {
		a.log.Warn("sibling offers not closed", "ride_id", o.RideID, "error", err)
	}
	if err := a.drivers.SetCurrentRide(ctx, driverID, o.RideID); err != nil {
		a.log.Warn("current ride not recorded", "driver_id", driverID, "error", err)
	}
	won = a.placeHold(ctx, won)
	a.notifyOutcome(ctx, won, o)
	a.log.Info("ride accepted", "ride_id", won.ID, "driver_id", driverID, "offer_id", o.ID)
	return won, nil
}

// Decline releases one offer without touching the ride; the broadcast keeps
// running for everyone else. Declining twice is a no-op.
func (a *Arbiter) Decline(ctx context.Context, driverID, offerID string) error {
	o, err := a.offers.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if o.DriverID != driverID {
		return models.ErrNotFound
	}
	if _, err := a.offers.SetOfferStatus(ctx, offerID, models.OfferOpen, models.OfferDeclined); err != nil {
		cur, gerr := a.offers.GetOffer(ctx, offerID)
		if gerr == nil && cur.Status == models.OfferDeclined {
			return nil
		}
		return err
	}
	a.log.Info("offer declined", "offer_id", offerID, "driver_id", driverID)
	return nil
}

func (a *Arbiter) lose(ctx context.Context, o *models.Offer) {
	observability.AcceptConflicts.Inc()
	if _, err := a.offers.SetOfferStatus(ctx, o.ID, models.OfferOpen, models.OfferSuperseded); err != nil {
		a.log.Debug("losing offer already settled", "offer_id", o.ID, "error", err)
	}
}

// placeHold reserves the fare. A gateway failure is logged and the ride
// proceeds unfunded; completion retries nothing, settlement is reconciled
// offline.
func (a *Arbiter) placeHold(ctx context.Context, r *models.Ride) *models.Ride {
	if r.FareCents <= 0 {
		return r
	}
	holdID, err := a.pay.Hold(ctx, r.FareCents, "inr", r.RiderID)
	if err != nil {
		a.log.Warn("fare hold failed", "ride_id", r.ID, "error", err)
		return r
	}
	if holdID == "" {
		return r
	}
	updated, err := a.rides.Transition(ctx, r.ID, []models.RideStatus{models.RideAccepted}, models.RideAccepted, storage.RideUpdate{HoldID: &holdID})
	if err != nil {
		a.log.Warn("fare hold not recorded", "ride_id", r.ID, "error", err)
		return r
	}
	return updated
}

func (a *Arbiter) notifyOutcome(ctx context.Context, r *models.Ride, winner *models.Offer) {
	ev := dispatch.Event{Type: dispatch.EventRideAccepted, RideID: r.ID, DriverID: r.DriverID, Status: string(r.Status)}
	if err := a.events.NotifyRider(r.RiderID, ev); err != nil {
		a.log.Debug("rider push skipped", "ride_id", r.ID, "error", err)
	}
	siblings, err := a.offers.OffersForRide(ctx, r.ID)
	if err != nil {
		return
	}
	for _, s := range siblings {
		if s.ID == winner.ID || s.Status != models.OfferSuperseded {
			continue
		}
		closed := dispatch.Event{Type: dispatch.EventOfferClosed, RideID: r.ID, OfferID: s.ID, DriverID: s.DriverID}
		if err := a.events.NotifyDriver(s.DriverID, closed); err != nil {
			a.log.Debug("driver push skipped", "offer_id", s.ID, "error", err)
		}
	}
}
