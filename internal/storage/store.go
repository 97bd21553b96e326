package storage

import (
	"context"
	"time"

	"github.com/madhavpai09/velo/internal/models"
)

// RideUpdate carries the fields a transition may bind along with the status
// change. Nil fields are left untouched.
type RideUpdate struct {
	DriverID      *string
	OTP           *string
	OTPVerified   *bool
	HoldID        *string
	Rating        *int
	OfferDeadline *time.Time
}

// RideStore persists rides. Transition is the arbitration primitive: it moves
// a ride to a new status if and only if the current status is one of `from`,
// atomically with the field updates, and returns models.ErrConflict when the
// guard fails. Both implementations make this a single serialized step, so
// concurrent accept attempts resolve to exactly one winner.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	Transition(ctx context.Context, id string, from []models.RideStatus, to models.RideStatus, upd RideUpdate) (*models.Ride, error)
	// VerifyOTP advances accepted -> in_progress iff the stored code matches
	// exactly; any other state or code yields models.ErrInvalidOTP.
	VerifyOTP(ctx context.Context, id, code string) (*models.Ride, error)
	ActiveRideForRider(ctx context.Context, riderID string) (*models.Ride, error)
	RidesByStatus(ctx context.Context, statuses ...models.RideStatus) ([]*models.Ride, error)
}

// OfferStore keeps the audit trail of who was offered what and when.
type OfferStore interface {
	CreateOffer(ctx context.Context, o *models.Offer) error
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	OffersForRide(ctx context.Context, rideID string) ([]*models.Offer, error)
	// OpenOfferForDriver returns the newest still-open offer for the driver,
	// or models.ErrNotFound.
	OpenOfferForDriver(ctx context.Context, driverID string) (*models.Offer, error)
	// SetOfferStatus is guarded the same way Transition is.
	SetOfferStatus(ctx context.Context, id string, from, to models.OfferStatus) (*models.Offer, error)
	// CloseRideOffers moves every still-open offer for the ride (optionally
	// sparing one) to the given terminal status.
	CloseRideOffers(ctx context.Context, rideID, exceptOfferID string, to models.OfferStatus) error
}

// DriverStore persists driver records. Every mutation that proves the
// driver's client is alive carries the observation time for last_seen.
type DriverStore interface {
	PutDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	ListDrivers(ctx context.Context) ([]*models.Driver, error)
	SetAvailability(ctx context.Context, id string, available bool, seen time.Time) error
	SetLocation(ctx context.Context, id string, c models.Coord, seen time.Time) error
	Touch(ctx context.Context, id string, seen time.Time) error
	SetCurrentRide(ctx context.Context, id, rideID string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	AddRating(ctx context.Context, id string, rating int) (*models.Driver, error)
}

// SchoolStore persists the school-pool catalog and subscriptions.
type SchoolStore interface {
	PutSchool(ctx context.Context, s *models.School) error
	PutRoute(ctx context.Context, r *models.Route) error
	PutStop(ctx context.Context, s *models.Stop) error
	ListSchools(ctx context.Context) ([]*models.School, error)
	GetRoute(ctx context.Context, id string) (*models.Route, error)
	RoutesForSchool(ctx context.Context, schoolID string) ([]*models.Route, error)
	StopsForRoute(ctx context.Context, routeID string) ([]*models.Stop, error)
	SetRouteDriver(ctx context.Context, routeID, driverID string) error
	AdjustRouteOccupancy(ctx context.Context, routeID string, delta int) error

	CreateStudent(ctx context.Context, s *models.Student) error
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	StudentsForUser(ctx context.Context, userID string) ([]*models.Student, error)

	CreateSubscription(ctx context.Context, s *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, s *models.Subscription) error
	SubscriptionsForRider(ctx context.Context, riderID string) ([]*models.Subscription, error)
	// ActiveSubscriptionForStudent returns models.ErrNotFound when the
	// student has no active subscription.
	ActiveSubscriptionForStudent(ctx context.Context, studentID string) (*models.Subscription, error)
}

// Store is the full registry surface the engine is wired against.
type Store interface {
	RideStore
	OfferStore
	DriverStore
	SchoolStore
}
