package schoolpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/madhavpai09/velo/internal/directory"
	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/observability"
	"github.com/madhavpai09/velo/internal/otp"
	"github.com/madhavpai09/velo/internal/storage"
)

const dayLayout = "2006-01-02"

// Scheduler runs the recurring school-pool side: student profiles, route
// subscriptions with seat accounting, a driver assignment that persists
// across days, and a per-service-day pickup OTP. Unlike ad-hoc rides there
// is no broadcast; the route's driver is fixed once found.
type Scheduler struct {
	store  storage.SchoolStore
	dir    *directory.Directory
	events dispatch.Dispatcher
	now    func() time.Time
	log    *slog.Logger
}

func New(store storage.SchoolStore, dir *directory.Directory, events dispatch.Dispatcher, log *slog.Logger) *Scheduler {
	if events == nil {
		events = dispatch.Nop{}
	}
	return &Scheduler{store: store, dir: dir, events: events, now: time.Now, log: log}
}

// SetClock overrides the time source for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Schools lists the catalog.
func (s *Scheduler) Schools(ctx context.Context) ([]*models.School, error) {
	return s.store.ListSchools(ctx)
}

// RouteDetail pairs a route with its ordered stops and remaining seats.
type RouteDetail struct {
	Route     *models.Route  `json:"route"`
	Stops     []*models.Stop `json:"stops"`
	SeatsLeft int            `json:"seats_left"`
}

// Routes lists a school's routes with stops and seat availability.
func (s *Scheduler) Routes(ctx context.Context, schoolID string) ([]*RouteDetail, error) {
	routes, err := s.store.RoutesForSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	out := make([]*RouteDetail, 0, len(routes))
	for _, r := range routes {
		stops, err := s.store.StopsForRoute(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &RouteDetail{Route: r, Stops: stops, SeatsLeft: r.Capacity - r.Occupancy})
	}
	return out, nil
}

// AddStudent creates a student profile under the account, up to
// models.MaxStudentsPerAccount.
func (s *Scheduler) AddStudent(ctx context.Context, userID, name, school, grade string) (*models.Student, error) {
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user_id and name required", models.ErrValidation)
	}
	existing, err := s.store.StudentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= models.MaxStudentsPerAccount {
		return nil, fmt.Errorf("%w: at most %d students per account", models.ErrCapacityExceeded, models.MaxStudentsPerAccount)
	}
	st := &models.Student{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		School:    school,
		Grade:     grade,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateStudent(ctx, st); err != nil {
		return nil, err
	}
	s.log.Info("student added", "student_id", st.ID, "user_id", userID)
	return st, nil
}

// Students lists the account's student profiles.
func (s *Scheduler) Students(ctx context.Context, userID string) ([]*models.Student, error) {
	return s.store.StudentsForUser(ctx, userID)
}

// Subscribe books one seat on a route for a student. The seat is taken with
// a guarded occupancy bump, so two parents racing for the last seat cannot
// both win. The student must belong to the caller and must not already hold
// an active subscription.
func (s *Scheduler) Subscribe(ctx context.Context, riderID, studentID, routeID, stopID string) (*models.Subscription, error) {
	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if st.UserID != riderID {
		return nil, models.ErrUnauthorized
	}
	if _, err := s.store.ActiveSubscriptionForStudent(ctx, studentID); err == nil {
		return nil, fmt.Errorf("%w: student %s", models.ErrAlreadySubscribed, studentID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	route, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if stopID != "" {
		if err := s.checkStop(ctx, routeID, stopID); err != nil {
			return nil, err
		}
	}

	if err := s.store.AdjustRouteOccupancy(ctx, routeID, 1); err != nil {
		return nil, err
	}

	now := s.now()
	code, err := otp.Generate()
	if err != nil {
		s.release(ctx, routeID)
		return nil, err
	}
	sub := &models.Subscription{
		ID:         uuid.NewString(),
		RiderID:    riderID,
		StudentID:  studentID,
		RouteID:    routeID,
		StopID:     stopID,
		DriverID:   route.DriverID,
		Status:     models.SubscriptionActive,
		DayOTP:     code,
		DayOTPDate: now.Format(dayLayout),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if sub.DriverID == "" {
		sub.DriverID = s.assignDriver(ctx, routeID)
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		s.release(ctx, routeID)
		return nil, err
	}
	observability.SubscriptionsActive.Inc()
	s.log.Info("subscription created", "subscription_id", sub.ID, "route_id", routeID, "student_id", studentID)
	return sub, nil
}

// Subscription returns the subscription after rolling its OTP onto the
// current service day. The code rotates lazily: the first read of a new day
// issues a fresh one and clears the previous day's pickup mark.
func (s *Scheduler) Subscription(ctx context.Context, riderID, id string) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.RiderID != riderID {
		return nil, models.ErrUnauthorized
	}
	if sub.Status != models.SubscriptionActive {
		return sub, nil
	}

	changed := false
	today := s.now().Format(dayLayout)
	if sub.DayOTPDate != today {
		code, err := otp.Generate()
		if err != nil {
			return nil, err
		}
		sub.DayOTP = code
		sub.DayOTPDate = today
		sub.PickupVerifiedOn = ""
		changed = true
	}
	if sub.DriverID == "" {
		if id := s.assignDriver(ctx, sub.RouteID); id != "" {
			sub.DriverID = id
			changed = true
		}
	}
	if changed {
		sub.UpdatedAt = s.now()
		if err := s.store.UpdateSubscription(ctx, sub); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// Subscriptions lists the rider's subscriptions, newest first.
func (s *Scheduler) Subscriptions(ctx context.Context, riderID string) ([]*models.Subscription, error) {
	return s.store.SubscriptionsForRider(ctx, riderID)
}

// DayCode exposes today's pickup code to the subscription owner.
func (s *Scheduler) DayCode(ctx context.Context, riderID, id string) (string, error) {
	sub, err := s.Subscription(ctx, riderID, id)
	if err != nil {
		return "", err
	}
	if sub.Status != models.SubscriptionActive {
		return "", fmt.Errorf("%w: subscription is %s", models.ErrInvalidTransition, sub.Status)
	}
	return sub.DayOTP, nil
}

// Cancel ends a subscription and frees its seat. The record is kept for
// history; cancelling twice is refused.
func (s *Scheduler) Cancel(ctx context.Context, riderID, id string) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.RiderID != riderID {
		return nil, models.ErrUnauthorized
	}
	if sub.Status != models.SubscriptionActive {
		return nil, fmt.Errorf("%w: subscription is %s", models.ErrInvalidTransition, sub.Status)
	}
	sub.Status = models.SubscriptionCancelled
	sub.UpdatedAt = s.now()
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.release(ctx, sub.RouteID)
	observability.SubscriptionsActive.Dec()
	s.log.Info("subscription cancelled", "subscription_id", id)
	return sub, nil
}

// VerifyPickup is the driver-side check at the stop: today's code, exact
// match, at most once per service day.
func (s *Scheduler) VerifyPickup(ctx context.Context, id, code string) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionActive {
		return nil, models.ErrInvalidOTP
	}
	today := s.now().Format(dayLayout)
	if sub.DayOTPDate != today || sub.DayOTP == "" || sub.DayOTP != code {
		return nil, models.ErrInvalidOTP
	}
	if sub.PickupVerifiedOn == today {
		return nil, models.ErrInvalidOTP
	}
	sub.PickupVerifiedOn = today
	sub.UpdatedAt = s.now()
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	ev := dispatch.Event{Type: dispatch.EventPickupVerified, RiderID: sub.RiderID, DriverID: sub.DriverID}
	if err := s.events.NotifyRider(sub.RiderID, ev); err != nil {
		s.log.Debug("rider push skipped", "subscription_id", id, "error", err)
	}
	s.log.Info("pickup verified", "subscription_id", id, "day", today)
	return sub, nil
}

// assignDriver picks a safety-verified driver for the route and pins it so
// families see the same face every day. Best effort: with nobody eligible
// the route stays unassigned and the next read retries.
func (s *Scheduler) assignDriver(ctx context.Context, routeID string) string {
	route, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return ""
	}
	if route.DriverID != "" {
		return route.DriverID
	}
	eligible, err := s.dir.Eligible(ctx, models.ClassSafetyVerified)
	if err != nil || len(eligible) == 0 {
		return ""
	}
	drv := eligible[0]
	if err := s.store.SetRouteDriver(ctx, routeID, drv.ID); err != nil {
		s.log.Warn("route driver not pinned", "route_id", routeID, "error", err)
		return ""
	}
	s.log.Info("route driver assigned", "route_id", routeID, "driver_id", drv.ID)
	return drv.ID
}

func (s *Scheduler) checkStop(ctx context.Context, routeID, stopID string) error {
	stops, err := s.store.StopsForRoute(ctx, routeID)
	if err != nil {
		return err
	}
	for _, st := range stops {
		if st.ID == stopID {
			return nil
		}
	}
	return fmt.Errorf("%w: stop %s not on route %s", models.ErrValidation, stopID, routeID)
}

func (s *Scheduler) release(ctx context.Context, routeID string) {
	if err := s.store.AdjustRouteOccupancy(ctx, routeID, -1); err != nil {
		s.log.Warn("seat not released", "route_id", routeID, "error", err)
	}
}
