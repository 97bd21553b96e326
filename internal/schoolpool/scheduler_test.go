package schoolpool

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/madhavpai09/velo/internal/directory"
	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/logging"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/storage"
)

type env struct {
	store *storage.MemoryStore
	dir   *directory.Directory
	sched *Scheduler
	now   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logging.NewLogger("error")
	e := &env{
		store: storage.NewMemoryStore(),
		now:   time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }
	e.dir = directory.New(e.store, nil, 120*time.Second, log)
	e.dir.SetClock(clock)
	e.sched = New(e.store, e.dir, dispatch.Nop{}, log)
	e.sched.SetClock(clock)
	return e
}

func (e *env) seedCatalog(t *testing.T, capacity int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.PutSchool(ctx, &models.School{ID: "sch-1", Name: "National Public School", City: "Bengaluru"}))
	require.NoError(t, e.store.PutRoute(ctx, &models.Route{ID: "rt-1", SchoolID: "sch-1", Name: "Indiranagar loop", StartTime: "07:30", Capacity: capacity}))
	require.NoError(t, e.store.PutStop(ctx, &models.Stop{ID: "stop-1", RouteID: "rt-1", Order: 1, Name: "100 Feet Road"}))
	require.NoError(t, e.store.PutStop(ctx, &models.Stop{ID: "stop-2", RouteID: "rt-1", Order: 2, Name: "Domlur"}))
}

func (e *env) seedVerifiedDriver(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.dir.Register(ctx, id, "driver "+id, models.Coord{Lat: 12.97, Lon: 77.64})
	require.NoError(t, err)
	require.NoError(t, e.dir.SetVerified(ctx, id, true))
}

func (e *env) addStudent(t *testing.T, userID, name string) *models.Student {
	t.Helper()
	st, err := e.sched.AddStudent(context.Background(), userID, name, "National Public School", "4")
	require.NoError(t, err)
	return st
}

func TestAddStudentCapPerAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < models.MaxStudentsPerAccount; i++ {
		_, err := e.sched.AddStudent(ctx, "parent-1", fmt.Sprintf("kid %d", i), "NPS", "3")
		require.NoError(t, err)
	}
	_, err := e.sched.AddStudent(ctx, "parent-1", "one too many", "NPS", "3")
	require.ErrorIs(t, err, models.ErrCapacityExceeded)

	// A different account is unaffected.
	_, err = e.sched.AddStudent(ctx, "parent-2", "kid", "NPS", "3")
	require.NoError(t, err)
}

func TestSubscribeTakesSeatAndIssuesDayCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedCatalog(t, 10)
	e.seedVerifiedDriver(t, "drv-1")
	st := e.addStudent(t, "parent-1", "Asha")

	sub, err := e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionActive, sub.Status)
	require.Equal(t, "drv-1", sub.DriverID)
	require.Len(t, sub.DayOTP, 4)
	require.Equal(t, "2025-06-02", sub.DayOTPDate)

	route, err := e.store.GetRoute(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, 1, route.Occupancy)
	require.Equal(t, "drv-1", route.DriverID)
}

func TestSubscribeGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedCatalog(t, 1)
	st := e.addStudent(t, "parent-1", "Asha")

	_, err := e.sched.Subscribe(ctx, "someone-else", st.ID, "rt-1", "stop-1")
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "no-such-stop")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.NoError(t, err)

	_, err = e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.ErrorIs(t, err, models.ErrAlreadySubscribed)

	// Route is now full for everyone else.
	other := e.addStudent(t, "parent-2", "Ravi")
	_, err = e.sched.Subscribe(ctx, "parent-2", other.ID, "rt-1", "stop-2")
	require.ErrorIs(t, err, models.ErrCapacityExceeded)
}

func TestDayCodeRotatesAcrossServiceDays(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedCatalog(t, 10)
	st := e.addStudent(t, "parent-1", "Asha")

	sub, err := e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.NoError(t, err)
	day1 := sub.DayOTP

	_, err = e.sched.VerifyPickup(ctx, sub.ID, day1)
	require.NoError(t, err)

	e.now = e.now.Add(24 * time.Hour)
	got, err := e.sched.Subscription(ctx, "parent-1", sub.ID)
	require.NoError(t, err)
	require.Equal(t, "2025-06-03", got.DayOTPDate)
	require.Empty(t, got.PickupVerifiedOn)
	require.Len(t, got.DayOTP, 4)
}

func TestVerifyPickupContract(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedCatalog(t, 10)
	st := e.addStudent(t, "parent-1", "Asha")

	sub, err := e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.NoError(t, err)

	_, err = e.sched.VerifyPickup(ctx, sub.ID, "0000")
	require.ErrorIs(t, err, models.ErrInvalidOTP)

	got, err := e.sched.VerifyPickup(ctx, sub.ID, sub.DayOTP)
	require.NoError(t, err)
	require.Equal(t, "2025-06-02", got.PickupVerifiedOn)

	// Same code, same day: already used.
	_, err = e.sched.VerifyPickup(ctx, sub.ID, sub.DayOTP)
	require.ErrorIs(t, err, models.ErrInvalidOTP)

	// Yesterday's code is dead the next morning.
	e.now = e.now.Add(24 * time.Hour)
	_, err = e.sched.VerifyPickup(ctx, sub.ID, sub.DayOTP)
	require.ErrorIs(t, err, models.ErrInvalidOTP)
}

func TestCancelFreesSeat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedCatalog(t, 1)
	st := e.addStudent(t, "parent-1", "Asha")

	sub, err := e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.NoError(t, err)

	cancelled, err := e.sched.Cancel(ctx, "parent-1", sub.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionCancelled, cancelled.Status)

	_, err = e.sched.Cancel(ctx, "parent-1", sub.ID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	route, err := e.store.GetRoute(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, 0, route.Occupancy)

	// The freed seat can be taken again, including by the same student.
	_, err = e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.NoError(t, err)
}

func TestDriverAssignmentRetriesLazily(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedCatalog(t, 10)
	st := e.addStudent(t, "parent-1", "Asha")

	// Nobody safety-verified yet: subscription starts unassigned.
	sub, err := e.sched.Subscribe(ctx, "parent-1", st.ID, "rt-1", "stop-1")
	require.NoError(t, err)
	require.Empty(t, sub.DriverID)

	e.seedVerifiedDriver(t, "drv-1")
	got, err := e.sched.Subscription(ctx, "parent-1", sub.ID)
	require.NoError(t, err)
	require.Equal(t, "drv-1", got.DriverID)

	route, err := e.store.GetRoute(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, "drv-1", route.DriverID)

	// A second family on the same route sees the same driver.
	other := e.addStudent(t, "parent-2", "Ravi")
	sub2, err := e.sched.Subscribe(ctx, "parent-2", other.ID, "rt-1", "stop-2")
	require.NoError(t, err)
	require.Equal(t, "drv-1", sub2.DriverID)
}
