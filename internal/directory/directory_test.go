package directory

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madhavpai09/velo/internal/logging"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/observability"
	"github.com/madhavpai09/velo/internal/storage"
)

func newDirectory(t *testing.T) (*Directory, *storage.MemoryStore, *time.Time) {
	t.Helper()
	store := storage.NewMemoryStore()
	d := New(store, nil, 120*time.Second, logging.NewLogger("error"))
	now := time.Now()
	d.SetClock(func() time.Time { return now })
	return d, store, &now
}

func TestRegisterAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	d, _, now := newDirectory(t)

	drv, err := d.Register(ctx, "d1", "Asha", models.Coord{Lat: 12.9, Lon: 77.6})
	require.NoError(t, err)
	assert.True(t, drv.Available)
	assert.Equal(t, *now, drv.LastSeen)

	*now = now.Add(90 * time.Second)
	seen, err := d.Heartbeat(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, *now, seen)

	got, err := d.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, *now, got.LastSeen)
}

func TestReRegisterKeepsHistory(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newDirectory(t)

	_, err := d.Register(ctx, "d1", "Asha", models.Coord{})
	require.NoError(t, err)
	require.NoError(t, store.SetVerified(ctx, "d1", true))
	_, err = store.AddRating(ctx, "d1", 5)
	require.NoError(t, err)

	drv, err := d.Register(ctx, "d1", "Asha P", models.Coord{Lat: 1})
	require.NoError(t, err)
	assert.True(t, drv.SafetyVerified)
	assert.Equal(t, 1, drv.RatingCount)
	assert.Equal(t, "Asha P", drv.Name)
}

func TestReRegisterDoesNotInflateOnlineGauge(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newDirectory(t)

	base := testutil.ToFloat64(observability.DriversOnline)

	_, err := d.Register(ctx, "d1", "Asha", models.Coord{})
	require.NoError(t, err)
	assert.InDelta(t, base+1, testutil.ToFloat64(observability.DriversOnline), 0.001)

	// app restart while still online, same driver registers again
	_, err = d.Register(ctx, "d1", "Asha", models.Coord{})
	require.NoError(t, err)
	assert.InDelta(t, base+1, testutil.ToFloat64(observability.DriversOnline), 0.001)

	require.NoError(t, d.SetAvailable(ctx, "d1", false))
	assert.InDelta(t, base, testutil.ToFloat64(observability.DriversOnline), 0.001)

	// coming back through registration counts once more
	_, err = d.Register(ctx, "d1", "Asha", models.Coord{})
	require.NoError(t, err)
	assert.InDelta(t, base+1, testutil.ToFloat64(observability.DriversOnline), 0.001)
}

func TestEligibleFiltersLiveness(t *testing.T) {
	ctx := context.Background()
	d, _, now := newDirectory(t)

	_, err := d.Register(ctx, "live", "A", models.Coord{})
	require.NoError(t, err)
	_, err = d.Register(ctx, "stale", "B", models.Coord{})
	require.NoError(t, err)

	// stale driver goes silent past the timeout
	*now = now.Add(121 * time.Second)
	_, err = d.Heartbeat(ctx, "live")
	require.NoError(t, err)

	got, err := d.Eligible(ctx, models.ClassStandard)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "live", got[0].ID)

	// the stored flag on the stale driver is untouched
	stale, err := d.Get(ctx, "stale")
	require.NoError(t, err)
	assert.True(t, stale.Available)
}

func TestEligibleFiltersAvailabilityAndBusy(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newDirectory(t)

	_, _ = d.Register(ctx, "idle", "A", models.Coord{})
	_, _ = d.Register(ctx, "off", "B", models.Coord{})
	_, _ = d.Register(ctx, "busy", "C", models.Coord{})

	require.NoError(t, d.SetAvailable(ctx, "off", false))
	require.NoError(t, store.SetCurrentRide(ctx, "busy", "r1"))

	got, err := d.Eligible(ctx, models.ClassStandard)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "idle", got[0].ID)
}

func TestEligibleSafetyTier(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newDirectory(t)

	_, _ = d.Register(ctx, "plain", "A", models.Coord{})
	_, _ = d.Register(ctx, "vetted", "B", models.Coord{})
	require.NoError(t, d.SetVerified(ctx, "vetted", true))

	got, err := d.Eligible(ctx, models.ClassSafetyVerified)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "vetted", got[0].ID)

	// standard rides reach both
	got, err = d.Eligible(ctx, models.ClassStandard)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRateBounds(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newDirectory(t)
	_, _ = d.Register(ctx, "d1", "A", models.Coord{})

	_, err := d.Rate(ctx, "d1", 0)
	assert.Error(t, err)
	_, err = d.Rate(ctx, "d1", 6)
	assert.Error(t, err)

	drv, err := d.Rate(ctx, "d1", 4)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, drv.Rating, 0.001)

	drv, err = d.Rate(ctx, "d1", 2)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, drv.Rating, 0.001)
}
