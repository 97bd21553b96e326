package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/madhavpai09/velo/internal/geo"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/observability"
	"github.com/madhavpai09/velo/internal/storage"
)

// Directory tracks driver identity, location, availability and liveness.
// Liveness is a read-time filter over last_seen: a silent driver drops out of
// eligibility queries but its stored availability flag is never rewritten, so
// a brief network gap cannot lose the driver's intended online state.
type Directory struct {
	store           storage.DriverStore
	index           geo.Index // may be nil; mirror of driver positions
	livenessTimeout time.Duration
	now             func() time.Time
	log             *slog.Logger
}

func New(store storage.DriverStore, index geo.Index, livenessTimeout time.Duration, log *slog.Logger) *Directory {
	return &Directory{
		store:           store,
		index:           index,
		livenessTimeout: livenessTimeout,
		now:             time.Now,
		log:             log,
	}
}

// SetClock overrides the time source; tests use it to age drivers out.
func (d *Directory) SetClock(now func() time.Time) { d.now = now }

// Register creates the driver or, for a returning driver, refreshes name,
// location and availability while keeping rating history and verification.
func (d *Directory) Register(ctx context.Context, id, name string, loc models.Coord) (*models.Driver, error) {
	now := d.now()
	drv := &models.Driver{
		ID:        id,
		Name:      name,
		Loc:       loc,
		Available: true,
		LastSeen:  now,
		CreatedAt: now,
	}
	wasOnline := false
	if existing, err := d.store.GetDriver(ctx, id); err == nil {
		drv.SafetyVerified = existing.SafetyVerified
		drv.CurrentRideID = existing.CurrentRideID
		drv.Rating = existing.Rating
		drv.RatingCount = existing.RatingCount
		drv.CreatedAt = existing.CreatedAt
		wasOnline = existing.Available
	}
	if err := d.store.PutDriver(ctx, drv); err != nil {
		return nil, err
	}
	if d.index != nil {
		if err := d.index.Upsert(ctx, id, loc); err != nil {
			d.log.Warn("geo upsert failed", "driver_id", id, "error", err)
		}
	}
	observability.DriversRegistered.Inc()
	if !wasOnline {
		observability.DriversOnline.Inc()
	}
	d.log.Info("driver registered", "driver_id", id)
	return drv, nil
}

func (d *Directory) Get(ctx context.Context, id string) (*models.Driver, error) {
	return d.store.GetDriver(ctx, id)
}

// SetAvailable flips the driver-owned availability flag. This is the only
// writer of that flag besides registration.
func (d *Directory) SetAvailable(ctx context.Context, id string, available bool) error {
	prev, err := d.store.GetDriver(ctx, id)
	if err != nil {
		return err
	}
	if err := d.store.SetAvailability(ctx, id, available, d.now()); err != nil {
		return err
	}
	if prev.Available != available {
		if available {
			observability.DriversOnline.Inc()
		} else {
			observability.DriversOnline.Dec()
		}
	}
	return nil
}

func (d *Directory) UpdateLocation(ctx context.Context, id string, loc models.Coord) error {
	if err := d.store.SetLocation(ctx, id, loc, d.now()); err != nil {
		return err
	}
	if d.index != nil {
		if err := d.index.Upsert(ctx, id, loc); err != nil {
			d.log.Warn("geo upsert failed", "driver_id", id, "error", err)
		}
	}
	return nil
}

// Heartbeat refreshes last_seen and returns the timestamp recorded, so the
// client can display its own staleness.
func (d *Directory) Heartbeat(ctx context.Context, id string) (time.Time, error) {
	now := d.now()
	if err := d.store.Touch(ctx, id, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// SetVerified grants or revokes the safety tier. Admin-only path.
func (d *Directory) SetVerified(ctx context.Context, id string, verified bool) error {
	return d.store.SetVerified(ctx, id, verified)
}

// Rate folds one ride rating into the driver's running average.
func (d *Directory) Rate(ctx context.Context, id string, rating int) (*models.Driver, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating %d out of range: %w", rating, models.ErrInvalidTransition)
	}
	return d.store.AddRating(ctx, id, rating)
}

// Eligible returns the drivers a pending ride of the given class may be
// offered to: available, live, idle, and safety-verified when the class
// demands it.
func (d *Directory) Eligible(ctx context.Context, class models.RideClass) ([]*models.Driver, error) {
	all, err := d.store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	now := d.now()
	out := make([]*models.Driver, 0, len(all))
	for _, drv := range all {
		if !drv.Available || drv.CurrentRideID != "" {
			continue
		}
		if !drv.Live(now, d.livenessTimeout) {
			continue
		}
		if class == models.ClassSafetyVerified && !drv.SafetyVerified {
			continue
		}
		out = append(out, drv)
	}
	return out, nil
}
