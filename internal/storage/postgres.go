package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/madhavpai09/velo/internal/models"
)

// PostgresStore backs the registry with Postgres. The ride status column is
// the arbitration guard: Transition issues a single guarded UPDATE, so the
// database serializes concurrent accept attempts and at most one sees a row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// ---- rides ----

const rideCols = `id, rider_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, class, fare_cents,
	status, driver_id, otp, otp_verified, hold_id, rating, offer_deadline, created_at, updated_at`

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.RiderID, r.Pickup.Lat, r.Pickup.Lon, r.Dropoff.Lat, r.Dropoff.Lon, r.Class, r.FareCents,
		r.Status, r.DriverID, r.OTP, r.OTPVerified, r.HoldID, r.Rating, r.OfferDeadline, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	r, err := scanRide(p.db.QueryRowContext(ctx, `SELECT `+rideCols+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
	}
	return r, err
}

func (p *PostgresStore) Transition(ctx context.Context, id string, from []models.RideStatus, to models.RideStatus, upd RideUpdate) (*models.Ride, error) {
	set := []string{"status = $1", "updated_at = now()"}
	args := []interface{}{string(to)}
	n := 2
	add := func(col string, v interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
		n++
	}
	if upd.DriverID != nil {
		add("driver_id", *upd.DriverID)
	}
	if upd.OTP != nil {
		add("otp", *upd.OTP)
	}
	if upd.OTPVerified != nil {
		add("otp_verified", *upd.OTPVerified)
	}
	if upd.HoldID != nil {
		add("hold_id", *upd.HoldID)
	}
	if upd.Rating != nil {
		add("rating", *upd.Rating)
	}
	if upd.OfferDeadline != nil {
		add("offer_deadline", *upd.OfferDeadline)
	}
	args = append(args, id, pq.Array(statusStrings(from)))
	q := fmt.Sprintf(`UPDATE rides SET %s WHERE id = $%d AND status = ANY($%d) RETURNING %s`,
		strings.Join(set, ", "), n, n+1, rideCols)

	r, err := scanRide(p.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, p.classifyRideMiss(ctx, id)
	}
	return r, err
}

func (p *PostgresStore) VerifyOTP(ctx context.Context, id, code string) (*models.Ride, error) {
	r, err := scanRide(p.db.QueryRowContext(ctx, `UPDATE rides
		SET status = $1, otp_verified = TRUE, updated_at = now()
		WHERE id = $2 AND status = $3 AND otp <> '' AND otp = $4
		RETURNING `+rideCols,
		models.RideInProgress, id, models.RideAccepted, code))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if scanErr := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); scanErr != nil {
			return nil, scanErr
		}
		if !exists {
			return nil, fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrInvalidOTP)
	}
	return r, err
}

func (p *PostgresStore) ActiveRideForRider(ctx context.Context, riderID string) (*models.Ride, error) {
	r, err := scanRide(p.db.QueryRowContext(ctx, `SELECT `+rideCols+` FROM rides
		WHERE rider_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1`,
		riderID, pq.Array(statusStrings([]models.RideStatus{
			models.RidePending, models.RideOffered, models.RideAccepted, models.RideInProgress,
		}))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rider %s: %w", riderID, models.ErrNotFound)
	}
	return r, err
}

func (p *PostgresStore) RidesByStatus(ctx context.Context, statuses ...models.RideStatus) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideCols+` FROM rides WHERE status = ANY($1) ORDER BY created_at`,
		pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) classifyRideMiss(ctx context.Context, id string) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
	}
	return fmt.Errorf("ride %s: %w", id, models.ErrConflict)
}

// ---- offers ----

const offerCols = `id, ride_id, driver_id, status, eta_seconds, created_at, updated_at`

func (p *PostgresStore) CreateOffer(ctx context.Context, o *models.Offer) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO offers(`+offerCols+`) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.RideID, o.DriverID, o.Status, o.ETASeconds, o.CreatedAt, o.UpdatedAt)
	return err
}

func (p *PostgresStore) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	o, err := scanOffer(p.db.QueryRowContext(ctx, `SELECT `+offerCols+` FROM offers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("offer %s: %w", id, models.ErrNotFound)
	}
	return o, err
}

func (p *PostgresStore) OffersForRide(ctx context.Context, rideID string) ([]*models.Offer, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+offerCols+` FROM offers WHERE ride_id = $1 ORDER BY created_at`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) OpenOfferForDriver(ctx context.Context, driverID string) (*models.Offer, error) {
	o, err := scanOffer(p.db.QueryRowContext(ctx, `SELECT `+offerCols+` FROM offers
		WHERE driver_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		driverID, models.OfferOpen))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver %s: %w", driverID, models.ErrNotFound)
	}
	return o, err
}

func (p *PostgresStore) SetOfferStatus(ctx context.Context, id string, from, to models.OfferStatus) (*models.Offer, error) {
	o, err := scanOffer(p.db.QueryRowContext(ctx, `UPDATE offers SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3 RETURNING `+offerCols, to, id, from))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if scanErr := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM offers WHERE id = $1)`, id).Scan(&exists); scanErr != nil {
			return nil, scanErr
		}
		if !exists {
			return nil, fmt.Errorf("offer %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("offer %s: %w", id, models.ErrConflict)
	}
	return o, err
}

func (p *PostgresStore) CloseRideOffers(ctx context.Context, rideID, exceptOfferID string, to models.OfferStatus) error {
	_, err := p.db.ExecContext(ctx, `UPDATE offers SET status = $1, updated_at = now()
		WHERE ride_id = $2 AND id <> $3 AND status = $4`,
		to, rideID, exceptOfferID, models.OfferOpen)
	return err
}

// ---- drivers ----

const driverCols = `id, name, lat, lon, available, safety_verified, current_ride_id, rating, rating_count, last_seen, created_at`

func (p *PostgresStore) PutDriver(ctx context.Context, d *models.Driver) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO drivers(`+driverCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, lat = EXCLUDED.lat, lon = EXCLUDED.lon,
			available = EXCLUDED.available, last_seen = EXCLUDED.last_seen`,
		d.ID, d.Name, d.Loc.Lat, d.Loc.Lon, d.Available, d.SafetyVerified, d.CurrentRideID,
		d.Rating, d.RatingCount, d.LastSeen, d.CreatedAt)
	return err
}

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	d, err := scanDriver(p.db.QueryRowContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver %s: %w", id, models.ErrNotFound)
	}
	return d, err
}

func (p *PostgresStore) ListDrivers(ctx context.Context) ([]*models.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+driverCols+` FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetAvailability(ctx context.Context, id string, available bool, seen time.Time) error {
	return p.execDriver(ctx, id, `UPDATE drivers SET available = $2, last_seen = $3 WHERE id = $1`, id, available, seen)
}

func (p *PostgresStore) SetLocation(ctx context.Context, id string, c models.Coord, seen time.Time) error {
	return p.execDriver(ctx, id, `UPDATE drivers SET lat = $2, lon = $3, last_seen = $4 WHERE id = $1`, id, c.Lat, c.Lon, seen)
}

func (p *PostgresStore) Touch(ctx context.Context, id string, seen time.Time) error {
	return p.execDriver(ctx, id, `UPDATE drivers SET last_seen = $2 WHERE id = $1`, id, seen)
}

func (p *PostgresStore) SetCurrentRide(ctx context.Context, id, rideID string) error {
	return p.execDriver(ctx, id, `UPDATE drivers SET current_ride_id = $2 WHERE id = $1`, id, rideID)
}

func (p *PostgresStore) SetVerified(ctx context.Context, id string, verified bool) error {
	return p.execDriver(ctx, id, `UPDATE drivers SET safety_verified = $2 WHERE id = $1`, id, verified)
}

func (p *PostgresStore) AddRating(ctx context.Context, id string, rating int) (*models.Driver, error) {
	d, err := scanDriver(p.db.QueryRowContext(ctx, `UPDATE drivers
		SET rating = (rating * rating_count + $2) / (rating_count + 1), rating_count = rating_count + 1
		WHERE id = $1 RETURNING `+driverCols, id, float64(rating)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver %s: %w", id, models.ErrNotFound)
	}
	return d, err
}

func (p *PostgresStore) execDriver(ctx context.Context, id, q string, args ...interface{}) error {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("driver %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ---- school pool ----

func (p *PostgresStore) PutSchool(ctx context.Context, s *models.School) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO schools(id, name, address, city, lat, lon)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, city = EXCLUDED.city`,
		s.ID, s.Name, s.Address, s.City, s.Loc.Lat, s.Loc.Lon)
	return err
}

func (p *PostgresStore) PutRoute(ctx context.Context, r *models.Route) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO routes(id, school_id, name, start_time, capacity, occupancy, driver_id)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, start_time = EXCLUDED.start_time, capacity = EXCLUDED.capacity`,
		r.ID, r.SchoolID, r.Name, r.StartTime, r.Capacity, r.Occupancy, r.DriverID)
	return err
}

func (p *PostgresStore) PutStop(ctx context.Context, s *models.Stop) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO stops(id, route_id, stop_order, name, lat, lon, eta_offset_min)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET stop_order = EXCLUDED.stop_order, name = EXCLUDED.name`,
		s.ID, s.RouteID, s.Order, s.Name, s.Loc.Lat, s.Loc.Lon, s.ETAOffsetMin)
	return err
}

func (p *PostgresStore) ListSchools(ctx context.Context) ([]*models.School, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, address, city, lat, lon FROM schools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.School
	for rows.Next() {
		var s models.School
		if err := rows.Scan(&s.ID, &s.Name, &s.Address, &s.City, &s.Loc.Lat, &s.Loc.Lon); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	var r models.Route
	err := p.db.QueryRowContext(ctx, `SELECT id, school_id, name, start_time, capacity, occupancy, driver_id
		FROM routes WHERE id = $1`, id).
		Scan(&r.ID, &r.SchoolID, &r.Name, &r.StartTime, &r.Capacity, &r.Occupancy, &r.DriverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) RoutesForSchool(ctx context.Context, schoolID string) ([]*models.Route, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, school_id, name, start_time, capacity, occupancy, driver_id
		FROM routes WHERE school_id = $1 ORDER BY name`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Route
	for rows.Next() {
		var r models.Route
		if err := rows.Scan(&r.ID, &r.SchoolID, &r.Name, &r.StartTime, &r.Capacity, &r.Occupancy, &r.DriverID); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) StopsForRoute(ctx context.Context, routeID string) ([]*models.Stop, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, route_id, stop_order, name, lat, lon, eta_offset_min
		FROM stops WHERE route_id = $1 ORDER BY stop_order`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Stop
	for rows.Next() {
		var s models.Stop
		if err := rows.Scan(&s.ID, &s.RouteID, &s.Order, &s.Name, &s.Loc.Lat, &s.Loc.Lon, &s.ETAOffsetMin); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetRouteDriver(ctx context.Context, routeID, driverID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE routes SET driver_id = $2 WHERE id = $1`, routeID, driverID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("route %s: %w", routeID, models.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) AdjustRouteOccupancy(ctx context.Context, routeID string, delta int) error {
	res, err := p.db.ExecContext(ctx, `UPDATE routes
		SET occupancy = GREATEST(occupancy + $2, 0)
		WHERE id = $1 AND occupancy + $2 <= capacity`, routeID, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM routes WHERE id = $1)`, routeID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("route %s: %w", routeID, models.ErrNotFound)
		}
		return fmt.Errorf("route %s full: %w", routeID, models.ErrCapacityExceeded)
	}
	return nil
}

func (p *PostgresStore) CreateStudent(ctx context.Context, s *models.Student) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO students(id, user_id, name, school, grade, created_at)
		VALUES($1,$2,$3,$4,$5,$6)`, s.ID, s.UserID, s.Name, s.School, s.Grade, s.CreatedAt)
	return err
}

func (p *PostgresStore) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var s models.Student
	err := p.db.QueryRowContext(ctx, `SELECT id, user_id, name, school, grade, created_at FROM students WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.Name, &s.School, &s.Grade, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) StudentsForUser(ctx context.Context, userID string) ([]*models.Student, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, user_id, name, school, grade, created_at
		FROM students WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.School, &s.Grade, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

const subCols = `id, rider_id, student_id, route_id, stop_id, driver_id, status, day_otp, day_otp_date, pickup_verified_on, created_at, updated_at`

func (p *PostgresStore) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions(`+subCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		s.ID, s.RiderID, s.StudentID, s.RouteID, s.StopID, s.DriverID, s.Status,
		s.DayOTP, s.DayOTPDate, s.PickupVerifiedOn, s.CreatedAt, s.UpdatedAt)
	return err
}

func (p *PostgresStore) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	s, err := scanSubscription(p.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", id, models.ErrNotFound)
	}
	return s, err
}

func (p *PostgresStore) UpdateSubscription(ctx context.Context, s *models.Subscription) error {
	res, err := p.db.ExecContext(ctx, `UPDATE subscriptions
		SET driver_id = $2, status = $3, day_otp = $4, day_otp_date = $5, pickup_verified_on = $6, updated_at = now()
		WHERE id = $1`,
		s.ID, s.DriverID, s.Status, s.DayOTP, s.DayOTPDate, s.PickupVerifiedOn)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("subscription %s: %w", s.ID, models.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) SubscriptionsForRider(ctx context.Context, riderID string) ([]*models.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE rider_id = $1 ORDER BY created_at`, riderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ActiveSubscriptionForStudent(ctx context.Context, studentID string) (*models.Subscription, error) {
	s, err := scanSubscription(p.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM subscriptions
		WHERE student_id = $1 AND status = $2 LIMIT 1`, studentID, models.SubscriptionActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", studentID, models.ErrNotFound)
	}
	return s, err
}

// ---- scanning ----

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRide(rs rowScanner) (*models.Ride, error) {
	var r models.Ride
	err := rs.Scan(&r.ID, &r.RiderID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Dropoff.Lat, &r.Dropoff.Lon,
		&r.Class, &r.FareCents, &r.Status, &r.DriverID, &r.OTP, &r.OTPVerified, &r.HoldID, &r.Rating,
		&r.OfferDeadline, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanOffer(rs rowScanner) (*models.Offer, error) {
	var o models.Offer
	err := rs.Scan(&o.ID, &o.RideID, &o.DriverID, &o.Status, &o.ETASeconds, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanDriver(rs rowScanner) (*models.Driver, error) {
	var d models.Driver
	err := rs.Scan(&d.ID, &d.Name, &d.Loc.Lat, &d.Loc.Lon, &d.Available, &d.SafetyVerified,
		&d.CurrentRideID, &d.Rating, &d.RatingCount, &d.LastSeen, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSubscription(rs rowScanner) (*models.Subscription, error) {
	var s models.Subscription
	err := rs.Scan(&s.ID, &s.RiderID, &s.StudentID, &s.RouteID, &s.StopID, &s.DriverID, &s.Status,
		&s.DayOTP, &s.DayOTPDate, &s.PickupVerifiedOn, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func statusStrings(in []models.RideStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
