package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RideClass selects which drivers a ride may be offered to.
type RideClass string

const (
	ClassStandard       RideClass = "standard"
	ClassPooledPriority RideClass = "pooled_priority"
	ClassSafetyVerified RideClass = "safety_verified"
)

func (c RideClass) Valid() bool {
	switch c {
	case ClassStandard, ClassPooledPriority, ClassSafetyVerified:
		return true
	}
	return false
}

// Ride is the single source of truth for a trip. The Status field doubles as
// the arbitration guard: the offered -> accepted transition is committed with
// a compare-and-set so at most one driver ever wins it.
type Ride struct {
	ID          string     `json:"id"`
	RiderID     string     `json:"rider_id"`
	Pickup      Coord      `json:"pickup"`
	Dropoff     Coord      `json:"dropoff"`
	Class       RideClass  `json:"class"`
	FareCents   int64      `json:"fare_cents"`
	Status      RideStatus `json:"status"`
	DriverID    string     `json:"driver_id,omitempty"`
	OTP         string     `json:"-"`
	OTPVerified bool       `json:"otp_verified"`
	HoldID      string     `json:"-"`
	Rating      int        `json:"rating,omitempty"`
	// OfferDeadline bounds the broadcast phase; a ride still unaccepted past
	// it with no eligible drivers left moves to expired.
	OfferDeadline time.Time `json:"offer_deadline"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OfferStatus string

const (
	OfferOpen       OfferStatus = "offered"
	OfferAccepted   OfferStatus = "accepted"
	OfferDeclined   OfferStatus = "declined"
	OfferExpired    OfferStatus = "expired"
	OfferSuperseded OfferStatus = "superseded"
)

// Offer is the ephemeral record of one ride surfaced to one driver. Many may
// exist per ride; exactly one may reach accepted, and its siblings move to
// superseded in the same arbitration step.
type Offer struct {
	ID         string      `json:"id"`
	RideID     string      `json:"ride_id"`
	DriverID   string      `json:"driver_id"`
	Status     OfferStatus `json:"status"`
	ETASeconds float64     `json:"eta_seconds"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Driver rows are owned by the driver's own client; the dispatch engine only
// touches CurrentRideID. Available is never rewritten by the server: liveness
// is a read-time filter over LastSeen, not a stored flag flip.
type Driver struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Loc            Coord     `json:"loc"`
	Available      bool      `json:"available"`
	SafetyVerified bool      `json:"safety_verified"`
	CurrentRideID  string    `json:"current_ride_id,omitempty"`
	Rating         float64   `json:"rating"`
	RatingCount    int       `json:"rating_count"`
	LastSeen       time.Time `json:"last_seen"`
	CreatedAt      time.Time `json:"created_at"`
}

// Live reports whether the driver has been heard from recently enough to be
// offered new rides.
func (d *Driver) Live(now time.Time, timeout time.Duration) bool {
	return now.Sub(d.LastSeen) < timeout
}

type School struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Loc     Coord  `json:"loc"`
}

// Route is a recurring school-pool run. DriverID persists across days once a
// driver has been assigned.
type Route struct {
	ID        string `json:"id"`
	SchoolID  string `json:"school_id"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	Capacity  int    `json:"capacity"`
	Occupancy int    `json:"occupancy"`
	DriverID  string `json:"driver_id,omitempty"`
}

type Stop struct {
	ID           string `json:"id"`
	RouteID      string `json:"route_id"`
	Order        int    `json:"order"`
	Name         string `json:"name"`
	Loc          Coord  `json:"loc"`
	ETAOffsetMin int    `json:"eta_offset_min"`
}

type Student struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	School    string    `json:"school"`
	Grade     string    `json:"grade"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxStudentsPerAccount caps how many student profiles one account may hold.
const MaxStudentsPerAccount = 3

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is the recurring school-pool variant of a ride: a persistent
// driver assignment plus a fresh OTP per service day.
type Subscription struct {
	ID        string             `json:"id"`
	RiderID   string             `json:"rider_id"`
	StudentID string             `json:"student_id"`
	RouteID   string             `json:"route_id"`
	StopID    string             `json:"stop_id"`
	DriverID  string             `json:"driver_id,omitempty"`
	Status    SubscriptionStatus `json:"status"`
	// DayOTP is valid for DayOTPDate only (YYYY-MM-DD); a new code is issued
	// lazily on the first read of each service day.
	DayOTP           string    `json:"-"`
	DayOTPDate       string    `json:"-"`
	PickupVerifiedOn string    `json:"pickup_verified_on,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
