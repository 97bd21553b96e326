package dispatch

import "errors"

// EventType names the lifecycle notifications pushed to connected clients.
type EventType string

const (
	EventOffer          EventType = "offer"
	EventOfferClosed    EventType = "offer_closed"
	EventRideAccepted   EventType = "ride_accepted"
	EventOTPVerified    EventType = "otp_verified"
	EventRideCompleted  EventType = "ride_completed"
	EventRideCancelled  EventType = "ride_cancelled"
	EventRideExpired    EventType = "ride_expired"
	EventPickupVerified EventType = "pickup_verified"
)

// Event is the payload sent over the push channel. Clients that stay on the
// polling endpoints see the same state; the push channel only shortens the
// time to notice it.
type Event struct {
	Type       EventType `json:"type"`
	RideID     string    `json:"ride_id,omitempty"`
	OfferID    string    `json:"offer_id,omitempty"`
	DriverID   string    `json:"driver_id,omitempty"`
	RiderID    string    `json:"rider_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	ETASeconds float64   `json:"eta_seconds,omitempty"`
}

// ErrNoSession is returned when the target has no live push connection.
// Callers treat it as "fall back to polling", never as a failure.
var ErrNoSession = errors.New("no push session")

// Dispatcher delivers events to one driver or one rider. Delivery is
// best-effort by contract: the store is the source of truth and every event
// is observable by polling as well.
type Dispatcher interface {
	NotifyDriver(driverID string, ev Event) error
	NotifyRider(riderID string, ev Event) error
}

// Nop discards all events; used when no push transport is configured.
type Nop struct{}

func (Nop) NotifyDriver(string, Event) error { return nil }
func (Nop) NotifyRider(string, Event) error  { return nil }

// Fanout tries each dispatcher in order and stops at the first success, so a
// WebSocket hub can be fronted by an HTTP webhook fallback.
type Fanout []Dispatcher

func (f Fanout) NotifyDriver(driverID string, ev Event) error {
	var last error
	for _, d := range f {
		if err := d.NotifyDriver(driverID, ev); err == nil {
			return nil
		} else {
			last = err
		}
	}
	return last
}

func (f Fanout) NotifyRider(riderID string, ev Event) error {
	var last error
	for _, d := range f {
		if err := d.NotifyRider(riderID, ev); err == nil {
			return nil
		} else {
			last = err
		}
	}
	return last
}
