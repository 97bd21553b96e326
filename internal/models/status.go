package models

// RideStatus is the lifecycle state of a ride. The legal graph is:
//
//	pending -> offered -> accepted -> in_progress -> completed
//	pending/offered -> cancelled (rider, before acceptance)
//	pending/offered -> expired (broadcast deadline, no eligible drivers)
type RideStatus string

const (
	RidePending    RideStatus = "pending"
	RideOffered    RideStatus = "offered"
	RideAccepted   RideStatus = "accepted"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
	RideExpired    RideStatus = "expired"
)

var rideGraph = map[RideStatus][]RideStatus{
	RidePending:    {RideOffered, RideCancelled, RideExpired},
	RideOffered:    {RideAccepted, RideCancelled, RideExpired},
	RideAccepted:   {RideInProgress},
	RideInProgress: {RideCompleted},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to RideStatus) bool {
	for _, next := range rideGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled || s == RideExpired
}

// Assigned reports whether the ride is bound to a driver in this state. A
// ride has a non-empty DriverID exactly while its status is in this set.
func (s RideStatus) Assigned() bool {
	return s == RideAccepted || s == RideInProgress || s == RideCompleted
}

// Cancellable reports whether the rider may still withdraw the ride.
func (s RideStatus) Cancellable() bool {
	return s == RidePending || s == RideOffered
}
