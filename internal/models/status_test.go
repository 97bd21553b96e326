package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RideStatus
		ok       bool
	}{
		{RidePending, RideOffered, true},
		{RidePending, RideCancelled, true},
		{RidePending, RideExpired, true},
		{RideOffered, RideAccepted, true},
		{RideOffered, RideCancelled, true},
		{RideOffered, RideExpired, true},
		{RideAccepted, RideInProgress, true},
		{RideInProgress, RideCompleted, true},

		{RidePending, RideAccepted, false},
		{RidePending, RideInProgress, false},
		{RideAccepted, RideCancelled, false},
		{RideAccepted, RideCompleted, false},
		{RideInProgress, RideCancelled, false},
		{RideCompleted, RidePending, false},
		{RideCancelled, RideOffered, false},
		{RideExpired, RideOffered, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []RideStatus{RideCompleted, RideCancelled, RideExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(rideGraph[s]) != 0 {
			t.Errorf("%s must have no outgoing edges", s)
		}
	}
	for _, s := range []RideStatus{RidePending, RideOffered, RideAccepted, RideInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestAssignedMatchesDriverBinding(t *testing.T) {
	want := map[RideStatus]bool{
		RidePending:    false,
		RideOffered:    false,
		RideAccepted:   true,
		RideInProgress: true,
		RideCompleted:  true,
		RideCancelled:  false,
		RideExpired:    false,
	}
	for s, exp := range want {
		if s.Assigned() != exp {
			t.Errorf("%s.Assigned() = %v, want %v", s, s.Assigned(), exp)
		}
	}
}
