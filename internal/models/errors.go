package models

import "errors"

// Every failure the engine reports to a caller maps onto one of these
// sentinels so clients can branch on errors.Is. They are recoverable by
// definition: the caller's next action depends on which one occurred.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("ride already taken")
	ErrInvalidOTP        = errors.New("invalid otp")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("invalid request")
)
