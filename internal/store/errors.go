package store

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrSlotAlreadyHeld means another session holds a live lease on the slot.
	ErrSlotAlreadyHeld = errors.New("slot already held")

	// ErrSlotUnavailable means the slot is booked, or the requested interval
	// conflicts with existing state.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrSlotExpiredOrTaken means the caller's hold lapsed or another caller
	// won the Held->Booked transition.
	ErrSlotExpiredOrTaken = errors.New("hold expired or slot taken")

	// ErrInvalidToken means the reschedule token does not exist, has expired,
	// or was already consumed.
	ErrInvalidToken = errors.New("invalid or expired reschedule token")
)
