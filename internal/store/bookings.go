package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/domain"
)

// BookingRepository owns the booking lifecycle writes. Each method is
// all-or-nothing: the slot transition, the booking row and the audit entry
// commit together or not at all.
type BookingRepository interface {
	// CreateFromHold consumes the session's live hold on booking.SlotID:
	// in one transaction it re-verifies the hold, transitions the slot to
	// booked, inserts the booking and appends a booking_created audit entry.
	// A lapsed or foreign hold fails with ErrSlotExpiredOrTaken and writes
	// nothing.
	CreateFromHold(ctx context.Context, booking domain.Booking, sessionID string) (domain.Booking, error)

	GetByID(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)

	// SetRescheduleToken stores a fresh single-use token on the booking,
	// replacing any previous one.
	SetRescheduleToken(ctx context.Context, bookingID uuid.UUID, token string, expiresAt time.Time) error

	// Reschedule consumes the token and moves the booking to newStart in one
	// transaction, keeping the booking's own duration. The conditional update
	// that clears the token is the single-use gate: once any caller wins it,
	// every other use of the token fails with ErrInvalidToken. An interval
	// conflict aborts with ErrSlotUnavailable and the token survives.
	Reschedule(ctx context.Context, token string, newStart time.Time) (domain.Booking, error)
}
