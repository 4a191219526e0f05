package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/domain"
)

// SlotRepository mediates all TimeSlot state transitions. Every mutation is a
// single conditional update: the precondition and the write happen in one
// statement, so concurrent callers cannot both observe the slot as free.
type SlotRepository interface {
	// Hold acquires or re-issues a lease on the slot for the session. It
	// succeeds when the slot is available, when a previous lease has lapsed,
	// or when the same session already holds it.
	Hold(ctx context.Context, slotID uuid.UUID, sessionID string, ttl time.Duration) (domain.TimeSlot, error)

	// Release returns a held slot to available. Mismatched or lapsed holds
	// are a no-op, not an error.
	Release(ctx context.Context, slotID uuid.UUID, sessionID string) error

	GetByID(ctx context.Context, slotID uuid.UUID) (domain.TimeSlot, error)

	// ListAvailable returns slots that are bookable right now, counting
	// lapsed holds as available. The result is a read-through view; the
	// conditional updates above remain the source of truth.
	ListAvailable(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]domain.TimeSlot, error)
}
