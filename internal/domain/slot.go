package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotState string

const (
	SlotStateAvailable SlotState = "available"
	SlotStateHeld      SlotState = "held"
	SlotStateBooked    SlotState = "booked"
)

// TimeSlot is a bookable interval for one service on one resource. The hold
// lease lives on the slot row itself so acquiring it is a single conditional
// update; a lease past HoldExpiresAt counts as released even when the row
// still says held.
type TimeSlot struct {
	bun.BaseModel `bun:"table:time_slots"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid"`
	ServiceID       uuid.UUID  `bun:"service_id,type:uuid,notnull"`
	ResourceID      uuid.UUID  `bun:"resource_id,type:uuid,notnull"`
	StartTime       time.Time  `bun:"start_time,notnull"`
	EndTime         time.Time  `bun:"end_time,notnull"`
	State           SlotState  `bun:"state,notnull"`
	HeldBySessionID string     `bun:"held_by_session_id"`
	HoldExpiresAt   *time.Time `bun:"hold_expires_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull"`
}

// HeldBy reports whether the slot carries a live lease for the session.
func (s TimeSlot) HeldBy(sessionID string, now time.Time) bool {
	if s.State != SlotStateHeld || s.HeldBySessionID != sessionID {
		return false
	}
	return s.HoldExpiresAt != nil && now.Before(*s.HoldExpiresAt)
}

func (s *TimeSlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.State == "" {
			s.State = SlotStateAvailable
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}
