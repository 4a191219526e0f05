package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/internal/domain"
	"slotbook/internal/store"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// lockServiceSchedule serializes schedule writes for one service within the
// surrounding transaction. The overlap checks below are plain reads; without
// this lock two transactions could both see an interval as free and both
// commit into it.
func lockServiceSchedule(ctx context.Context, tx bun.Tx, serviceID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", serviceID.String()).Exec(ctx)
	return err
}

func (r *BookingRepo) CreateFromHold(ctx context.Context, booking domain.Booking, sessionID string) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		if err := lockServiceSchedule(ctx, tx, booking.ServiceID); err != nil {
			return err
		}

		// Re-verify the hold and transition the slot in a single conditional
		// update. Under a race exactly one transaction affects a row here;
		// the other sees zero rows and aborts before writing anything.
		res, err := tx.NewUpdate().
			Model((*domain.TimeSlot)(nil)).
			Set("state = ?", domain.SlotStateBooked).
			Set("held_by_session_id = NULL").
			Set("hold_expires_at = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", booking.SlotID).
			Where("state = ?", domain.SlotStateHeld).
			Where("held_by_session_id = ?", sessionID).
			Where("hold_expires_at > ?", now).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrSlotExpiredOrTaken
		}

		if _, err := tx.NewInsert().Model(&booking).Exec(ctx); err != nil {
			return err
		}

		data, err := json.Marshal(map[string]string{
			"slot_id":    booking.SlotID.String(),
			"session_id": sessionID,
		})
		if err != nil {
			return err
		}
		if err := appendBookingLog(ctx, tx, domain.BookingEventLog{
			BookingID: booking.ID,
			EventType: domain.BookingEventCreated,
			EventData: data,
		}); err != nil {
			return err
		}

		out = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

func (r *BookingRepo) GetByID(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return bookingByID(ctx, r.db, bookingID)
}

func (r *BookingRepo) SetRescheduleToken(ctx context.Context, bookingID uuid.UUID, token string, expiresAt time.Time) error {
	now := time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model((*domain.Booking)(nil)).
		Set("reschedule_token = ?", token).
		Set("reschedule_token_expires_at = ?", expiresAt).
		Set("updated_at = ?", now).
		Where("id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rescheduleSpan struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (r *BookingRepo) Reschedule(ctx context.Context, token string, newStart time.Time) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		// Clearing the token is the single-use gate. Concurrent requests
		// with the same token race on this update; the loser affects zero
		// rows and fails, whatever target time it asked for.
		var booking domain.Booking
		res, err := tx.NewUpdate().
			Model(&booking).
			Set("reschedule_token = NULL").
			Set("reschedule_token_expires_at = NULL").
			Set("updated_at = ?", now).
			Where("reschedule_token = ?", token).
			Where("reschedule_token_expires_at > ?", now).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrInvalidToken
		}

		if err := lockServiceSchedule(ctx, tx, booking.ServiceID); err != nil {
			return err
		}

		from := rescheduleSpan{StartTime: booking.StartTime, EndTime: booking.EndTime}
		newEnd := newStart.Add(booking.Duration())

		if err := ensureIntervalFree(ctx, tx, booking, newStart, newEnd, now); err != nil {
			return err
		}

		booking.StartTime = newStart
		booking.EndTime = newEnd
		if _, err := tx.NewUpdate().
			Model(&booking).
			Column("start_time", "end_time", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}

		data, err := json.Marshal(map[string]rescheduleSpan{
			"from": from,
			"to":   {StartTime: newStart, EndTime: newEnd},
		})
		if err != nil {
			return err
		}
		if err := appendBookingLog(ctx, tx, domain.BookingEventLog{
			BookingID: booking.ID,
			EventType: domain.BookingEventRescheduled,
			EventData: data,
		}); err != nil {
			return err
		}

		out = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

// ensureIntervalFree applies the same no-overlap predicate everywhere: the
// target interval must not intersect another live booking for the service,
// nor a slot that is booked or under a live hold. The booking's own slot is
// excluded since the booking is moving off it.
func ensureIntervalFree(ctx context.Context, tx bun.Tx, booking domain.Booking, start, end, now time.Time) error {
	count, err := tx.NewSelect().
		Model((*domain.Booking)(nil)).
		Where("service_id = ?", booking.ServiceID).
		Where("id != ?", booking.ID).
		Where("status != ?", domain.BookingStatusCancelled).
		Where("start_time < ?", end).
		Where("end_time > ?", start).
		Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return store.ErrSlotUnavailable
	}

	count, err = tx.NewSelect().
		Model((*domain.TimeSlot)(nil)).
		Where("service_id = ?", booking.ServiceID).
		Where("id != ?", booking.SlotID).
		Where("start_time < ?", end).
		Where("end_time > ?", start).
		Where(
			"(state = ? OR (state = ? AND hold_expires_at > ?))",
			domain.SlotStateBooked, domain.SlotStateHeld, now,
		).
		Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return store.ErrSlotUnavailable
	}
	return nil
}
