package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/internal/domain"
	"slotbook/internal/store"
)

// appendBookingLog inserts one audit row. The table is insert-only; nothing
// here or anywhere else updates or deletes booking_event_log rows.
func appendBookingLog(ctx context.Context, idb bun.IDB, entry domain.BookingEventLog) error {
	_, err := idb.NewInsert().Model(&entry).Exec(ctx)
	return err
}

func bookingByID(ctx context.Context, idb bun.IDB, bookingID uuid.UUID) (domain.Booking, error) {
	var booking domain.Booking
	err := idb.NewSelect().
		Model(&booking).
		Where("id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return booking, nil
}
