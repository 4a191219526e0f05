package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"slotbook/internal/domain"
	"slotbook/internal/store"
)

type PaymentRepo struct {
	db *bun.DB
}

func NewPaymentRepo(db *bun.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

type paymentTx struct {
	tx bun.Tx
}

func (r *PaymentRepo) ProcessEvent(ctx context.Context, eventID string, fn func(ctx context.Context, tx store.PaymentTx) error) (bool, error) {
	skipped := false
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*domain.ProcessedWebhookEvent)(nil)).
			Where("event_id = ?", eventID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			skipped = true
			return nil
		}

		if err := fn(ctx, paymentTx{tx: tx}); err != nil {
			return err
		}

		entry := domain.ProcessedWebhookEvent{
			EventID:     eventID,
			ProcessedAt: time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(&entry).Exec(ctx); err != nil {
			// A concurrent delivery of the same event committed first. Its
			// effects are the event's effects; abort ours and report a skip.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				skipped = true
			}
			return err
		}
		return nil
	})
	if err != nil {
		if skipped {
			return true, nil
		}
		return false, err
	}
	return skipped, nil
}

func (t paymentTx) BookingByID(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return bookingByID(ctx, t.tx, bookingID)
}

func (t paymentTx) BookingByProviderRef(ctx context.Context, providerRef string) (domain.Booking, error) {
	var booking domain.Booking
	err := t.tx.NewSelect().
		Model(&booking).
		Where("provider_payment_ref = ?", providerRef).
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

func (t paymentTx) MarkPaid(ctx context.Context, bookingID uuid.UUID, providerRef string) error {
	return t.setPaymentStatus(ctx, bookingID, domain.PaymentStatusPaid, &providerRef)
}

func (t paymentTx) MarkFailed(ctx context.Context, bookingID uuid.UUID) error {
	return t.setPaymentStatus(ctx, bookingID, domain.PaymentStatusFailed, nil)
}

func (t paymentTx) setPaymentStatus(ctx context.Context, bookingID uuid.UUID, status domain.PaymentStatus, providerRef *string) error {
	q := t.tx.NewUpdate().
		Model((*domain.Booking)(nil)).
		Set("payment_status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", bookingID)
	if providerRef != nil {
		q = q.Set("provider_payment_ref = ?", *providerRef)
	}

	res, err := q.Exec(ctx)
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

func (t paymentTx) AppendLog(ctx context.Context, entry domain.BookingEventLog) error {
	return appendBookingLog(ctx, t.tx, entry)
}
