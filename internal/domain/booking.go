package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Booking is the durable appointment record. It exists independently of
// payment completion: the ingestor only ever moves PaymentStatus, and the
// reschedule coordinator only ever moves the interval.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                       uuid.UUID     `bun:"id,pk,type:uuid"`
	ServiceID                uuid.UUID     `bun:"service_id,type:uuid,notnull"`
	SlotID                   uuid.UUID     `bun:"slot_id,type:uuid,notnull"`
	StartTime                time.Time     `bun:"start_time,notnull"`
	EndTime                  time.Time     `bun:"end_time,notnull"`
	ClientEmail              string        `bun:"client_email,notnull"`
	ClientPhone              string        `bun:"client_phone,notnull"`
	Status                   BookingStatus `bun:"status,notnull"`
	PaymentStatus            PaymentStatus `bun:"payment_status,notnull"`
	ProviderPaymentRef       string        `bun:"provider_payment_ref"`
	RescheduleToken          *string       `bun:"reschedule_token"`
	RescheduleTokenExpiresAt *time.Time    `bun:"reschedule_token_expires_at"`
	CreatedAt                time.Time     `bun:"created_at,notnull"`
	UpdatedAt                time.Time     `bun:"updated_at,notnull"`
}

// Duration returns the booked interval length. At creation the interval is
// required to match the slot bounds, so this equals the service's configured
// duration as of booking time.
func (b Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.Status == "" {
			b.Status = BookingStatusConfirmed
		}
		if b.PaymentStatus == "" {
			b.PaymentStatus = PaymentStatusUnpaid
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}
