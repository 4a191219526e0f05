package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingEventType string

const (
	BookingEventCreated         BookingEventType = "booking_created"
	BookingEventPaymentReceived BookingEventType = "payment_received"
	BookingEventPaymentFailed   BookingEventType = "payment_failed"
	BookingEventCancelled       BookingEventType = "cancelled"
	BookingEventRescheduled     BookingEventType = "rescheduled"
)

// BookingEventLog is the append-only audit trail. Rows are inserted and never
// updated or deleted.
type BookingEventLog struct {
	bun.BaseModel `bun:"table:booking_event_log"`

	ID         uuid.UUID        `bun:"id,pk,type:uuid"`
	BookingID  uuid.UUID        `bun:"booking_id,type:uuid,notnull"`
	EventType  BookingEventType `bun:"event_type,notnull"`
	EventData  json.RawMessage  `bun:"event_data,type:jsonb"`
	Notes      string           `bun:"notes"`
	OccurredAt time.Time        `bun:"occurred_at,notnull"`
}

func (l *BookingEventLog) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if l.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		l.ID = id
	}
	if l.OccurredAt.IsZero() {
		l.OccurredAt = time.Now().UTC()
	}
	return nil
}

// ProcessedWebhookEvent is the idempotency ledger for provider webhook
// deliveries. The event id primary key turns at-least-once delivery into
// effectively-once processing.
type ProcessedWebhookEvent struct {
	bun.BaseModel `bun:"table:processed_webhook_events"`

	EventID     string    `bun:"event_id,pk"`
	ProcessedAt time.Time `bun:"processed_at,notnull"`
}
