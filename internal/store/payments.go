package store

import (
	"context"

	"github.com/google/uuid"

	"slotbook/internal/domain"
)

// PaymentTx is the set of writes a webhook event may perform. All of them run
// inside the ledger transaction opened by WebhookLedger.ProcessEvent, so an
// event's effects and its ledger entry commit together.
type PaymentTx interface {
	BookingByID(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	BookingByProviderRef(ctx context.Context, providerRef string) (domain.Booking, error)

	MarkPaid(ctx context.Context, bookingID uuid.UUID, providerRef string) error
	MarkFailed(ctx context.Context, bookingID uuid.UUID) error

	AppendLog(ctx context.Context, entry domain.BookingEventLog) error
}

// WebhookLedger turns the provider's at-least-once delivery into
// effectively-once processing.
type WebhookLedger interface {
	// ProcessEvent checks the ledger for eventID. If already present it
	// returns skipped=true without calling fn. Otherwise it runs fn and
	// records the event id in the same transaction; a duplicate-key failure
	// on that record is treated as another worker having won the race, and
	// the whole transaction rolls back into a skip.
	ProcessEvent(ctx context.Context, eventID string, fn func(ctx context.Context, tx PaymentTx) error) (skipped bool, err error)
}
