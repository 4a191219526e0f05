package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/store"
)

// ErrMissingSecret means the webhook secret is not configured. Deliveries are
// rejected outright rather than accepted unverified.
var ErrMissingSecret = errors.New("webhook secret is not configured")

type Ack struct {
	Skipped bool
}

type Config struct {
	Secret    string
	Tolerance time.Duration
}

// Service reconciles provider webhook events against bookings. Transport
// failures (bad signature, malformed payload, store errors) surface so the
// provider retries; business mismatches found after the signature check
// (booking not found) are logged and acknowledged, because retrying cannot
// fix them.
type Service struct {
	ledger   store.WebhookLedger
	notifier Notifier
	cfg      Config
	log      *slog.Logger
}

// Notifier enqueues payment outcomes for the notification dispatcher. It is
// called only after the event's transaction has committed.
type Notifier interface {
	PaymentReceived(ctx context.Context, b domain.Booking)
}

func NewService(ledger store.WebhookLedger, notifier Notifier, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With(slog.String("component", "service.payments")),
	}
}

func (s *Service) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (Ack, error) {
	if s.cfg.Secret == "" {
		return Ack{}, ErrMissingSecret
	}
	if err := verifySignature(s.cfg.Secret, signatureHeader, payload, time.Now().UTC(), s.cfg.Tolerance); err != nil {
		return Ack{}, err
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.ID == "" {
		return Ack{}, fmt.Errorf("%w: missing event id", ErrMalformedPayload)
	}

	event, err := decodeEvent(env)
	if err != nil {
		return Ack{}, err
	}

	if u, ok := event.(unknownEvent); ok {
		// Acknowledge without touching the ledger: re-deliveries of a type
		// we do not handle are as harmless as the first delivery.
		s.log.Info("unhandled webhook event type acknowledged",
			slog.String("event_id", env.ID),
			slog.String("event_type", u.Type),
		)
		return Ack{}, nil
	}

	var paid *domain.Booking
	skipped, err := s.ledger.ProcessEvent(ctx, env.ID, func(ctx context.Context, tx store.PaymentTx) error {
		return s.apply(ctx, tx, env.ID, event, &paid)
	})
	if err != nil {
		return Ack{}, err
	}
	if skipped {
		s.log.Info("duplicate webhook event skipped", slog.String("event_id", env.ID))
		return Ack{Skipped: true}, nil
	}

	if paid != nil && s.notifier != nil {
		s.notifier.PaymentReceived(ctx, *paid)
	}

	s.log.Info("webhook event processed",
		slog.String("event_id", env.ID),
		slog.String("event_type", env.Type),
	)
	return Ack{}, nil
}

func (s *Service) apply(ctx context.Context, tx store.PaymentTx, eventID string, event eventPayload, paid **domain.Booking) error {
	switch e := event.(type) {
	case paymentConfirmed:
		booking, err := tx.BookingByID(ctx, e.BookingID)
		if errors.Is(err, store.ErrNotFound) {
			s.logBookingMiss(eventID, "payment_confirmed", e.BookingID.String())
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.MarkPaid(ctx, booking.ID, e.ProviderRef); err != nil {
			return err
		}
		data, err := json.Marshal(map[string]any{
			"event_id":     eventID,
			"provider_ref": e.ProviderRef,
			"amount":       e.Amount,
			"currency":     e.Currency,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, domain.BookingEventLog{
			BookingID: booking.ID,
			EventType: domain.BookingEventPaymentReceived,
			EventData: data,
		}); err != nil {
			return err
		}
		booking.PaymentStatus = domain.PaymentStatusPaid
		booking.ProviderPaymentRef = e.ProviderRef
		*paid = &booking
		return nil

	case paymentFailed:
		booking, err := tx.BookingByProviderRef(ctx, e.ProviderRef)
		if errors.Is(err, store.ErrNotFound) {
			s.logBookingMiss(eventID, "payment_failed", e.ProviderRef)
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.MarkFailed(ctx, booking.ID); err != nil {
			return err
		}
		// The slot stays booked. Whether a failed payment should free it
		// after a grace period is an operator policy this system does not
		// decide; the audit entry carries what an operator needs.
		data, err := json.Marshal(map[string]any{
			"event_id":     eventID,
			"provider_ref": e.ProviderRef,
			"reason":       e.Reason,
		})
		if err != nil {
			return err
		}
		return tx.AppendLog(ctx, domain.BookingEventLog{
			BookingID: booking.ID,
			EventType: domain.BookingEventPaymentFailed,
			EventData: data,
			Notes:     "payment failed; slot not released",
		})

	case chargeRefunded:
		booking, err := tx.BookingByProviderRef(ctx, e.ProviderRef)
		if errors.Is(err, store.ErrNotFound) {
			s.logBookingMiss(eventID, "charge_refunded", e.ProviderRef)
			return nil
		}
		if err != nil {
			return err
		}
		// No status transition: a refund can be partial or follow an
		// already-cancelled booking. Only the trail records it.
		data, err := json.Marshal(map[string]any{
			"event_id":     eventID,
			"provider_ref": e.ProviderRef,
			"amount":       e.Amount,
			"currency":     e.Currency,
		})
		if err != nil {
			return err
		}
		return tx.AppendLog(ctx, domain.BookingEventLog{
			BookingID: booking.ID,
			EventType: domain.BookingEventCancelled,
			EventData: data,
			Notes:     "charge refunded",
		})

	default:
		return nil
	}
}

func (s *Service) logBookingMiss(eventID, eventType, ref string) {
	s.log.Warn("webhook event references unknown booking; acknowledged",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("ref", ref),
	)
}
