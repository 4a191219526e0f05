package booking

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/domain"
	"slotbook/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Notifier enqueues events for the out-of-process notification dispatcher.
// Delivery is somebody else's problem; enqueue failures are logged and never
// fail the request that triggered them.
type Notifier interface {
	BookingCreated(ctx context.Context, b domain.Booking)
	BookingRescheduled(ctx context.Context, b domain.Booking)
}

type Config struct {
	HoldTTLDefault     time.Duration
	HoldTTLMax         time.Duration
	RescheduleTokenTTL time.Duration
}

type Service struct {
	slots    store.SlotRepository
	bookings store.BookingRepository
	notifier Notifier
	cfg      Config
}

func NewService(slots store.SlotRepository, bookings store.BookingRepository, notifier Notifier, cfg Config) *Service {
	if cfg.HoldTTLDefault <= 0 {
		cfg.HoldTTLDefault = 5 * time.Minute
	}
	if cfg.HoldTTLMax <= 0 {
		cfg.HoldTTLMax = 15 * time.Minute
	}
	if cfg.RescheduleTokenTTL <= 0 {
		cfg.RescheduleTokenTTL = 72 * time.Hour
	}
	return &Service{
		slots:    slots,
		bookings: bookings,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Hold grants the session a TTL-bound exclusive lease on the slot. A zero ttl
// uses the configured default; anything above the configured maximum is
// clamped rather than rejected.
func (s *Service) Hold(ctx context.Context, slotID uuid.UUID, sessionID string, ttl time.Duration) (domain.TimeSlot, error) {
	if slotID == uuid.Nil {
		return domain.TimeSlot{}, validationError("slot_id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return domain.TimeSlot{}, validationError("session_id is required")
	}

	if ttl <= 0 {
		ttl = s.cfg.HoldTTLDefault
	}
	if ttl > s.cfg.HoldTTLMax {
		ttl = s.cfg.HoldTTLMax
	}

	return s.slots.Hold(ctx, slotID, sessionID, ttl)
}

func (s *Service) Release(ctx context.Context, slotID uuid.UUID, sessionID string) error {
	if slotID == uuid.Nil {
		return validationError("slot_id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return validationError("session_id is required")
	}
	return s.slots.Release(ctx, slotID, sessionID)
}

func (s *Service) ListAvailableSlots(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]domain.TimeSlot, error) {
	if serviceID == uuid.Nil {
		return nil, validationError("service_id is required")
	}
	start := from.UTC()
	end := to.UTC()
	if !end.After(start) {
		return nil, validationError("to must be after from")
	}
	return s.slots.ListAvailable(ctx, serviceID, start, end)
}

type CreateInput struct {
	SlotID      uuid.UUID
	SessionID   string
	ServiceID   uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	ClientEmail string
	ClientPhone string
}

// Create consumes the session's hold and produces the durable booking. The
// interval must match the slot bounds exactly; the hold re-check and the
// writes are one transaction in the store, so under a race exactly one caller
// succeeds and the other gets ErrSlotExpiredOrTaken.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Booking, error) {
	if in.SlotID == uuid.Nil {
		return domain.Booking{}, validationError("slot_id is required")
	}
	if strings.TrimSpace(in.SessionID) == "" {
		return domain.Booking{}, validationError("session_id is required")
	}
	if in.ServiceID == uuid.Nil {
		return domain.Booking{}, validationError("service_id is required")
	}

	email := strings.TrimSpace(in.ClientEmail)
	if email == "" {
		return domain.Booking{}, validationError("client_email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Booking{}, validationError("client_email is not a valid address")
	}
	phone := strings.TrimSpace(in.ClientPhone)
	if phone == "" {
		return domain.Booking{}, validationError("client_phone is required")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !end.After(start) {
		return domain.Booking{}, validationError("end_time must be after start_time")
	}

	slot, err := s.slots.GetByID(ctx, in.SlotID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !slot.StartTime.Equal(start) || !slot.EndTime.Equal(end) {
		return domain.Booking{}, validationError("interval does not match the slot")
	}
	if slot.ServiceID != in.ServiceID {
		return domain.Booking{}, validationError("service_id does not match the slot")
	}

	booking, err := s.bookings.CreateFromHold(ctx, domain.Booking{
		ServiceID:   in.ServiceID,
		SlotID:      in.SlotID,
		StartTime:   start,
		EndTime:     end,
		ClientEmail: email,
		ClientPhone: phone,
	}, in.SessionID)
	if err != nil {
		return domain.Booking{}, err
	}

	if s.notifier != nil {
		s.notifier.BookingCreated(ctx, booking)
	}
	return booking, nil
}

// IssueRescheduleToken mints a fresh single-use token for the booking,
// replacing any outstanding one.
func (s *Service) IssueRescheduleToken(ctx context.Context, bookingID uuid.UUID) (string, time.Time, error) {
	if bookingID == uuid.Nil {
		return "", time.Time{}, validationError("booking_id is required")
	}

	token := uuid.NewString()
	expiresAt := time.Now().UTC().Add(s.cfg.RescheduleTokenTTL)
	if err := s.bookings.SetRescheduleToken(ctx, bookingID, token, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Reschedule moves the booking identified by the token to newStart. Token
// consumption, the availability re-check and the interval update are one
// transaction in the store; a consumed or expired token fails with
// ErrInvalidToken and an interval conflict with ErrSlotUnavailable.
func (s *Service) Reschedule(ctx context.Context, token string, newStart time.Time) (domain.Booking, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Booking{}, validationError("token is required")
	}
	start := newStart.UTC()
	if start.IsZero() {
		return domain.Booking{}, validationError("new_start_time is required")
	}
	if start.Before(time.Now().UTC()) {
		return domain.Booking{}, validationError("new_start_time must be in the future")
	}

	booking, err := s.bookings.Reschedule(ctx, token, start)
	if err != nil {
		return domain.Booking{}, err
	}

	if s.notifier != nil {
		s.notifier.BookingRescheduled(ctx, booking)
	}
	return booking, nil
}

func (s *Service) Get(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	if bookingID == uuid.Nil {
		return domain.Booking{}, validationError("booking_id is required")
	}
	return s.bookings.GetByID(ctx, bookingID)
}
