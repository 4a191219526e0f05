package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/domain"
	"slotbook/internal/store"
)

const testSecret = "whsec_test"

// fakeLedger runs the event body against a fakePaymentTx and records
// processed event ids, mimicking the postgres ledger's dedupe behavior.
type fakeLedger struct {
	processed map[string]bool
	tx        *fakePaymentTx
	calls     int
}

func newFakeLedger(tx *fakePaymentTx) *fakeLedger {
	return &fakeLedger{processed: map[string]bool{}, tx: tx}
}

func (f *fakeLedger) ProcessEvent(ctx context.Context, eventID string, fn func(ctx context.Context, tx store.PaymentTx) error) (bool, error) {
	if f.processed[eventID] {
		return true, nil
	}
	f.calls++
	if err := fn(ctx, f.tx); err != nil {
		return false, err
	}
	f.processed[eventID] = true
	return false, nil
}

type fakePaymentTx struct {
	bookings map[uuid.UUID]domain.Booking
	byRef    map[string]uuid.UUID
	logs     []domain.BookingEventLog
}

func newFakePaymentTx() *fakePaymentTx {
	return &fakePaymentTx{
		bookings: map[uuid.UUID]domain.Booking{},
		byRef:    map[string]uuid.UUID{},
	}
}

func (f *fakePaymentTx) addBooking(b domain.Booking) {
	f.bookings[b.ID] = b
	if b.ProviderPaymentRef != "" {
		f.byRef[b.ProviderPaymentRef] = b.ID
	}
}

func (f *fakePaymentTx) BookingByID(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakePaymentTx) BookingByProviderRef(ctx context.Context, providerRef string) (domain.Booking, error) {
	id, ok := f.byRef[providerRef]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return f.bookings[id], nil
}

func (f *fakePaymentTx) MarkPaid(ctx context.Context, bookingID uuid.UUID, providerRef string) error {
	b, ok := f.bookings[bookingID]
	if !ok {
		return store.ErrNotFound
	}
	b.PaymentStatus = domain.PaymentStatusPaid
	b.ProviderPaymentRef = providerRef
	f.bookings[bookingID] = b
	f.byRef[providerRef] = bookingID
	return nil
}

func (f *fakePaymentTx) MarkFailed(ctx context.Context, bookingID uuid.UUID) error {
	b, ok := f.bookings[bookingID]
	if !ok {
		return store.ErrNotFound
	}
	b.PaymentStatus = domain.PaymentStatusFailed
	f.bookings[bookingID] = b
	return nil
}

func (f *fakePaymentTx) AppendLog(ctx context.Context, entry domain.BookingEventLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

type fakePaymentNotifier struct {
	received []domain.Booking
}

func (f *fakePaymentNotifier) PaymentReceived(ctx context.Context, b domain.Booking) {
	f.received = append(f.received, b)
}

func signedEvent(t *testing.T, eventID, eventType string, data map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": data,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, SignPayload(testSecret, payload, time.Now().UTC())
}

func newTestService(tx *fakePaymentTx, notifier Notifier) (*Service, *fakeLedger) {
	ledger := newFakeLedger(tx)
	svc := NewService(ledger, notifier, Config{Secret: testSecret, Tolerance: 5 * time.Minute}, nil)
	return svc, ledger
}

func TestHandleEvent_MissingSecret(t *testing.T) {
	svc := NewService(newFakeLedger(newFakePaymentTx()), nil, Config{}, nil)

	_, err := svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=aa")
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("error = %v, want ErrMissingSecret", err)
	}
}

func TestHandleEvent_InvalidSignatureHasNoSideEffects(t *testing.T) {
	tx := newFakePaymentTx()
	svc, ledger := newTestService(tx, nil)

	payload, _ := signedEvent(t, "evt_1", "payment_confirmed", map[string]any{"id": "ch_1"})
	_, err := svc.HandleEvent(context.Background(), payload, "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("error = %v, want ErrInvalidSignature", err)
	}
	if ledger.calls != 0 || len(tx.logs) != 0 {
		t.Fatalf("side effects after signature rejection: calls=%d logs=%d", ledger.calls, len(tx.logs))
	}
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	svc, _ := newTestService(newFakePaymentTx(), nil)

	raw := []byte(`not json`)
	_, err := svc.HandleEvent(context.Background(), raw, SignPayload(testSecret, raw, time.Now().UTC()))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("error = %v, want ErrMalformedPayload", err)
	}

	raw = []byte(`{"type":"payment_confirmed","data":{}}`)
	_, err = svc.HandleEvent(context.Background(), raw, SignPayload(testSecret, raw, time.Now().UTC()))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("missing id: error = %v, want ErrMalformedPayload", err)
	}
}

func TestHandleEvent_PaymentConfirmed(t *testing.T) {
	bookingID := uuid.New()
	tx := newFakePaymentTx()
	tx.addBooking(domain.Booking{ID: bookingID, PaymentStatus: domain.PaymentStatusUnpaid})
	notifier := &fakePaymentNotifier{}
	svc, _ := newTestService(tx, notifier)

	payload, sig := signedEvent(t, "evt_123", "payment_confirmed", map[string]any{
		"id":       "ch_1",
		"amount":   15000,
		"currency": "PLN",
		"metadata": map[string]string{"booking_id": bookingID.String()},
	})
	ack, err := svc.HandleEvent(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if ack.Skipped {
		t.Fatalf("first delivery skipped")
	}

	b := tx.bookings[bookingID]
	if b.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("PaymentStatus = %q, want paid", b.PaymentStatus)
	}
	if b.ProviderPaymentRef != "ch_1" {
		t.Fatalf("ProviderPaymentRef = %q, want ch_1", b.ProviderPaymentRef)
	}
	if len(tx.logs) != 1 || tx.logs[0].EventType != domain.BookingEventPaymentReceived {
		t.Fatalf("logs = %+v, want one payment_received entry", tx.logs)
	}
	if len(notifier.received) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.received))
	}
}

func TestHandleEvent_DuplicateDeliverySkips(t *testing.T) {
	bookingID := uuid.New()
	tx := newFakePaymentTx()
	tx.addBooking(domain.Booking{ID: bookingID, PaymentStatus: domain.PaymentStatusUnpaid})
	notifier := &fakePaymentNotifier{}
	svc, ledger := newTestService(tx, notifier)

	payload, sig := signedEvent(t, "evt_123", "payment_confirmed", map[string]any{
		"id":       "ch_1",
		"metadata": map[string]string{"booking_id": bookingID.String()},
	})

	if _, err := svc.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("first delivery error: %v", err)
	}
	ack, err := svc.HandleEvent(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("second delivery error: %v", err)
	}
	if !ack.Skipped {
		t.Fatalf("second delivery not skipped")
	}
	if ledger.calls != 1 {
		t.Fatalf("business logic ran %d times, want 1", ledger.calls)
	}
	if len(tx.logs) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(tx.logs))
	}
	if len(notifier.received) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.received))
	}
}

func TestHandleEvent_PaymentFailed(t *testing.T) {
	bookingID := uuid.New()
	tx := newFakePaymentTx()
	tx.addBooking(domain.Booking{ID: bookingID, PaymentStatus: domain.PaymentStatusUnpaid, ProviderPaymentRef: "ch_9"})
	svc, _ := newTestService(tx, nil)

	payload, sig := signedEvent(t, "evt_200", "payment_failed", map[string]any{
		"id":             "ch_9",
		"failure_reason": "insufficient_funds",
	})
	if _, err := svc.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}

	if got := tx.bookings[bookingID].PaymentStatus; got != domain.PaymentStatusFailed {
		t.Fatalf("PaymentStatus = %q, want failed", got)
	}
	if len(tx.logs) != 1 || tx.logs[0].EventType != domain.BookingEventPaymentFailed {
		t.Fatalf("logs = %+v, want one payment_failed entry", tx.logs)
	}
}

func TestHandleEvent_ChargeRefundedLogsOnly(t *testing.T) {
	bookingID := uuid.New()
	tx := newFakePaymentTx()
	tx.addBooking(domain.Booking{ID: bookingID, PaymentStatus: domain.PaymentStatusPaid, ProviderPaymentRef: "ch_9"})
	svc, _ := newTestService(tx, nil)

	payload, sig := signedEvent(t, "evt_300", "charge_refunded", map[string]any{
		"id":       "ch_9",
		"amount":   5000,
		"currency": "PLN",
	})
	if _, err := svc.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}

	if got := tx.bookings[bookingID].PaymentStatus; got != domain.PaymentStatusPaid {
		t.Fatalf("PaymentStatus = %q, want unchanged paid", got)
	}
	if len(tx.logs) != 1 || tx.logs[0].EventType != domain.BookingEventCancelled {
		t.Fatalf("logs = %+v, want one cancelled-tagged entry", tx.logs)
	}
}

func TestHandleEvent_UnknownTypeAcked(t *testing.T) {
	tx := newFakePaymentTx()
	svc, ledger := newTestService(tx, nil)

	payload, sig := signedEvent(t, "evt_400", "customer_updated", map[string]any{"id": "cus_1"})
	ack, err := svc.HandleEvent(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if ack.Skipped {
		t.Fatalf("unknown type reported as skipped")
	}
	if ledger.calls != 0 {
		t.Fatalf("ledger touched for unknown type")
	}
}

func TestHandleEvent_UnknownBookingAcked(t *testing.T) {
	tx := newFakePaymentTx()
	svc, ledger := newTestService(tx, nil)

	payload, sig := signedEvent(t, "evt_500", "payment_confirmed", map[string]any{
		"id":       "ch_1",
		"metadata": map[string]string{"booking_id": uuid.NewString()},
	})
	ack, err := svc.HandleEvent(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if ack.Skipped {
		t.Fatalf("ack skipped, want processed")
	}
	if len(tx.logs) != 0 {
		t.Fatalf("audit entries for missing booking: %+v", tx.logs)
	}
	// The miss is still recorded so redelivery short-circuits.
	if !ledger.processed["evt_500"] {
		t.Fatalf("event id not recorded in ledger")
	}
}

func TestHandleEvent_OutOfOrderRefundBeforeConfirmation(t *testing.T) {
	bookingID := uuid.New()
	tx := newFakePaymentTx()
	tx.addBooking(domain.Booking{ID: bookingID, PaymentStatus: domain.PaymentStatusUnpaid})
	svc, _ := newTestService(tx, nil)

	// Refund arrives first; the provider ref is unknown, so it is acked
	// without effect rather than erroring.
	refund, refundSig := signedEvent(t, "evt_600", "charge_refunded", map[string]any{
		"id": "ch_7", "amount": 5000, "currency": "PLN",
	})
	if _, err := svc.HandleEvent(context.Background(), refund, refundSig); err != nil {
		t.Fatalf("refund delivery error: %v", err)
	}

	confirm, confirmSig := signedEvent(t, "evt_601", "payment_confirmed", map[string]any{
		"id":       "ch_7",
		"metadata": map[string]string{"booking_id": bookingID.String()},
	})
	if _, err := svc.HandleEvent(context.Background(), confirm, confirmSig); err != nil {
		t.Fatalf("confirm delivery error: %v", err)
	}
	if got := tx.bookings[bookingID].PaymentStatus; got != domain.PaymentStatusPaid {
		t.Fatalf("PaymentStatus = %q, want paid", got)
	}
}

func TestHandleEvent_StoreErrorPropagates(t *testing.T) {
	boom := fmt.Errorf("connection reset")
	svc := NewService(&erroringLedger{err: boom}, nil, Config{Secret: testSecret, Tolerance: 5 * time.Minute}, nil)

	payload, sig := signedEvent(t, "evt_700", "payment_failed", map[string]any{"id": "ch_1"})
	_, err := svc.HandleEvent(context.Background(), payload, sig)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want store error to propagate", err)
	}
}

type erroringLedger struct {
	err error
}

func (f *erroringLedger) ProcessEvent(ctx context.Context, eventID string, fn func(ctx context.Context, tx store.PaymentTx) error) (bool, error) {
	return false, f.err
}
