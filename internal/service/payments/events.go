package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrMalformedPayload = errors.New("malformed webhook payload")

type envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// chargeData is the provider's charge object as embedded in event data. The
// booking id travels in charge metadata on confirmation; later events carry
// only the provider's own payment reference.
type chargeData struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Reason   string            `json:"failure_reason"`
	Metadata map[string]string `json:"metadata"`
}

// eventPayload is a closed set: the three event types this system acts on
// plus an explicit unhandled arm. The provider's taxonomy grows over time;
// anything not decoded below becomes unknownEvent and is acknowledged
// without side effects so new types never cause redelivery storms.
type eventPayload interface {
	isEventPayload()
}

type paymentConfirmed struct {
	BookingID   uuid.UUID
	ProviderRef string
	Amount      int64
	Currency    string
}

type paymentFailed struct {
	ProviderRef string
	Reason      string
}

type chargeRefunded struct {
	ProviderRef string
	Amount      int64
	Currency    string
}

type unknownEvent struct {
	Type string
}

func (paymentConfirmed) isEventPayload() {}
func (paymentFailed) isEventPayload()    {}
func (chargeRefunded) isEventPayload()   {}
func (unknownEvent) isEventPayload()     {}

func decodeEvent(env envelope) (eventPayload, error) {
	switch env.Type {
	case "payment_confirmed":
		var ch chargeData
		if err := json.Unmarshal(env.Data, &ch); err != nil {
			return nil, fmt.Errorf("%w: %s data", ErrMalformedPayload, env.Type)
		}
		if ch.ID == "" {
			return nil, fmt.Errorf("%w: payment_confirmed without charge id", ErrMalformedPayload)
		}
		bookingID, err := uuid.Parse(strings.TrimSpace(ch.Metadata["booking_id"]))
		if err != nil {
			return nil, fmt.Errorf("%w: payment_confirmed without booking_id metadata", ErrMalformedPayload)
		}
		return paymentConfirmed{
			BookingID:   bookingID,
			ProviderRef: ch.ID,
			Amount:      ch.Amount,
			Currency:    ch.Currency,
		}, nil

	case "payment_failed":
		var ch chargeData
		if err := json.Unmarshal(env.Data, &ch); err != nil {
			return nil, fmt.Errorf("%w: %s data", ErrMalformedPayload, env.Type)
		}
		if ch.ID == "" {
			return nil, fmt.Errorf("%w: payment_failed without charge id", ErrMalformedPayload)
		}
		return paymentFailed{ProviderRef: ch.ID, Reason: ch.Reason}, nil

	case "charge_refunded":
		var ch chargeData
		if err := json.Unmarshal(env.Data, &ch); err != nil {
			return nil, fmt.Errorf("%w: %s data", ErrMalformedPayload, env.Type)
		}
		if ch.ID == "" {
			return nil, fmt.Errorf("%w: charge_refunded without charge id", ErrMalformedPayload)
		}
		return chargeRefunded{ProviderRef: ch.ID, Amount: ch.Amount, Currency: ch.Currency}, nil

	default:
		return unknownEvent{Type: env.Type}, nil
	}
}
