package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"slotbook/internal/domain"
)

// Publisher enqueues notification events on a topic exchange for the
// out-of-process dispatcher. Publishing is best effort: a broker hiccup is
// logged and the triggering request still succeeds.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
}

func NewPublisher(url, exchange string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		log:      log.With(slog.String("component", "notify")),
	}, nil
}

type bookingEvent struct {
	Event      string    `json:"event"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		BookingID   string    `json:"booking_id"`
		ServiceID   string    `json:"service_id"`
		StartTime   time.Time `json:"start_time"`
		EndTime     time.Time `json:"end_time"`
		ClientEmail string    `json:"client_email"`
	} `json:"data"`
}

func (p *Publisher) BookingCreated(ctx context.Context, b domain.Booking) {
	p.publish(ctx, "booking.created", b)
}

func (p *Publisher) BookingRescheduled(ctx context.Context, b domain.Booking) {
	p.publish(ctx, "booking.rescheduled", b)
}

func (p *Publisher) PaymentReceived(ctx context.Context, b domain.Booking) {
	p.publish(ctx, "payment.received", b)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, b domain.Booking) {
	evt := bookingEvent{
		Event:      routingKey,
		Version:    1,
		OccurredAt: time.Now().UTC(),
	}
	evt.Data.BookingID = b.ID.String()
	evt.Data.ServiceID = b.ServiceID.String()
	evt.Data.StartTime = b.StartTime
	evt.Data.EndTime = b.EndTime
	evt.Data.ClientEmail = b.ClientEmail

	body, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("notification marshal failed", slog.Any("err", err), slog.String("routing_key", routingKey))
		return
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.log.Warn("notification publish failed",
			slog.Any("err", err),
			slog.String("routing_key", routingKey),
			slog.String("booking_id", b.ID.String()),
		)
		return
	}

	p.log.Debug("notification enqueued",
		slog.String("routing_key", routingKey),
		slog.String("booking_id", b.ID.String()),
	)
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
