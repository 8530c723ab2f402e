package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/queue"
)

// EventPublisher emits domain events. Publishing failures never undo the
// operation that produced the event.
type EventPublisher interface {
	PublishReservationPaid(ctx context.Context, ev queue.ReservationPaidEvent) error
	PublishRevenueDeclared(ctx context.Context, ev queue.RevenueDeclaredEvent) error
}

// AMQPPublisher publishes JSON events to durable queues on the default
// exchange. The connection is opened lazily and reopened after a failure.
type AMQPPublisher struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, logger: logger}
}

func (p *AMQPPublisher) PublishReservationPaid(ctx context.Context, ev queue.ReservationPaidEvent) error {
	return p.publish(ctx, queue.QueueReservationPaid, ev)
}

func (p *AMQPPublisher) PublishRevenueDeclared(ctx context.Context, ev queue.RevenueDeclaredEvent) error {
	return p.publish(ctx, queue.QueueRevenueDeclared, ev)
}

// ReportRevenue sends a declaration through the broker, where the tax
// consumer records it.
func (p *AMQPPublisher) ReportRevenue(ctx context.Context, payer string, date model.Date, amount float64) error {
	return p.PublishRevenueDeclared(ctx, queue.RevenueDeclaredEvent{
		Payer:      payer,
		Date:       date.String(),
		Amount:     amount,
		DeclaredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	for _, q := range []string{queue.QueueReservationPaid, queue.QueueRevenueDeclared} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("queue declare %s: %w", q, err)
		}
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		p.logger.Warn("rabbitmq unavailable", "queue", routingKey, "err", err)
		return err
	}
	err = ch.PublishWithContext(ctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		p.logger.Warn("rabbitmq publish failed", "queue", routingKey, "err", err)
		return err
	}
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// LogPublisher stands in when no broker is configured: events are logged
// and dropped.
type LogPublisher struct{ Logger *slog.Logger }

func (p LogPublisher) PublishReservationPaid(_ context.Context, ev queue.ReservationPaidEvent) error {
	p.Logger.Debug("event", "queue", queue.QueueReservationPaid, "reservation", ev.ReservationID, "amount", ev.Amount)
	return nil
}

func (p LogPublisher) PublishRevenueDeclared(_ context.Context, ev queue.RevenueDeclaredEvent) error {
	p.Logger.Debug("event", "queue", queue.QueueRevenueDeclared, "payer", ev.Payer, "date", ev.Date)
	return nil
}
