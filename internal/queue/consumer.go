package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/flight-marketplace/internal/model"
)

// Handler processes one message body. A returned error rejects the message
// without requeueing it.
type Handler func(body []byte) error

// Consumer reads one durable queue and hands each delivery to Handle.
type Consumer struct {
	URL    string
	Queue  string
	Handle Handler
	Logger *slog.Logger
}

// Run connects to the broker and consumes until ctx is done, reconnecting
// with exponential backoff whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("queue", c.Queue)

	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			logger.Warn("broker dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			logger.Info("consumer stopped")
			return
		}
		logger.Warn("consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("set qos failed", "err", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				logger.Warn("message rejected", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// TaxRecorder is the part of the tax sink the revenue consumer needs.
type TaxRecorder interface {
	Report(payer string, date model.Date, amount float64) error
}

// RevenueDeclaredHandler records each RevenueDeclaredEvent in sink.
func RevenueDeclaredHandler(sink TaxRecorder) Handler {
	return func(body []byte) error {
		var ev RevenueDeclaredEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		date, err := model.ParseDate(ev.Date)
		if err != nil {
			return err
		}
		return sink.Report(ev.Payer, date, ev.Amount)
	}
}

// PaymentAuditHandler appends one line per ReservationPaidEvent to w.
func PaymentAuditHandler(w io.Writer) Handler {
	return func(body []byte) error {
		var ev ReservationPaidEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		via := ev.Agent
		if via == "" {
			via = "direct"
		}
		legs := ev.Outbound
		if ev.Return != "" {
			legs += "+" + ev.Return
		}
		_, err := fmt.Fprintf(w, "[%s] reservation paid | id=%s | airline=%s | via=%s | flights=%s | party=%d | amount=%.2f | commission=%.2f\n",
			ev.PaidAt, ev.ReservationID, ev.Airline, via, legs, ev.PartySize, ev.Amount, ev.Commission)
		if err != nil {
			return fmt.Errorf("write audit: %w", err)
		}
		return nil
	}
}
