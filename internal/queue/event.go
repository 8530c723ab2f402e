// Package queue defines the marketplace's broker messages and the
// consumers that act on them.
package queue

// Durable queues on the default exchange; the routing key is the queue name.
const (
	QueueReservationPaid = "reservation.paid"
	QueueRevenueDeclared = "revenue.declared"
)

// ReservationPaidEvent is published after a payment succeeds. It carries
// enough to audit the payment without querying the marketplace.
type ReservationPaidEvent struct {
	ReservationID string  `json:"reservation_id"`
	Airline       string  `json:"airline"`
	Agent         string  `json:"agent,omitempty"`
	Outbound      string  `json:"outbound"`
	Return        string  `json:"return,omitempty"`
	PartySize     int     `json:"party_size"`
	Amount        float64 `json:"amount"`
	Commission    float64 `json:"commission,omitempty"`
	PaidAt        string  `json:"paid_at"`
}

// RevenueDeclaredEvent asks the tax consumer to record a payer's revenue
// for one day.
type RevenueDeclaredEvent struct {
	Payer      string  `json:"payer"`
	Date       string  `json:"date"`
	Amount     float64 `json:"amount"`
	DeclaredAt string  `json:"declared_at"`
}
