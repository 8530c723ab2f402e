package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaymentWindow is how long a reservation holds its seats before it must be
// paid.
const PaymentWindow = 24 * time.Hour

// Status is the lifecycle state of a reservation. ACTIVE moves to exactly one
// of PAID or EXPIRED; both are terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusPaid    Status = "PAID"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool { return s == StatusPaid || s == StatusExpired }

// Reservation is a hold on party-size seats of one outbound flight and an
// optional return flight. Its transitions are serialized by its own mutex,
// which is always taken before any flight lock.
//
// Fields:
//
//	id            – generated UUID
//	outbound/ret  – flights holding the seats (ret may be nil)
//	party         – seats held on each leg
//	deadline      – createdAt + PaymentWindow
//	agent         – brokering agent, empty for direct bookings
//	bookedOut/Ret – leg prices captured at creation, for display only
type Reservation struct {
	id        string
	outbound  *Flight
	ret       *Flight
	party     int
	createdAt time.Time
	deadline  time.Time
	agent     string
	bookedOut float64
	bookedRet float64

	mu         sync.Mutex
	status     Status
	paidAt     time.Time
	paidAmount float64
}

// ReservationData is the plain, persistable form of a reservation.
type ReservationData struct {
	ID             string
	OutboundCode   string
	ReturnCode     string
	PartySize      int
	CreatedAt      time.Time
	Deadline       time.Time
	Status         Status
	Agent          string
	BookedOutbound float64
	BookedReturn   float64
	PaidAt         time.Time
	PaidAmount     float64
}

// NewReservation records a hold whose seats the caller has already taken on
// outbound and, when non-nil, ret.
func NewReservation(outbound, ret *Flight, party int, agent string, now time.Time) *Reservation {
	r := &Reservation{
		id:        uuid.NewString(),
		outbound:  outbound,
		ret:       ret,
		party:     party,
		createdAt: now,
		deadline:  now.Add(PaymentWindow),
		agent:     agent,
		bookedOut: outbound.CurrentPrice(),
		status:    StatusActive,
	}
	if ret != nil {
		r.bookedRet = ret.CurrentPrice()
	}
	return r
}

// RestoreReservation rebuilds a reservation from d. The flights must be the
// restored flights whose codes d names; the seats they hold are already part
// of their persisted counters.
func RestoreReservation(d ReservationData, outbound, ret *Flight) (*Reservation, error) {
	if outbound == nil || outbound.Code() != d.OutboundCode {
		return nil, fmt.Errorf("reservation %s: %w: outbound flight %s", d.ID, ErrNotFound, d.OutboundCode)
	}
	if (d.ReturnCode == "") != (ret == nil) || (ret != nil && ret.Code() != d.ReturnCode) {
		return nil, fmt.Errorf("reservation %s: %w: return flight %s", d.ID, ErrNotFound, d.ReturnCode)
	}
	switch d.Status {
	case StatusActive, StatusPaid, StatusExpired:
	default:
		return nil, fmt.Errorf("reservation %s: unknown status %q", d.ID, d.Status)
	}
	if d.PartySize <= 0 {
		return nil, fmt.Errorf("reservation %s: %w", d.ID, ErrInvalidPartySize)
	}
	return &Reservation{
		id:         d.ID,
		outbound:   outbound,
		ret:        ret,
		party:      d.PartySize,
		createdAt:  d.CreatedAt,
		deadline:   d.Deadline,
		agent:      d.Agent,
		bookedOut:  d.BookedOutbound,
		bookedRet:  d.BookedReturn,
		status:     d.Status,
		paidAt:     d.PaidAt,
		paidAmount: d.PaidAmount,
	}, nil
}

func (r *Reservation) ID() string           { return r.id }
func (r *Reservation) Outbound() *Flight    { return r.outbound }
func (r *Reservation) Return() *Flight      { return r.ret }
func (r *Reservation) PartySize() int       { return r.party }
func (r *Reservation) CreatedAt() time.Time { return r.createdAt }
func (r *Reservation) Deadline() time.Time  { return r.deadline }
func (r *Reservation) Agent() string        { return r.agent }

func (r *Reservation) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Overdue reports whether the payment deadline has passed at now. It does
// not look at or change the status.
func (r *Reservation) Overdue(now time.Time) bool { return now.After(r.deadline) }

// BookedPrice is the total fare captured when the reservation was made.
func (r *Reservation) BookedPrice() float64 {
	return (r.bookedOut + r.bookedRet) * float64(r.party)
}

// CurrentPrice is the total fare at the legs' current prices. Payment charges
// this amount, not BookedPrice.
func (r *Reservation) CurrentPrice() float64 {
	total := r.outbound.CurrentPrice() * float64(r.party)
	if r.ret != nil {
		total += r.ret.CurrentPrice() * float64(r.party)
	}
	return total
}

// Pay moves an ACTIVE reservation to PAID and returns the amount charged:
// the current fare reduced by discount (a fraction, 0 for none). An overdue
// reservation is expired instead and its seats are released.
func (r *Reservation) Pay(now time.Time, discount float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case StatusPaid:
		return 0, fmt.Errorf("reservation %s: %w", r.id, ErrAlreadyPaid)
	case StatusExpired:
		return 0, fmt.Errorf("reservation %s: %w", r.id, ErrExpired)
	}
	if r.Overdue(now) {
		r.expireLocked()
		return 0, fmt.Errorf("reservation %s: %w", r.id, ErrExpired)
	}
	amount := r.CurrentPrice() * (1 - discount)
	r.status = StatusPaid
	r.paidAt = now
	r.paidAmount = amount
	return amount, nil
}

// Cancel releases the held seats and marks the reservation EXPIRED.
// Cancellation shares the terminal state with expiry.
func (r *Reservation) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case StatusPaid:
		return fmt.Errorf("reservation %s: %w", r.id, ErrAlreadyPaid)
	case StatusExpired:
		return fmt.Errorf("reservation %s: %w", r.id, ErrExpired)
	}
	r.expireLocked()
	return nil
}

// Expire expires an overdue ACTIVE reservation and releases its seats. It
// returns true only for the call that performed the transition, so seats are
// released once no matter how many callers evaluate the same reservation.
func (r *Reservation) Expire(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusActive || !r.Overdue(now) {
		return false
	}
	r.expireLocked()
	return true
}

func (r *Reservation) expireLocked() {
	r.outbound.ReleaseSeats(r.party)
	if r.ret != nil {
		r.ret.ReleaseSeats(r.party)
	}
	r.status = StatusExpired
}

// Data returns the persistable form of r.
func (r *Reservation) Data() ReservationData {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := ReservationData{
		ID:             r.id,
		OutboundCode:   r.outbound.Code(),
		PartySize:      r.party,
		CreatedAt:      r.createdAt,
		Deadline:       r.deadline,
		Status:         r.status,
		Agent:          r.agent,
		BookedOutbound: r.bookedOut,
		BookedReturn:   r.bookedRet,
		PaidAt:         r.paidAt,
		PaidAmount:     r.paidAmount,
	}
	if r.ret != nil {
		d.ReturnCode = r.ret.Code()
	}
	return d
}

// ReservationView is the JSON shape returned by the API.
type ReservationView struct {
	ID           string     `json:"id"`
	Outbound     string     `json:"outbound"`
	Return       string     `json:"return,omitempty"`
	PartySize    int        `json:"party_size"`
	Status       Status     `json:"status"`
	Agent        string     `json:"agent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Deadline     time.Time  `json:"deadline"`
	BookedPrice  float64    `json:"booked_price"`
	CurrentPrice float64    `json:"current_price"`
	PaidAmount   float64    `json:"paid_amount,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

func (r *Reservation) View() ReservationView {
	d := r.Data()
	v := ReservationView{
		ID:           d.ID,
		Outbound:     d.OutboundCode,
		Return:       d.ReturnCode,
		PartySize:    d.PartySize,
		Status:       d.Status,
		Agent:        d.Agent,
		CreatedAt:    d.CreatedAt,
		Deadline:     d.Deadline,
		BookedPrice:  r.BookedPrice(),
		CurrentPrice: r.CurrentPrice(),
		PaidAmount:   d.PaidAmount,
	}
	if d.Status == StatusPaid {
		paidAt := d.PaidAt
		v.PaidAt = &paidAt
	}
	return v
}
