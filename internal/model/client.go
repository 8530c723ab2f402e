package model

import (
	"sync"
	"time"
)

// Client is a traveller whose reservations are booked through an agent or
// directly with an airline. The client only references reservations; the
// owning airline keeps the authoritative copy.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	mu           sync.RWMutex
	reservations []*Reservation
}

func NewClient(id, name string) *Client { return &Client{ID: id, Name: name} }

// AddReservation appends r to the client's list.
func (c *Client) AddReservation(r *Reservation) {
	c.mu.Lock()
	c.reservations = append(c.reservations, r)
	c.mu.Unlock()
}

// Reservations returns a copy of every reservation the client holds.
func (c *Client) Reservations() []*Reservation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Reservation, len(c.reservations))
	copy(out, c.reservations)
	return out
}

// Active returns reservations still awaiting payment. Overdue ones are
// expired on the way, which releases their seats.
func (c *Client) Active(now time.Time) []*Reservation {
	var out []*Reservation
	for _, r := range c.Reservations() {
		r.Expire(now)
		if r.Status() == StatusActive && !r.Overdue(now) {
			out = append(out, r)
		}
	}
	return out
}

// History returns paid, expired and overdue reservations.
func (c *Client) History(now time.Time) []*Reservation {
	var out []*Reservation
	for _, r := range c.Reservations() {
		if r.Status().Terminal() || r.Overdue(now) {
			out = append(out, r)
		}
	}
	return out
}
