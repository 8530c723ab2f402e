package model

import (
	"fmt"
	"sync"
	"time"
)

// FlightParams is the immutable description of a flight as published by its
// airline.
type FlightParams struct {
	Code       string
	From       Airport
	To         Airport
	Departs    time.Time
	Airline    string
	TotalSeats int
	Schedule   PriceSchedule
}

// FlightState is a consistent reading of a flight's seat counter and price:
// both values come from the same completed mutation.
type FlightState struct {
	Code      string  `json:"code"`
	Remaining int     `json:"remaining"`
	Total     int     `json:"total"`
	Price     float64 `json:"price"`
}

// Flight owns the seat inventory and current fare of one scheduled flight.
// Remaining seats and price form a coupled pair: every change to the seat
// counter recomputes the price under the same lock, and readers always see a
// pair produced by one mutation.
type Flight struct {
	params FlightParams

	mu        sync.RWMutex
	remaining int
	price     float64
}

// NewFlight validates p and returns a flight with every seat available at
// the base price.
func NewFlight(p FlightParams) (*Flight, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Flight{params: p, remaining: p.TotalSeats, price: p.Schedule.Base}, nil
}

// RestoreFlight rebuilds a flight from persisted counters. The lock is new;
// remaining and price resume exactly as saved.
func RestoreFlight(p FlightParams, remaining int, price float64) (*Flight, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if remaining < 0 || remaining > p.TotalSeats {
		return nil, fmt.Errorf("%w: %s remaining %d outside [0, %d]", ErrInvalidFlight, p.Code, remaining, p.TotalSeats)
	}
	if price < p.Schedule.Base || price > p.Schedule.Max {
		return nil, fmt.Errorf("%w: %s price %.2f outside schedule", ErrInvalidFlight, p.Code, price)
	}
	return &Flight{params: p, remaining: remaining, price: price}, nil
}

func (p FlightParams) validate() error {
	if p.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidFlight)
	}
	if p.TotalSeats <= 0 {
		return fmt.Errorf("%w: %s has no seats", ErrInvalidFlight, p.Code)
	}
	if err := p.Schedule.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p.Code, err)
	}
	return nil
}

func (f *Flight) Code() string            { return f.params.Code }
func (f *Flight) From() Airport           { return f.params.From }
func (f *Flight) To() Airport             { return f.params.To }
func (f *Flight) Departs() time.Time      { return f.params.Departs }
func (f *Flight) Airline() string         { return f.params.Airline }
func (f *Flight) TotalSeats() int         { return f.params.TotalSeats }
func (f *Flight) Schedule() PriceSchedule { return f.params.Schedule }
func (f *Flight) Params() FlightParams    { return f.params }

// ReserveSeats takes n seats if at least n remain and reprices the flight.
// A failed attempt leaves the flight untouched.
func (f *Flight) ReserveSeats(n int) error {
	if n <= 0 {
		return ErrInvalidPartySize
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining < n {
		return fmt.Errorf("%w: %s has %d seats, %d requested", ErrInsufficientInventory, f.params.Code, f.remaining, n)
	}
	f.remaining -= n
	f.reprice()
	return nil
}

// ReleaseSeats returns n seats to the flight and reprices it. The counter is
// clamped at the total so a duplicate release cannot create seats.
func (f *Flight) ReleaseSeats(n int) {
	if n <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remaining += n
	if f.remaining > f.params.TotalSeats {
		f.remaining = f.params.TotalSeats
	}
	f.reprice()
}

// reprice must be called with mu held for writing.
func (f *Flight) reprice() {
	f.price = f.params.Schedule.PriceAt(f.params.TotalSeats - f.remaining)
}

func (f *Flight) CurrentPrice() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price
}

func (f *Flight) RemainingSeats() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.remaining
}

// State returns the seat counter and price as one consistent pair.
func (f *Flight) State() FlightState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FlightState{
		Code:      f.params.Code,
		Remaining: f.remaining,
		Total:     f.params.TotalSeats,
		Price:     f.price,
	}
}

func (f *Flight) String() string {
	s := f.State()
	return fmt.Sprintf("%s: %s -> %s, %s, %s, price %.2f (%d/%d seats)",
		f.params.Code, f.params.From.Code, f.params.To.Code, f.params.Airline,
		f.params.Departs.Format(time.RFC3339), s.Price, s.Remaining, s.Total)
}
