package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/model"
)

// RevenueReporter receives a payer's declared revenue for one day.
type RevenueReporter interface {
	ReportRevenue(ctx context.Context, payer string, date model.Date, amount float64) error
}

// InventoryListener is called with a flight's new state after seats were
// taken or returned.
type InventoryListener func(model.FlightState)

// Airline owns its flights and every reservation made on them, and records
// the revenue collected from payments.
type Airline struct {
	name     string
	discount float64
	clock    clock.Clock
	logger   *slog.Logger

	flights      sync.Map // code -> *model.Flight
	reservations sync.Map // id -> *model.Reservation
	revenue      *Revenue

	listenersMu sync.RWMutex
	listeners   []InventoryListener
}

// NewAirline creates an airline granting discount (a fraction) on payments
// that come through an agent.
func NewAirline(name string, discount float64, clk clock.Clock, logger *slog.Logger) *Airline {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Airline{
		name:     name,
		discount: discount,
		clock:    clk,
		logger:   logger.With("airline", name),
		revenue:  NewRevenue(nil),
	}
}

func (a *Airline) Name() string      { return a.name }
func (a *Airline) Discount() float64 { return a.discount }

// AddFlight publishes f. Codes are unique per airline.
func (a *Airline) AddFlight(f *model.Flight) error {
	if f.Airline() != a.name {
		return fmt.Errorf("flight %s belongs to %q: %w", f.Code(), f.Airline(), model.ErrInvalidFlight)
	}
	if _, loaded := a.flights.LoadOrStore(f.Code(), f); loaded {
		return fmt.Errorf("flight %s: %w", f.Code(), model.ErrDuplicate)
	}
	return nil
}

func (a *Airline) Flight(code string) (*model.Flight, error) {
	v, ok := a.flights.Load(code)
	if !ok {
		return nil, fmt.Errorf("flight %s: %w", code, model.ErrNotFound)
	}
	return v.(*model.Flight), nil
}

// Flights returns every flight ordered by code.
func (a *Airline) Flights() []*model.Flight {
	var out []*model.Flight
	a.flights.Range(func(_, v any) bool {
		out = append(out, v.(*model.Flight))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}

// FindFlights returns the flights matching q that still have seats.
func (a *Airline) FindFlights(q Query) []*model.Flight {
	var out []*model.Flight
	for _, f := range a.Flights() {
		if q.Matches(f) {
			out = append(out, f)
		}
	}
	return out
}

// OnInventoryChange registers fn to be called after every seat change made
// through this airline.
func (a *Airline) OnInventoryChange(fn InventoryListener) {
	a.listenersMu.Lock()
	a.listeners = append(a.listeners, fn)
	a.listenersMu.Unlock()
}

func (a *Airline) notify(flights ...*model.Flight) {
	a.listenersMu.RLock()
	listeners := a.listeners
	a.listenersMu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	for _, f := range flights {
		if f == nil {
			continue
		}
		st := f.State()
		for _, fn := range listeners {
			fn(st)
		}
	}
}

// ReserveFlight holds party seats on the outbound flight and, when
// returnCode is set, on the return flight. If the return leg cannot be
// held the outbound seats are given back before the error is returned.
// agent names the brokering agent and is empty for direct bookings.
func (a *Airline) ReserveFlight(outboundCode, returnCode string, party int, agent string) (*model.Reservation, error) {
	if party <= 0 {
		return nil, model.ErrInvalidPartySize
	}
	out, err := a.Flight(outboundCode)
	if err != nil {
		return nil, err
	}
	if err := out.ReserveSeats(party); err != nil {
		return nil, err
	}

	var ret *model.Flight
	if returnCode != "" {
		ret, err = a.Flight(returnCode)
		if err == nil {
			err = ret.ReserveSeats(party)
		}
		if err != nil {
			out.ReleaseSeats(party)
			a.notify(out)
			a.logger.Info("round trip rejected", "outbound", outboundCode, "return", returnCode, "party", party, "err", err)
			return nil, err
		}
	}

	r := model.NewReservation(out, ret, party, agent, a.clock.Now())
	a.reservations.Store(r.ID(), r)
	a.notify(out, ret)
	a.logger.Info("reservation created", "reservation", r.ID(), "outbound", outboundCode, "return", returnCode, "party", party, "agent", agent)
	return r, nil
}

func (a *Airline) Reservation(id string) (*model.Reservation, error) {
	v, ok := a.reservations.Load(id)
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, model.ErrNotFound)
	}
	return v.(*model.Reservation), nil
}

// AdoptReservation registers a reservation rebuilt from a snapshot. Its
// seats are already counted in the restored flights.
func (a *Airline) AdoptReservation(r *model.Reservation) error {
	if _, loaded := a.reservations.LoadOrStore(r.ID(), r); loaded {
		return fmt.Errorf("reservation %s: %w", r.ID(), model.ErrDuplicate)
	}
	return nil
}

// Reservations returns every reservation ordered by creation time.
func (a *Airline) Reservations() []*model.Reservation {
	var out []*model.Reservation
	a.reservations.Range(func(_, v any) bool {
		out = append(out, v.(*model.Reservation))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

// ActiveReservations expires overdue reservations and returns those still
// awaiting payment.
func (a *Airline) ActiveReservations() []*model.Reservation {
	now := a.clock.Now()
	var out []*model.Reservation
	for _, r := range a.Reservations() {
		if r.Expire(now) {
			a.notify(r.Outbound(), r.Return())
		}
		if r.Status() == model.StatusActive {
			out = append(out, r)
		}
	}
	return out
}

// PayReservation charges the current fare, reduced by the airline's agent
// discount when discounted is set, and credits it to today's revenue.
func (a *Airline) PayReservation(id string, discounted bool) (float64, error) {
	r, err := a.Reservation(id)
	if err != nil {
		return 0, err
	}
	var discount float64
	if discounted {
		discount = a.discount
	}
	now := a.clock.Now()
	amount, err := r.Pay(now, discount)
	if err != nil {
		if r.Status() == model.StatusExpired {
			a.notify(r.Outbound(), r.Return())
		}
		return 0, err
	}
	a.revenue.Add(model.DateOf(now), amount)
	a.logger.Info("reservation paid", "reservation", id, "amount", amount, "discounted", discounted)
	return amount, nil
}

// QuoteReservation returns what paying id would cost now.
func (a *Airline) QuoteReservation(id string, discounted bool) (float64, error) {
	r, err := a.Reservation(id)
	if err != nil {
		return 0, err
	}
	price := r.CurrentPrice()
	if discounted {
		price *= 1 - a.discount
	}
	return price, nil
}

// CancelReservation gives the seats of an unpaid reservation back.
func (a *Airline) CancelReservation(id string) error {
	r, err := a.Reservation(id)
	if err != nil {
		return err
	}
	if err := r.Cancel(); err != nil {
		return err
	}
	a.notify(r.Outbound(), r.Return())
	a.logger.Info("reservation cancelled", "reservation", id)
	return nil
}

// ExpireIfOverdue expires r when its deadline has passed and tells the
// inventory listeners about the released seats. It reports whether r
// changed state.
func (a *Airline) ExpireIfOverdue(r *model.Reservation) bool {
	if !r.Expire(a.clock.Now()) {
		return false
	}
	a.notify(r.Outbound(), r.Return())
	return true
}

// ExpireOverdue expires every overdue reservation and returns how many
// changed state.
func (a *Airline) ExpireOverdue() int {
	now := a.clock.Now()
	n := 0
	a.reservations.Range(func(_, v any) bool {
		r := v.(*model.Reservation)
		if r.Expire(now) {
			a.notify(r.Outbound(), r.Return())
			n++
		}
		return true
	})
	if n > 0 {
		a.logger.Info("expired overdue reservations", "count", n)
	}
	return n
}

func (a *Airline) RevenueOn(date model.Date) float64 { return a.revenue.On(date) }

// Revenue returns a copy of the revenue recorded per day.
func (a *Airline) Revenue() map[model.Date]float64 { return a.revenue.All() }

// RestoreRevenue replaces the recorded revenue with a copy of m.
func (a *Airline) RestoreRevenue(m map[model.Date]float64) { a.revenue.Replace(m) }

// DeclareRevenue reports the revenue recorded for date to r and returns the
// declared amount.
func (a *Airline) DeclareRevenue(ctx context.Context, r RevenueReporter, date model.Date) (float64, error) {
	amount := a.revenue.On(date)
	if err := r.ReportRevenue(ctx, a.name, date, amount); err != nil {
		return 0, fmt.Errorf("declare revenue for %s: %w", a.name, err)
	}
	return amount, nil
}
