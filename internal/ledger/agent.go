package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/workerpool"
)

// Pool defaults for an agent's asynchronous operations.
const (
	DefaultWorkers   = 3
	DefaultQueueSize = 64
)

// Charge is the outcome of a payment brokered by an agent.
type Charge struct {
	// Base is what the airline collected after its agent discount.
	Base float64 `json:"base"`
	// Commission is the agent's share, credited to the agent's revenue.
	Commission float64 `json:"commission"`
	// Total is what the client pays: Base plus Commission.
	Total float64 `json:"total"`
}

// BookRequest names the legs and party size of an agent booking. When
// Client is set the new reservation is added to the client's list.
type BookRequest struct {
	Outbound  string
	Return    string
	PartySize int
	Client    *model.Client
}

// Gate is held shared by asynchronous tasks while they run, letting an
// owner with the exclusive side pause them (for a consistent snapshot).
type Gate interface {
	RLock()
	RUnlock()
}

// Agent brokers reservations across the airlines it works with and earns a
// commission on every payment. It does not own reservations: it only
// remembers which airline holds each one it brokered.
type Agent struct {
	name       string
	commission float64
	clock      clock.Clock
	logger     *slog.Logger

	airlines sync.Map // name -> *Airline
	brokered sync.Map // reservation id -> airline name
	revenue  *Revenue
	pool     *workerpool.Pool
	gate     Gate
}

// NewAgent creates an agent charging commission (a fraction) on top of the
// airline's price. Its asynchronous operations run on workers goroutines
// behind a queue of queueSize.
func NewAgent(name string, commission float64, workers, queueSize int, clk clock.Clock, logger *slog.Logger) *Agent {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent", name)
	return &Agent{
		name:       name,
		commission: commission,
		clock:      clk,
		logger:     logger,
		revenue:    NewRevenue(nil),
		pool:       workerpool.New(workers, queueSize, logger),
	}
}

// SetGate makes asynchronous tasks hold gt while they run. It must be
// called before any asynchronous work is submitted.
func (g *Agent) SetGate(gt Gate) { g.gate = gt }

func (g *Agent) Name() string        { return g.name }
func (g *Agent) Commission() float64 { return g.commission }

func (g *Agent) AddAirline(a *Airline) error {
	if _, loaded := g.airlines.LoadOrStore(a.Name(), a); loaded {
		return fmt.Errorf("airline %s: %w", a.Name(), model.ErrDuplicate)
	}
	return nil
}

// Airlines returns the agent's airlines ordered by name.
func (g *Agent) Airlines() []*Airline {
	var out []*Airline
	g.airlines.Range(func(_, v any) bool {
		out = append(out, v.(*Airline))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (g *Agent) airline(name string) (*Airline, bool) {
	v, ok := g.airlines.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Airline), true
}

// FindFlights returns the matching flights of every airline, cheapest
// first. Prices move concurrently, so the order is advisory.
func (g *Agent) FindFlights(q Query) []*model.Flight {
	type priced struct {
		f     *model.Flight
		price float64
	}
	var all []priced
	for _, a := range g.Airlines() {
		for _, f := range a.FindFlights(q) {
			all = append(all, priced{f: f, price: f.CurrentPrice()})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].price < all[j].price })
	out := make([]*model.Flight, len(all))
	for i, p := range all {
		out[i] = p.f
	}
	return out
}

func (g *Agent) ownerOf(code string) (*Airline, error) {
	for _, a := range g.Airlines() {
		if _, err := a.Flight(code); err == nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("flight %s: %w", code, model.ErrNotFound)
}

// BookFlight reserves the requested legs with the airline selling the
// outbound flight. Both legs must be sold by that airline.
func (g *Agent) BookFlight(req BookRequest) (*model.Reservation, error) {
	if req.PartySize <= 0 {
		return nil, model.ErrInvalidPartySize
	}
	owner, err := g.ownerOf(req.Outbound)
	if err != nil {
		return nil, err
	}
	if req.Return != "" {
		if _, err := g.ownerOf(req.Return); err != nil {
			return nil, err
		}
	}
	r, err := owner.ReserveFlight(req.Outbound, req.Return, req.PartySize, g.name)
	if err != nil {
		return nil, err
	}
	g.brokered.Store(r.ID(), owner.Name())
	if req.Client != nil {
		req.Client.AddReservation(r)
	}
	return r, nil
}

// TrackReservation records that airline holds reservation id. It is used
// when rebuilding an agent from a snapshot.
func (g *Agent) TrackReservation(id, airline string) { g.brokered.Store(id, airline) }

// Brokered returns the reservation id to airline name index.
func (g *Agent) Brokered() map[string]string {
	out := make(map[string]string)
	g.brokered.Range(func(k, v any) bool {
		out[k.(string)] = v.(string)
		return true
	})
	return out
}

func (g *Agent) resolve(id string) (*Airline, error) {
	v, ok := g.brokered.Load(id)
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, model.ErrNotFound)
	}
	a, ok := g.airline(v.(string))
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w: %s", id, model.ErrAirlineNotFound, v)
	}
	return a, nil
}

// PayReservation pays a brokered reservation at the airline's discounted
// price and credits the commission to today's revenue.
func (g *Agent) PayReservation(id string) (Charge, error) {
	a, err := g.resolve(id)
	if err != nil {
		return Charge{}, err
	}
	base, err := a.PayReservation(id, true)
	if err != nil {
		return Charge{}, err
	}
	c := Charge{
		Base:       base,
		Commission: base * g.commission,
		Total:      base * (1 + g.commission),
	}
	g.revenue.Add(model.DateOf(g.clock.Now()), c.Commission)
	g.logger.Info("brokered payment", "reservation", id, "base", c.Base, "commission", c.Commission)
	return c, nil
}

// CancelReservation cancels a brokered reservation with its airline.
func (g *Agent) CancelReservation(id string) error {
	a, err := g.resolve(id)
	if err != nil {
		return err
	}
	return a.CancelReservation(id)
}

// BookFlightAsync queues BookFlight on the agent's worker pool. A full
// queue fails immediately with workerpool.ErrQueueFull.
func (g *Agent) BookFlightAsync(ctx context.Context, req BookRequest) (*workerpool.Future[*model.Reservation], error) {
	return workerpool.Go(g.pool, ctx, func(context.Context) (*model.Reservation, error) {
		defer g.hold()()
		return g.BookFlight(req)
	})
}

// PayReservationAsync queues PayReservation on the agent's worker pool.
func (g *Agent) PayReservationAsync(ctx context.Context, id string) (*workerpool.Future[Charge], error) {
	return workerpool.Go(g.pool, ctx, func(context.Context) (Charge, error) {
		defer g.hold()()
		return g.PayReservation(id)
	})
}

func (g *Agent) hold() (release func()) {
	if g.gate == nil {
		return func() {}
	}
	g.gate.RLock()
	return g.gate.RUnlock
}

func (g *Agent) RevenueOn(date model.Date) float64 { return g.revenue.On(date) }

// Revenue returns a copy of the commission recorded per day.
func (g *Agent) Revenue() map[model.Date]float64 { return g.revenue.All() }

func (g *Agent) RestoreRevenue(m map[model.Date]float64) { g.revenue.Replace(m) }

// DeclareRevenue reports the commission recorded for date to r.
func (g *Agent) DeclareRevenue(ctx context.Context, r RevenueReporter, date model.Date) (float64, error) {
	amount := g.revenue.On(date)
	if err := r.ReportRevenue(ctx, g.name, date, amount); err != nil {
		return 0, fmt.Errorf("declare revenue for %s: %w", g.name, err)
	}
	return amount, nil
}

// Close stops accepting asynchronous work and waits for queued work to
// finish.
func (g *Agent) Close() { g.pool.Close() }
