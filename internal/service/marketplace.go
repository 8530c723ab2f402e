// Package service assembles the marketplace from a catalog or a snapshot
// and exposes the operations the HTTP layer calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/config"
	"github.com/iliyamo/flight-marketplace/internal/ledger"
	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/queue"
	"github.com/iliyamo/flight-marketplace/internal/repository"
	"github.com/iliyamo/flight-marketplace/internal/snapshot"
	"github.com/iliyamo/flight-marketplace/internal/taxsink"
)

// ErrNoSnapshotStore is returned by Snapshot when no store is configured.
var ErrNoSnapshotStore = errors.New("no snapshot store configured")

// Options carries the runtime collaborators of a Marketplace.
type Options struct {
	Clock     clock.Clock
	Logger    *slog.Logger
	Workers   int
	QueueSize int
	Store     repository.SnapshotStore
	Publisher EventPublisher
	// Reporter receives revenue declarations. Nil sends them straight to
	// the marketplace's tax sink.
	Reporter ledger.RevenueReporter
}

func (o *Options) defaults() {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Workers == 0 {
		o.Workers = ledger.DefaultWorkers
	}
	if o.QueueSize == 0 {
		o.QueueSize = ledger.DefaultQueueSize
	}
	if o.Publisher == nil {
		o.Publisher = LogPublisher{Logger: o.Logger}
	}
}

// Marketplace owns every airline, agent and client and the tax sink. The
// sets of airlines, agents and clients are fixed once it is built.
type Marketplace struct {
	opts Options

	// gate is held shared by every operation that changes seats or
	// reservations and exclusively by Snapshot.
	gate sync.RWMutex

	airports  []model.Airport
	airlines  map[string]*ledger.Airline
	agents    map[string]*ledger.Agent
	clients   map[string]*model.Client
	operators map[string]config.OperatorSpec
	tax       *taxsink.Sink
}

// New builds a marketplace from cat.
func New(cat *config.Catalog, opts Options) (*Marketplace, error) {
	opts.defaults()
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	st := snapshot.State{Airports: cat.Airports, Tax: taxsink.New(opts.Logger)}
	byName := map[string]*ledger.Airline{}

	for _, spec := range cat.Airlines {
		a := ledger.NewAirline(spec.Name, spec.Discount, opts.Clock, opts.Logger)
		for _, fs := range spec.Flights {
			from, _ := cat.Airport(fs.From)
			to, _ := cat.Airport(fs.To)
			f, err := model.NewFlight(model.FlightParams{
				Code: fs.Code, From: from, To: to, Departs: fs.Departs,
				Airline: spec.Name, TotalSeats: fs.TotalSeats, Schedule: fs.Schedule,
			})
			if err != nil {
				return nil, fmt.Errorf("airline %s: %w", spec.Name, err)
			}
			if err := a.AddFlight(f); err != nil {
				return nil, fmt.Errorf("airline %s: %w", spec.Name, err)
			}
		}
		byName[spec.Name] = a
		st.Airlines = append(st.Airlines, a)
	}
	for _, spec := range cat.Agents {
		g := ledger.NewAgent(spec.Name, spec.Commission, opts.Workers, opts.QueueSize, opts.Clock, opts.Logger)
		st.Agents = append(st.Agents, g)
		for _, name := range spec.Airlines {
			if err := g.AddAirline(byName[name]); err != nil {
				st.Close()
				return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
			}
		}
	}
	for _, spec := range cat.Clients {
		st.Clients = append(st.Clients, model.NewClient(spec.ID, spec.Name))
	}
	return assemble(st, cat, opts), nil
}

// Restore builds a marketplace from an encoded snapshot. Operators are not
// part of snapshots and come from cat, which may be nil.
func Restore(data []byte, cat *config.Catalog, opts Options) (*Marketplace, error) {
	opts.defaults()
	s, err := snapshot.Decode(data)
	if err != nil {
		return nil, err
	}
	st, err := snapshot.Restore(s, snapshot.RestoreOptions{
		Clock: opts.Clock, Logger: opts.Logger, Workers: opts.Workers, QueueSize: opts.QueueSize,
	})
	if err != nil {
		return nil, err
	}
	return assemble(st, cat, opts), nil
}

// Load restores the latest snapshot from opts.Store when restore is set
// and one exists, and builds from cat otherwise. It reports whether the
// marketplace came from a snapshot.
func Load(ctx context.Context, cat *config.Catalog, opts Options, restore bool) (*Marketplace, bool, error) {
	if restore && opts.Store != nil {
		data, err := opts.Store.Latest(ctx)
		switch {
		case err == nil:
			m, err := Restore(data, cat, opts)
			return m, err == nil, err
		case !errors.Is(err, repository.ErrSnapshotNotFound):
			return nil, false, fmt.Errorf("load snapshot: %w", err)
		}
	}
	if cat == nil {
		return nil, false, errors.New("no snapshot found and no catalog given")
	}
	m, err := New(cat, opts)
	return m, false, err
}

func assemble(st snapshot.State, cat *config.Catalog, opts Options) *Marketplace {
	m := &Marketplace{
		opts:      opts,
		airports:  st.Airports,
		airlines:  make(map[string]*ledger.Airline, len(st.Airlines)),
		agents:    make(map[string]*ledger.Agent, len(st.Agents)),
		clients:   make(map[string]*model.Client, len(st.Clients)),
		operators: map[string]config.OperatorSpec{},
		tax:       st.Tax,
	}
	for _, a := range st.Airlines {
		m.airlines[a.Name()] = a
	}
	for _, g := range st.Agents {
		g.SetGate(&m.gate)
		m.agents[g.Name()] = g
	}
	for _, c := range st.Clients {
		m.clients[c.ID] = c
	}
	if cat != nil {
		for _, op := range cat.Operators {
			m.operators[op.Name] = op
		}
	}
	if m.opts.Reporter == nil {
		m.opts.Reporter = m.tax
	}
	return m
}

func (m *Marketplace) Now() time.Time            { return m.opts.Clock.Now() }
func (m *Marketplace) Tax() *taxsink.Sink        { return m.tax }
func (m *Marketplace) Airports() []model.Airport { return append([]model.Airport(nil), m.airports...) }

func (m *Marketplace) Airline(name string) (*ledger.Airline, error) {
	a, ok := m.airlines[name]
	if !ok {
		return nil, fmt.Errorf("airline %s: %w", name, model.ErrNotFound)
	}
	return a, nil
}

func (m *Marketplace) Agent(name string) (*ledger.Agent, error) {
	g, ok := m.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", name, model.ErrNotFound)
	}
	return g, nil
}

func (m *Marketplace) Client(id string) (*model.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, model.ErrNotFound)
	}
	return c, nil
}

func (m *Marketplace) sortedAirlines() []*ledger.Airline {
	out := make([]*ledger.Airline, 0, len(m.airlines))
	for _, a := range m.airlines {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Flight finds a flight by code across all airlines.
func (m *Marketplace) Flight(code string) (*model.Flight, error) {
	for _, a := range m.sortedAirlines() {
		if f, err := a.Flight(code); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("flight %s: %w", code, model.ErrNotFound)
}

func (m *Marketplace) SearchAgent(agent string, q ledger.Query) ([]*model.Flight, error) {
	g, err := m.Agent(agent)
	if err != nil {
		return nil, err
	}
	return g.FindFlights(q), nil
}

func (m *Marketplace) SearchAirline(airline string, q ledger.Query) ([]*model.Flight, error) {
	a, err := m.Airline(airline)
	if err != nil {
		return nil, err
	}
	return a.FindFlights(q), nil
}

// BookingRequest is a booking made through an agent or directly with an
// airline. ClientID is optional. Async runs an agent booking on the
// agent's worker pool; airlines ignore it.
type BookingRequest struct {
	Outbound  string
	Return    string
	PartySize int
	ClientID  string
	Async     bool
}

func (m *Marketplace) optionalClient(id string) (*model.Client, error) {
	if id == "" {
		return nil, nil
	}
	return m.Client(id)
}

// AgentBook books through agent. An async booking is queued on the agent's
// pool and waited for with ctx; giving up on ctx does not undo a booking
// that already started.
func (m *Marketplace) AgentBook(ctx context.Context, agent string, req BookingRequest) (*model.Reservation, error) {
	g, err := m.Agent(agent)
	if err != nil {
		return nil, err
	}
	client, err := m.optionalClient(req.ClientID)
	if err != nil {
		return nil, err
	}
	br := ledger.BookRequest{Outbound: req.Outbound, Return: req.Return, PartySize: req.PartySize, Client: client}
	if req.Async {
		f, err := g.BookFlightAsync(ctx, br)
		if err != nil {
			return nil, err
		}
		return f.Wait(ctx)
	}
	m.gate.RLock()
	defer m.gate.RUnlock()
	return g.BookFlight(br)
}

// AgentPay pays a reservation brokered by agent and publishes the payment.
func (m *Marketplace) AgentPay(ctx context.Context, agent, id string, async bool) (ledger.Charge, error) {
	g, err := m.Agent(agent)
	if err != nil {
		return ledger.Charge{}, err
	}
	var charge ledger.Charge
	if async {
		f, err := g.PayReservationAsync(ctx, id)
		if err != nil {
			return ledger.Charge{}, err
		}
		if charge, err = f.Wait(ctx); err != nil {
			return ledger.Charge{}, err
		}
	} else {
		m.gate.RLock()
		charge, err = g.PayReservation(id)
		m.gate.RUnlock()
		if err != nil {
			return ledger.Charge{}, err
		}
	}
	m.publishPaid(ctx, id, charge.Base, charge.Commission)
	return charge, nil
}

func (m *Marketplace) AgentCancel(agent, id string) error {
	g, err := m.Agent(agent)
	if err != nil {
		return err
	}
	m.gate.RLock()
	defer m.gate.RUnlock()
	return g.CancelReservation(id)
}

// AirlineReserve books directly with airline.
func (m *Marketplace) AirlineReserve(airline string, req BookingRequest) (*model.Reservation, error) {
	a, err := m.Airline(airline)
	if err != nil {
		return nil, err
	}
	client, err := m.optionalClient(req.ClientID)
	if err != nil {
		return nil, err
	}
	m.gate.RLock()
	defer m.gate.RUnlock()
	r, err := a.ReserveFlight(req.Outbound, req.Return, req.PartySize, "")
	if err != nil {
		return nil, err
	}
	if client != nil {
		client.AddReservation(r)
	}
	return r, nil
}

// AirlinePay pays a reservation at full price and publishes the payment.
func (m *Marketplace) AirlinePay(ctx context.Context, airline, id string) (float64, error) {
	a, err := m.Airline(airline)
	if err != nil {
		return 0, err
	}
	m.gate.RLock()
	amount, err := a.PayReservation(id, false)
	m.gate.RUnlock()
	if err != nil {
		return 0, err
	}
	m.publishPaid(ctx, id, amount, 0)
	return amount, nil
}

func (m *Marketplace) AirlineCancel(airline, id string) error {
	a, err := m.Airline(airline)
	if err != nil {
		return err
	}
	m.gate.RLock()
	defer m.gate.RUnlock()
	return a.CancelReservation(id)
}

func (m *Marketplace) AirlineQuote(airline, id string, discounted bool) (float64, error) {
	a, err := m.Airline(airline)
	if err != nil {
		return 0, err
	}
	return a.QuoteReservation(id, discounted)
}

// AirlineReservations lists airline's reservations; activeOnly expires
// overdue ones first and keeps the unpaid rest.
func (m *Marketplace) AirlineReservations(airline string, activeOnly bool) ([]*model.Reservation, error) {
	a, err := m.Airline(airline)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return a.Reservations(), nil
	}
	m.gate.RLock()
	defer m.gate.RUnlock()
	return a.ActiveReservations(), nil
}

func (m *Marketplace) DeclareAirlineRevenue(ctx context.Context, airline string, date model.Date) (float64, error) {
	a, err := m.Airline(airline)
	if err != nil {
		return 0, err
	}
	return a.DeclareRevenue(ctx, m.opts.Reporter, date)
}

func (m *Marketplace) DeclareAgentRevenue(ctx context.Context, agent string, date model.Date) (float64, error) {
	g, err := m.Agent(agent)
	if err != nil {
		return 0, err
	}
	return g.DeclareRevenue(ctx, m.opts.Reporter, date)
}

// Client reservation views.
const (
	ViewAll     = ""
	ViewActive  = "active"
	ViewHistory = "history"
)

func (m *Marketplace) ClientReservations(id, view string) ([]*model.Reservation, error) {
	c, err := m.Client(id)
	if err != nil {
		return nil, err
	}
	now := m.Now()
	switch view {
	case ViewAll:
		return c.Reservations(), nil
	case ViewActive:
		m.gate.RLock()
		defer m.gate.RUnlock()
		for _, r := range c.Reservations() {
			if a, ok := m.airlines[r.Outbound().Airline()]; ok {
				a.ExpireIfOverdue(r)
			}
		}
		return c.Active(now), nil
	case ViewHistory:
		return c.History(now), nil
	}
	return nil, fmt.Errorf("unknown view %q", view)
}

// ExpireOverdue expires overdue reservations of every airline.
func (m *Marketplace) ExpireOverdue() int {
	m.gate.RLock()
	defer m.gate.RUnlock()
	n := 0
	for _, a := range m.airlines {
		n += a.ExpireOverdue()
	}
	return n
}

// OnInventoryChange registers fn with every airline.
func (m *Marketplace) OnInventoryChange(fn ledger.InventoryListener) {
	for _, a := range m.airlines {
		a.OnInventoryChange(fn)
	}
}

// Authenticate checks an operator's secret against the catalog.
func (m *Marketplace) Authenticate(name, secret string, verify func(hash, plain string) bool) (config.OperatorSpec, bool) {
	op, ok := m.operators[name]
	if !ok || !verify(op.SecretHash, secret) {
		return config.OperatorSpec{}, false
	}
	return op, true
}

func (m *Marketplace) state() snapshot.State {
	st := snapshot.State{Airports: m.airports, Airlines: m.sortedAirlines(), Tax: m.tax}
	for _, g := range m.agents {
		st.Agents = append(st.Agents, g)
	}
	sort.Slice(st.Agents, func(i, j int) bool { return st.Agents[i].Name() < st.Agents[j].Name() })
	for _, c := range m.clients {
		st.Clients = append(st.Clients, c)
	}
	sort.Slice(st.Clients, func(i, j int) bool { return st.Clients[i].ID < st.Clients[j].ID })
	return st
}

// Capture takes a consistent snapshot: seat changes wait while it runs.
func (m *Marketplace) Capture() *snapshot.Snapshot {
	m.gate.Lock()
	defer m.gate.Unlock()
	return snapshot.Capture(m.state(), m.Now())
}

// Snapshot captures, encodes and saves the marketplace.
func (m *Marketplace) Snapshot(ctx context.Context) error {
	if m.opts.Store == nil {
		return ErrNoSnapshotStore
	}
	data, err := snapshot.Encode(m.Capture())
	if err != nil {
		return err
	}
	if err := m.opts.Store.Save(ctx, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	m.opts.Logger.Info("snapshot saved", "bytes", len(data))
	return nil
}

// Close stops the agents' worker pools after their queued work finishes.
func (m *Marketplace) Close() {
	for _, g := range m.agents {
		g.Close()
	}
}

func (m *Marketplace) findReservation(id string) (*model.Reservation, bool) {
	for _, a := range m.airlines {
		if r, err := a.Reservation(id); err == nil {
			return r, true
		}
	}
	return nil, false
}

func (m *Marketplace) publishPaid(ctx context.Context, id string, amount, commission float64) {
	r, ok := m.findReservation(id)
	if !ok {
		return
	}
	ev := queue.ReservationPaidEvent{
		ReservationID: id,
		Airline:       r.Outbound().Airline(),
		Agent:         r.Agent(),
		Outbound:      r.Outbound().Code(),
		PartySize:     r.PartySize(),
		Amount:        amount,
		Commission:    commission,
		PaidAt:        m.Now().UTC().Format(time.RFC3339),
	}
	if ret := r.Return(); ret != nil {
		ev.Return = ret.Code()
	}
	if err := m.opts.Publisher.PublishReservationPaid(context.WithoutCancel(ctx), ev); err != nil {
		m.opts.Logger.Warn("publish payment failed", "reservation", id, "err", err)
	}
}
