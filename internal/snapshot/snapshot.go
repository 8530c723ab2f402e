// Package snapshot converts the marketplace's in-memory graph to plain
// records and back. Records carry counters, prices, statuses and revenue;
// locks and worker pools are never persisted and are created fresh on
// restore.
package snapshot

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/ledger"
	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/taxsink"
)

// Version is the record format written by Encode.
const Version = 1

type Snapshot struct {
	Version  int                               `cbor:"version"`
	TakenAt  time.Time                         `cbor:"taken_at"`
	Airports []model.Airport                   `cbor:"airports"`
	Airlines []AirlineRecord                   `cbor:"airlines"`
	Agents   []AgentRecord                     `cbor:"agents"`
	Clients  []ClientRecord                    `cbor:"clients"`
	Tax      map[string]map[model.Date]float64 `cbor:"tax"`
}

type FlightRecord struct {
	Code       string              `cbor:"code"`
	From       model.Airport       `cbor:"from"`
	To         model.Airport       `cbor:"to"`
	Departs    time.Time           `cbor:"departs"`
	TotalSeats int                 `cbor:"total_seats"`
	Remaining  int                 `cbor:"remaining"`
	Price      float64             `cbor:"price"`
	Schedule   model.PriceSchedule `cbor:"schedule"`
}

type ReservationRecord struct {
	ID             string       `cbor:"id"`
	Outbound       string       `cbor:"outbound"`
	Return         string       `cbor:"return,omitempty"`
	PartySize      int          `cbor:"party_size"`
	CreatedAt      time.Time    `cbor:"created_at"`
	Deadline       time.Time    `cbor:"deadline"`
	Status         model.Status `cbor:"status"`
	Agent          string       `cbor:"agent,omitempty"`
	BookedOutbound float64      `cbor:"booked_outbound"`
	BookedReturn   float64      `cbor:"booked_return"`
	PaidAt         time.Time    `cbor:"paid_at"`
	PaidAmount     float64      `cbor:"paid_amount"`
}

type AirlineRecord struct {
	Name         string                 `cbor:"name"`
	Discount     float64                `cbor:"discount"`
	Flights      []FlightRecord         `cbor:"flights"`
	Reservations []ReservationRecord    `cbor:"reservations"`
	Revenue      map[model.Date]float64 `cbor:"revenue"`
}

type AgentRecord struct {
	Name       string                 `cbor:"name"`
	Commission float64                `cbor:"commission"`
	Airlines   []string               `cbor:"airlines"`
	Brokered   map[string]string      `cbor:"brokered"`
	Revenue    map[model.Date]float64 `cbor:"revenue"`
}

type ClientRecord struct {
	ID           string   `cbor:"id"`
	Name         string   `cbor:"name"`
	Reservations []string `cbor:"reservations"`
}

// State is the runtime graph a snapshot is taken from and restored into.
type State struct {
	Airports []model.Airport
	Airlines []*ledger.Airline
	Agents   []*ledger.Agent
	Clients  []*model.Client
	Tax      *taxsink.Sink
}

// Capture copies st into records. The caller must keep st quiet while it
// runs; otherwise flight counters and reservations may be read from
// different moments.
func Capture(st State, now time.Time) *Snapshot {
	s := &Snapshot{Version: Version, TakenAt: now, Airports: append([]model.Airport(nil), st.Airports...)}
	for _, a := range st.Airlines {
		rec := AirlineRecord{Name: a.Name(), Discount: a.Discount(), Revenue: a.Revenue()}
		for _, f := range a.Flights() {
			p := f.Params()
			fs := f.State()
			rec.Flights = append(rec.Flights, FlightRecord{
				Code: p.Code, From: p.From, To: p.To, Departs: p.Departs,
				TotalSeats: p.TotalSeats, Remaining: fs.Remaining, Price: fs.Price, Schedule: p.Schedule,
			})
		}
		for _, r := range a.Reservations() {
			rec.Reservations = append(rec.Reservations, reservationRecord(r.Data()))
		}
		s.Airlines = append(s.Airlines, rec)
	}
	for _, g := range st.Agents {
		rec := AgentRecord{Name: g.Name(), Commission: g.Commission(), Brokered: g.Brokered(), Revenue: g.Revenue()}
		for _, a := range g.Airlines() {
			rec.Airlines = append(rec.Airlines, a.Name())
		}
		s.Agents = append(s.Agents, rec)
	}
	for _, c := range st.Clients {
		rec := ClientRecord{ID: c.ID, Name: c.Name}
		for _, r := range c.Reservations() {
			rec.Reservations = append(rec.Reservations, r.ID())
		}
		s.Clients = append(s.Clients, rec)
	}
	if st.Tax != nil {
		s.Tax = st.Tax.All()
	}
	return s
}

func reservationRecord(d model.ReservationData) ReservationRecord {
	return ReservationRecord{
		ID: d.ID, Outbound: d.OutboundCode, Return: d.ReturnCode, PartySize: d.PartySize,
		CreatedAt: d.CreatedAt, Deadline: d.Deadline, Status: d.Status, Agent: d.Agent,
		BookedOutbound: d.BookedOutbound, BookedReturn: d.BookedReturn,
		PaidAt: d.PaidAt, PaidAmount: d.PaidAmount,
	}
}

func (r ReservationRecord) data() model.ReservationData {
	return model.ReservationData{
		ID: r.ID, OutboundCode: r.Outbound, ReturnCode: r.Return, PartySize: r.PartySize,
		CreatedAt: r.CreatedAt, Deadline: r.Deadline, Status: r.Status, Agent: r.Agent,
		BookedOutbound: r.BookedOutbound, BookedReturn: r.BookedReturn,
		PaidAt: r.PaidAt, PaidAmount: r.PaidAmount,
	}
}

// RestoreOptions supplies the runtime pieces records do not carry.
type RestoreOptions struct {
	Clock     clock.Clock
	Logger    *slog.Logger
	Workers   int
	QueueSize int
}

// Restore rebuilds the runtime graph from s. Every flight, reservation and
// ledger gets new locks; every agent gets a new worker pool.
func Restore(s *Snapshot, opts RestoreOptions) (State, error) {
	if s.Version != Version {
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	if opts.Workers == 0 {
		opts.Workers = ledger.DefaultWorkers
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = ledger.DefaultQueueSize
	}

	st := State{Airports: append([]model.Airport(nil), s.Airports...)}
	airlines := make(map[string]*ledger.Airline, len(s.Airlines))
	reservations := make(map[string]*model.Reservation)

	for _, rec := range s.Airlines {
		a := ledger.NewAirline(rec.Name, rec.Discount, opts.Clock, opts.Logger)
		for _, fr := range rec.Flights {
			f, err := model.RestoreFlight(model.FlightParams{
				Code: fr.Code, From: fr.From, To: fr.To, Departs: fr.Departs,
				Airline: rec.Name, TotalSeats: fr.TotalSeats, Schedule: fr.Schedule,
			}, fr.Remaining, fr.Price)
			if err != nil {
				return State{}, fmt.Errorf("restore airline %s: %w", rec.Name, err)
			}
			if err := a.AddFlight(f); err != nil {
				return State{}, fmt.Errorf("restore airline %s: %w", rec.Name, err)
			}
		}
		for _, rr := range rec.Reservations {
			out, err := a.Flight(rr.Outbound)
			if err != nil {
				return State{}, fmt.Errorf("restore reservation %s: %w", rr.ID, err)
			}
			var ret *model.Flight
			if rr.Return != "" {
				if ret, err = a.Flight(rr.Return); err != nil {
					return State{}, fmt.Errorf("restore reservation %s: %w", rr.ID, err)
				}
			}
			r, err := model.RestoreReservation(rr.data(), out, ret)
			if err != nil {
				return State{}, err
			}
			if err := a.AdoptReservation(r); err != nil {
				return State{}, err
			}
			reservations[r.ID()] = r
		}
		a.RestoreRevenue(rec.Revenue)
		airlines[rec.Name] = a
		st.Airlines = append(st.Airlines, a)
	}

	for _, rec := range s.Agents {
		g := ledger.NewAgent(rec.Name, rec.Commission, opts.Workers, opts.QueueSize, opts.Clock, opts.Logger)
		for _, name := range rec.Airlines {
			a, ok := airlines[name]
			if !ok {
				g.Close()
				st.Close()
				return State{}, fmt.Errorf("restore agent %s: %w: %s", rec.Name, model.ErrAirlineNotFound, name)
			}
			if err := g.AddAirline(a); err != nil {
				g.Close()
				st.Close()
				return State{}, fmt.Errorf("restore agent %s: %w", rec.Name, err)
			}
		}
		for id, airline := range rec.Brokered {
			g.TrackReservation(id, airline)
		}
		g.RestoreRevenue(rec.Revenue)
		st.Agents = append(st.Agents, g)
	}

	for _, rec := range s.Clients {
		c := model.NewClient(rec.ID, rec.Name)
		for _, id := range rec.Reservations {
			r, ok := reservations[id]
			if !ok {
				st.Close()
				return State{}, fmt.Errorf("restore client %s: reservation %s: %w", rec.ID, id, model.ErrNotFound)
			}
			c.AddReservation(r)
		}
		st.Clients = append(st.Clients, c)
	}

	st.Tax = taxsink.New(opts.Logger)
	st.Tax.Restore(s.Tax)
	return st, nil
}

// Close stops the worker pools of every agent in st.
func (st State) Close() {
	for _, g := range st.Agents {
		g.Close()
	}
}
