package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/model"
)

func airSerbia(t *testing.T, clk clock.Clock) *Airline {
	return newTestAirline(t, clk, "AirSerbia", 0.05,
		flightSpec{code: "JU100", from: belgrade, to: paris, seats: 100},
		flightSpec{code: "JU101", from: paris, to: belgrade, seats: 10},
	)
}

func TestAirline_AddFlightRejectsDuplicatesAndForeignFlights(t *testing.T) {
	a := airSerbia(t, clock.Fake(start))
	f, err := a.Flight("JU100")
	require.NoError(t, err)
	assert.ErrorIs(t, a.AddFlight(f), model.ErrDuplicate)

	foreign, err := model.NewFlight(model.FlightParams{Code: "AF1", Airline: "AirFrance", TotalSeats: 5, Schedule: schedule})
	require.NoError(t, err)
	assert.ErrorIs(t, a.AddFlight(foreign), model.ErrInvalidFlight)

	_, err = a.Flight("XX1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAirline_ReserveFlight(t *testing.T) {
	tests := []struct {
		name          string
		outbound, ret string
		party         int
		wantErr       error
		wantOutbound  int
	}{
		{name: "one way", outbound: "JU100", party: 25, wantOutbound: 75},
		{name: "round trip", outbound: "JU100", ret: "JU101", party: 4, wantOutbound: 96},
		{name: "unknown outbound", outbound: "XX1", party: 1, wantErr: model.ErrNotFound, wantOutbound: 100},
		{name: "unknown return compensates", outbound: "JU100", ret: "XX1", party: 3, wantErr: model.ErrNotFound, wantOutbound: 100},
		{name: "full return compensates", outbound: "JU100", ret: "JU101", party: 11, wantErr: model.ErrInsufficientInventory, wantOutbound: 100},
		{name: "full outbound", outbound: "JU100", party: 101, wantErr: model.ErrInsufficientInventory, wantOutbound: 100},
		{name: "zero party", outbound: "JU100", party: 0, wantErr: model.ErrInvalidPartySize, wantOutbound: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := airSerbia(t, clock.Fake(start))
			r, err := a.ReserveFlight(tt.outbound, tt.ret, tt.party, "")
			out, _ := a.Flight("JU100")
			assert.Equal(t, tt.wantOutbound, out.RemainingSeats())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				assert.Empty(t, a.Reservations())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.StatusActive, r.Status())
			assert.Equal(t, start.Add(model.PaymentWindow), r.Deadline())
			got, err := a.Reservation(r.ID())
			require.NoError(t, err)
			assert.Same(t, r, got)
		})
	}
}

func TestAirline_ConcreteScenario(t *testing.T) {
	a := airSerbia(t, clock.Fake(start))
	_, err := a.ReserveFlight("JU100", "", 25, "")
	require.NoError(t, err)
	out, _ := a.Flight("JU100")
	assert.Equal(t, 75, out.RemainingSeats())
	assert.Equal(t, 140.0, out.CurrentPrice())

	_, err = a.ReserveFlight("JU100", "", 80, "")
	assert.ErrorIs(t, err, model.ErrInsufficientInventory)
	assert.Equal(t, model.FlightState{Code: "JU100", Remaining: 75, Total: 100, Price: 140}, out.State())
}

func TestAirline_PayCreditsRevenue(t *testing.T) {
	clk := clock.Fake(start)
	a := airSerbia(t, clk)
	direct, err := a.ReserveFlight("JU100", "", 20, "")
	require.NoError(t, err)
	brokered, err := a.ReserveFlight("JU100", "", 2, "Kompas")
	require.NoError(t, err)

	amount, err := a.PayReservation(direct.ID(), false)
	require.NoError(t, err)
	assert.InDelta(t, 140*20, amount, 1e-9)

	clk.Advance(time.Hour)
	quote, err := a.QuoteReservation(brokered.ID(), true)
	require.NoError(t, err)
	assert.InDelta(t, 266, quote, 1e-9)
	amount, err = a.PayReservation(brokered.ID(), true)
	require.NoError(t, err)
	assert.InDelta(t, 266, amount, 1e-9)

	assert.InDelta(t, 2800+266, a.RevenueOn(model.DateOf(start)), 1e-9)
	assert.Zero(t, a.RevenueOn("2026-02-02"))

	_, err = a.PayReservation(direct.ID(), false)
	assert.ErrorIs(t, err, model.ErrAlreadyPaid)
	_, err = a.PayReservation("nope", false)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAirline_ConcurrentPaymentCreditsOnce(t *testing.T) {
	a := airSerbia(t, clock.Fake(start))
	r, err := a.ReserveFlight("JU100", "JU101", 2, "")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.PayReservation(r.ID(), false); err == nil {
				winners.Add(1)
			} else {
				assert.ErrorIs(t, err, model.ErrAlreadyPaid)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.InDelta(t, 2*100+2*100, a.RevenueOn(model.DateOf(start)), 1e-9)
}

func TestAirline_PayAfterDeadlineExpires(t *testing.T) {
	clk := clock.Fake(start)
	a := airSerbia(t, clk)
	r, err := a.ReserveFlight("JU100", "JU101", 5, "")
	require.NoError(t, err)

	var updates []model.FlightState
	a.OnInventoryChange(func(st model.FlightState) { updates = append(updates, st) })

	clk.Advance(model.PaymentWindow + time.Minute)
	_, err = a.PayReservation(r.ID(), false)
	assert.ErrorIs(t, err, model.ErrExpired)

	out, _ := a.Flight("JU100")
	ret, _ := a.Flight("JU101")
	assert.Equal(t, 100, out.RemainingSeats())
	assert.Equal(t, 10, ret.RemainingSeats())
	assert.Zero(t, a.RevenueOn(model.DateOf(clk.Now())))
	require.Len(t, updates, 2)
	assert.Equal(t, 100, updates[0].Remaining)

	_, err = a.PayReservation(r.ID(), false)
	assert.ErrorIs(t, err, model.ErrExpired)
	assert.Equal(t, 100, out.RemainingSeats())
}

func TestAirline_CancelRestoresSeatsAndPrice(t *testing.T) {
	a := airSerbia(t, clock.Fake(start))
	out, _ := a.Flight("JU100")
	before := out.State()

	r, err := a.ReserveFlight("JU100", "", 30, "")
	require.NoError(t, err)
	assert.Equal(t, 160.0, out.CurrentPrice())

	require.NoError(t, a.CancelReservation(r.ID()))
	assert.Equal(t, before, out.State())

	assert.ErrorIs(t, a.CancelReservation(r.ID()), model.ErrExpired)
	assert.Equal(t, before, out.State())
	assert.ErrorIs(t, a.CancelReservation("nope"), model.ErrNotFound)

	paid, err := a.ReserveFlight("JU100", "", 1, "")
	require.NoError(t, err)
	_, err = a.PayReservation(paid.ID(), false)
	require.NoError(t, err)
	assert.ErrorIs(t, a.CancelReservation(paid.ID()), model.ErrAlreadyPaid)
}

func TestAirline_ActiveReservationsAndExpireOverdue(t *testing.T) {
	clk := clock.Fake(start)
	a := airSerbia(t, clk)
	early, err := a.ReserveFlight("JU100", "", 3, "")
	require.NoError(t, err)
	clk.Advance(12 * time.Hour)
	late, err := a.ReserveFlight("JU100", "", 4, "")
	require.NoError(t, err)

	clk.Advance(13 * time.Hour)
	active := a.ActiveReservations()
	require.Len(t, active, 1)
	assert.Equal(t, late.ID(), active[0].ID())
	assert.Equal(t, model.StatusExpired, early.Status())

	clk.Advance(24 * time.Hour)
	assert.Equal(t, 1, a.ExpireOverdue())
	assert.Equal(t, 0, a.ExpireOverdue())
	out, _ := a.Flight("JU100")
	assert.Equal(t, 100, out.RemainingSeats())
}

func TestAirline_DeclareRevenue(t *testing.T) {
	a := airSerbia(t, clock.Fake(start))
	r, err := a.ReserveFlight("JU100", "", 1, "")
	require.NoError(t, err)
	_, err = a.PayReservation(r.ID(), false)
	require.NoError(t, err)

	rep := &recordingReporter{}
	amount, err := a.DeclareRevenue(context.Background(), rep, model.DateOf(start))
	require.NoError(t, err)
	assert.InDelta(t, 100, amount, 1e-9)
	assert.InDelta(t, 100, rep.got["AirSerbia/2026-02-01"], 1e-9)

	boom := errors.New("broker down")
	_, err = a.DeclareRevenue(context.Background(), &recordingReporter{fail: boom}, model.DateOf(start))
	assert.ErrorIs(t, err, boom)
}

func TestAirline_FindFlights(t *testing.T) {
	batajnica := model.Airport{Code: "BJY", Name: "Batajnica", City: "Belgrade"}
	a := airSerbia(t, clock.Fake(start))
	f, err := model.NewFlight(model.FlightParams{
		Code: "JU900", From: batajnica, To: paris, Departs: departs,
		Airline: "AirSerbia", TotalSeats: 20, Schedule: schedule,
	})
	require.NoError(t, err)
	require.NoError(t, a.AddFlight(f))
	_, err = a.ReserveFlight("JU101", "", 10, "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		q     Query
		codes []string
	}{
		{name: "same airport or same city", q: Query{From: belgrade, To: paris, Date: "2026-03-01"}, codes: []string{"JU100", "JU900"}},
		{name: "other airport in the city", q: Query{From: batajnica, To: paris, Date: "2026-03-01"}, codes: []string{"JU100", "JU900"}},
		{name: "city any case", q: Query{From: model.Airport{City: "belgrade"}, To: model.Airport{City: "PARIS"}, Date: "2026-03-01"}, codes: []string{"JU100", "JU900"}},
		{name: "code without city", q: Query{From: model.Airport{Code: "bjy"}, Date: "2026-03-01"}, codes: []string{"JU900"}},
		{name: "other day", q: Query{From: belgrade, To: paris, Date: "2026-03-02"}},
		{name: "sold out excluded", q: Query{From: paris, To: belgrade, Date: "2026-03-01"}},
		{name: "wildcards", q: Query{}, codes: []string{"JU100", "JU900"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var codes []string
			for _, f := range a.FindFlights(tt.q) {
				codes = append(codes, f.Code())
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestResolveAirport(t *testing.T) {
	known := []model.Airport{belgrade, paris}
	assert.Equal(t, belgrade, ResolveAirport(known, "beg"))
	assert.Equal(t, model.Airport{City: "Rome"}, ResolveAirport(known, " Rome "))
	assert.Equal(t, model.Airport{}, ResolveAirport(known, ""))
}

func TestAirline_RestoreRevenue(t *testing.T) {
	a := airSerbia(t, clock.Fake(start))
	a.RestoreRevenue(map[model.Date]float64{"2026-01-31": 42})
	assert.Equal(t, map[model.Date]float64{"2026-01-31": 42}, a.Revenue())
}

func TestAirline_ExpireIfOverdueNotifies(t *testing.T) {
	clk := clock.Fake(start)
	a := airSerbia(t, clk)
	r, err := a.ReserveFlight("JU100", "", 5, "")
	require.NoError(t, err)

	var seen []model.FlightState
	a.OnInventoryChange(func(st model.FlightState) { seen = append(seen, st) })

	assert.False(t, a.ExpireIfOverdue(r))
	assert.Empty(t, seen)

	clk.Advance(model.PaymentWindow + time.Second)
	assert.True(t, a.ExpireIfOverdue(r))
	assert.False(t, a.ExpireIfOverdue(r))
	require.Len(t, seen, 1)
	assert.Equal(t, 100, seen[0].Remaining)
}
