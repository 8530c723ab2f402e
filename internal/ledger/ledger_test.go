package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/model"
)

var (
	start    = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	departs  = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	schedule = model.PriceSchedule{Base: 100, Max: 300, SeatsPerThreshold: 10, Increment: 20}

	belgrade = model.Airport{Code: "BEG", Name: "Nikola Tesla", City: "Belgrade"}
	paris    = model.Airport{Code: "CDG", Name: "Charles de Gaulle", City: "Paris"}
	rome     = model.Airport{Code: "FCO", Name: "Fiumicino", City: "Rome"}
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type flightSpec struct {
	code     string
	from, to model.Airport
	seats    int
	base     float64
}

func newTestAirline(t *testing.T, clk clock.Clock, name string, discount float64, flights ...flightSpec) *Airline {
	t.Helper()
	a := NewAirline(name, discount, clk, quietLogger())
	for _, fs := range flights {
		s := schedule
		if fs.base > 0 {
			s.Base = fs.base
		}
		f, err := model.NewFlight(model.FlightParams{
			Code: fs.code, From: fs.from, To: fs.to, Departs: departs,
			Airline: name, TotalSeats: fs.seats, Schedule: s,
		})
		require.NoError(t, err)
		require.NoError(t, a.AddFlight(f))
	}
	return a
}

// recordingReporter captures declarations.
type recordingReporter struct {
	mu   sync.Mutex
	got  map[string]float64
	fail error
}

func (r *recordingReporter) ReportRevenue(_ context.Context, payer string, date model.Date, amount float64) error {
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.got == nil {
		r.got = map[string]float64{}
	}
	r.got[payer+"/"+date.String()] = amount
	return nil
}
