package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/feed"
	"github.com/iliyamo/flight-marketplace/internal/ledger"
	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/service"
)

// FlightHandler serves public flight search and the live seat feed.
type FlightHandler struct {
	Market *service.Marketplace
	Hub    *feed.Hub
}

// FlightResp is a flight as returned by search and lookup.
type FlightResp struct {
	Code      string        `json:"code"`
	Airline   string        `json:"airline"`
	From      model.Airport `json:"from"`
	To        model.Airport `json:"to"`
	Departs   time.Time     `json:"departs"`
	Total     int           `json:"total_seats"`
	Remaining int           `json:"remaining_seats"`
	Price     float64       `json:"price"`
}

func flightResp(f *model.Flight) FlightResp {
	st := f.State()
	return FlightResp{
		Code:      f.Code(),
		Airline:   f.Airline(),
		From:      f.From(),
		To:        f.To(),
		Departs:   f.Departs(),
		Total:     st.Total,
		Remaining: st.Remaining,
		Price:     st.Price,
	}
}

func flightList(flights []*model.Flight) []FlightResp {
	out := make([]FlightResp, 0, len(flights))
	for _, f := range flights {
		out = append(out, flightResp(f))
	}
	return out
}

// searchQuery reads from, to and date. from and to are airport codes or
// city names; empty fields match anything.
func (h *FlightHandler) searchQuery(c echo.Context) (ledger.Query, error) {
	airports := h.Market.Airports()
	q := ledger.Query{
		From: ledger.ResolveAirport(airports, c.QueryParam("from")),
		To:   ledger.ResolveAirport(airports, c.QueryParam("to")),
	}
	if raw := c.QueryParam("date"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return ledger.Query{}, err
		}
		q.Date = d
	}
	return q, nil
}

// SearchAgent lists matching flights across an agent's airlines, cheapest first.
func (h *FlightHandler) SearchAgent(c echo.Context) error {
	q, err := h.searchQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	flights, err := h.Market.SearchAgent(c.Param("agent"), q)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": flightList(flights)})
}

func (h *FlightHandler) SearchAirline(c echo.Context) error {
	q, err := h.searchQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	flights, err := h.Market.SearchAirline(c.Param("airline"), q)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": flightList(flights)})
}

func (h *FlightHandler) GetFlight(c echo.Context) error {
	f, err := h.Market.Flight(c.Param("code"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, flightResp(f))
}

// Feed upgrades to a websocket streaming seat and price changes of one flight.
func (h *FlightHandler) Feed(c echo.Context) error {
	f, err := h.Market.Flight(c.Param("code"))
	if err != nil {
		return fail(c, err)
	}
	if err := h.Hub.Serve(c.Response(), c.Request(), f.State()); err != nil {
		c.Logger().Warnf("feed %s: %v", f.Code(), err)
	}
	return nil
}
