package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/service"
)

// AirlineHandler serves direct reservations and revenue for airlines.
type AirlineHandler struct {
	Market *service.Marketplace
}

func (h *AirlineHandler) today() model.Date { return model.DateOf(h.Market.Now()) }

func (h *AirlineHandler) Reserve(c echo.Context) error {
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Outbound == "" {
		return badRequest(c, "outbound required")
	}
	r, err := h.Market.AirlineReserve(c.Param("airline"), service.BookingRequest{
		Outbound:  req.Outbound,
		Return:    req.Return,
		PartySize: req.PartySize,
		ClientID:  req.ClientID,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, r.View())
}

// List returns the airline's reservations; ?active=true keeps unpaid ones
// still inside their payment window.
func (h *AirlineHandler) List(c echo.Context) error {
	active, _ := strconv.ParseBool(c.QueryParam("active"))
	rs, err := h.Market.AirlineReservations(c.Param("airline"), active)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": reservationViews(rs)})
}

func (h *AirlineHandler) Pay(c echo.Context) error {
	amount, err := h.Market.AirlinePay(c.Request().Context(), c.Param("airline"), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "amount": amount})
}

func (h *AirlineHandler) Cancel(c echo.Context) error {
	if err := h.Market.AirlineCancel(c.Param("airline"), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Quote prices a reservation at current fares; ?discounted=true applies
// the airline's agent discount.
func (h *AirlineHandler) Quote(c echo.Context) error {
	discounted, _ := strconv.ParseBool(c.QueryParam("discounted"))
	amount, err := h.Market.AirlineQuote(c.Param("airline"), c.Param("id"), discounted)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "amount": amount, "discounted": discounted})
}

func (h *AirlineHandler) Revenue(c echo.Context) error {
	date, err := dateParam(c, h.today)
	if err != nil {
		return badRequest(c, err.Error())
	}
	a, err := h.Market.Airline(c.Param("airline"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, revenueResp{Payer: a.Name(), Date: date, Amount: a.RevenueOn(date)})
}

func (h *AirlineHandler) Declare(c echo.Context) error {
	date, err := dateParam(c, h.today)
	if err != nil {
		return badRequest(c, err.Error())
	}
	amount, err := h.Market.DeclareAirlineRevenue(c.Request().Context(), c.Param("airline"), date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, revenueResp{Payer: c.Param("airline"), Date: date, Amount: amount})
}
