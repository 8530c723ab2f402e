package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/service"
)

// AgentHandler serves the booking endpoints of travel agents.
type AgentHandler struct {
	Market *service.Marketplace
}

func (h *AgentHandler) today() model.Date { return model.DateOf(h.Market.Now()) }

// Book reserves seats through the agent. With "async" the booking runs on
// the agent's worker pool and a full queue answers 429.
func (h *AgentHandler) Book(c echo.Context) error {
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Outbound == "" {
		return badRequest(c, "outbound required")
	}
	r, err := h.Market.AgentBook(c.Request().Context(), c.Param("agent"), service.BookingRequest{
		Outbound:  req.Outbound,
		Return:    req.Return,
		PartySize: req.PartySize,
		ClientID:  req.ClientID,
		Async:     req.Async,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, r.View())
}

func (h *AgentHandler) Pay(c echo.Context) error {
	var req payReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	charge, err := h.Market.AgentPay(c.Request().Context(), c.Param("agent"), c.Param("id"), req.Async)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, charge)
}

func (h *AgentHandler) Cancel(c echo.Context) error {
	if err := h.Market.AgentCancel(c.Param("agent"), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AgentHandler) Revenue(c echo.Context) error {
	date, err := dateParam(c, h.today)
	if err != nil {
		return badRequest(c, err.Error())
	}
	g, err := h.Market.Agent(c.Param("agent"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, revenueResp{Payer: g.Name(), Date: date, Amount: g.RevenueOn(date)})
}

// Declare reports the agent's commission for the date to the tax sink.
func (h *AgentHandler) Declare(c echo.Context) error {
	date, err := dateParam(c, h.today)
	if err != nil {
		return badRequest(c, err.Error())
	}
	amount, err := h.Market.DeclareAgentRevenue(c.Request().Context(), c.Param("agent"), date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, revenueResp{Payer: c.Param("agent"), Date: date, Amount: amount})
}
