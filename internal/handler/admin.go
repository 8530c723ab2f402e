package handler

import (
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/service"
)

// AdminHandler serves the tax authority view and snapshots.
type AdminHandler struct {
	Market *service.Marketplace
}

func (h *AdminHandler) today() model.Date { return model.DateOf(h.Market.Now()) }

// TaxForDate returns every declaration for a date and their total.
func (h *AdminHandler) TaxForDate(c echo.Context) error {
	date, err := dateParam(c, h.today)
	if err != nil {
		return badRequest(c, err.Error())
	}
	items := []revenueResp{}
	for payer, days := range h.Market.Tax().All() {
		if amount, ok := days[date]; ok {
			items = append(items, revenueResp{Payer: payer, Date: date, Amount: amount})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Payer < items[j].Payer })
	return c.JSON(http.StatusOK, echo.Map{
		"date":  date,
		"total": h.Market.Tax().TotalForDate(date),
		"items": items,
	})
}

// TaxForPayer returns one payer's declaration, or all of them without ?date=.
func (h *AdminHandler) TaxForPayer(c echo.Context) error {
	payer := c.Param("payer")
	if c.QueryParam("date") == "" {
		return c.JSON(http.StatusOK, echo.Map{"items": h.Market.Tax().ForPayer(payer)})
	}
	date, err := model.ParseDate(c.QueryParam("date"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, revenueResp{Payer: payer, Date: date, Amount: h.Market.Tax().Query(payer, date)})
}

func (h *AdminHandler) Snapshot(c echo.Context) error {
	err := h.Market.Snapshot(c.Request().Context())
	if errors.Is(err, service.ErrNoSnapshotStore) {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"saved_at": h.Market.Now()})
}

// ClientReservations lists a client's reservations by ?view=active|history.
func ClientReservations(m *service.Marketplace) echo.HandlerFunc {
	return func(c echo.Context) error {
		view := c.QueryParam("view")
		switch view {
		case service.ViewAll, service.ViewActive, service.ViewHistory:
		default:
			return badRequest(c, "view must be active or history")
		}
		rs, err := m.ClientReservations(c.Param("id"), view)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"items": reservationViews(rs)})
	}
}
