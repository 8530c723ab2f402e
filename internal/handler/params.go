package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/model"
)

// dateParam reads ?date=, defaulting to today.
func dateParam(c echo.Context, now func() model.Date) (model.Date, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return now(), nil
	}
	return model.ParseDate(raw)
}

type bookingReq struct {
	Outbound  string `json:"outbound"`
	Return    string `json:"return"`
	PartySize int    `json:"party_size"`
	ClientID  string `json:"client_id"`
	Async     bool   `json:"async"`
}

type payReq struct {
	Async bool `json:"async"`
}

type revenueResp struct {
	Payer  string     `json:"payer"`
	Date   model.Date `json:"date"`
	Amount float64    `json:"amount"`
}

func reservationViews(rs []*model.Reservation) []model.ReservationView {
	out := make([]model.ReservationView, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.View())
	}
	return out
}
