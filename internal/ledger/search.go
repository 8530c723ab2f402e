package ledger

import (
	"strings"

	"github.com/iliyamo/flight-marketplace/internal/model"
)

// Query selects flights by departure airport, arrival airport and
// departure day. A flight airport matches a query airport with the same
// code or in the same city (case-insensitive). Zero-valued fields match
// anything.
type Query struct {
	From model.Airport
	To   model.Airport
	Date model.Date
}

func matchesAirport(a, q model.Airport) bool {
	if q.Code == "" && q.City == "" {
		return true
	}
	if q.Code != "" && strings.EqualFold(a.Code, q.Code) {
		return true
	}
	return q.City != "" && strings.EqualFold(a.City, q.City)
}

// Matches reports whether f satisfies q and still has seats to sell. It
// reads f without holding any lock across other flights.
func (q Query) Matches(f *model.Flight) bool {
	if !matchesAirport(f.From(), q.From) || !matchesAirport(f.To(), q.To) {
		return false
	}
	if q.Date != "" && model.DateOf(f.Departs()) != q.Date {
		return false
	}
	return f.RemainingSeats() > 0
}

// ResolveAirport turns search text into a query airport: the known airport
// with that code, otherwise an airport standing for the city named by text.
func ResolveAirport(known []model.Airport, text string) model.Airport {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Airport{}
	}
	for _, a := range known {
		if strings.EqualFold(a.Code, text) {
			return a
		}
	}
	return model.Airport{City: text}
}
