// Package router registers the HTTP API on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/config"
	"github.com/iliyamo/flight-marketplace/internal/handler"
	"github.com/iliyamo/flight-marketplace/internal/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Auth    *handler.AuthHandler
	Flights *handler.FlightHandler
	Agents  *handler.AgentHandler
	Airline *handler.AirlineHandler
	Admin   *handler.AdminHandler
	Clients echo.HandlerFunc
}

// Middleware carries the optional Redis-backed layers. Either may be a
// pass-through.
type Middleware struct {
	SearchCache echo.MiddlewareFunc
	RateLimit   echo.MiddlewareFunc
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func (m *Middleware) defaults() {
	if m.SearchCache == nil {
		m.SearchCache = passThrough
	}
	if m.RateLimit == nil {
		m.RateLimit = passThrough
	}
}

// Register wires every route.
func Register(e *echo.Echo, h Handlers, mw Middleware, jwtSecret string) {
	mw.defaults()
	RegisterRoutes(e)
	RegisterAuth(e, h.Auth)
	RegisterPublic(e, h.Flights, h.Clients, mw.SearchCache)
	RegisterAgent(e, h.Agents, mw.RateLimit, jwtSecret)
	RegisterAirline(e, h.Airline, mw.RateLimit, jwtSecret)
	RegisterAdmin(e, h.Admin, jwtSecret)
}

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers token issuance. It needs no session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/token", a.Token)
}

// RegisterPublic registers search, flight lookup, the feed and client
// history. None of these require a token.
func RegisterPublic(e *echo.Echo, f *handler.FlightHandler, clients echo.HandlerFunc, cache echo.MiddlewareFunc) {
	e.GET("/v1/agents/:agent/flights", f.SearchAgent, cache)
	e.GET("/v1/airlines/:airline/flights", f.SearchAirline, cache)
	e.GET("/v1/flights/:code", f.GetFlight)
	e.GET("/v1/feed/flights/:code", f.Feed)
	e.GET("/v1/clients/:id/reservations", clients)
}

// RegisterAgent registers endpoints an agent operator calls for itself.
func RegisterAgent(e *echo.Echo, h *handler.AgentHandler, limit echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group(
		"/v1/agents/:agent",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(config.RoleAgent, config.RoleAdmin),
		middleware.RequireSelf("agent", config.RoleAdmin),
	)
	g.POST("/bookings", h.Book, limit)
	g.POST("/bookings/:id/pay", h.Pay, limit)
	g.DELETE("/bookings/:id", h.Cancel)
	g.GET("/revenue", h.Revenue)
	g.POST("/revenue/declare", h.Declare)
}

// RegisterAirline registers endpoints an airline operator calls for itself.
func RegisterAirline(e *echo.Echo, h *handler.AirlineHandler, limit echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group(
		"/v1/airlines/:airline",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(config.RoleAirline, config.RoleAdmin),
		middleware.RequireSelf("airline", config.RoleAdmin),
	)
	g.GET("/reservations", h.List)
	g.POST("/reservations", h.Reserve, limit)
	g.POST("/reservations/:id/pay", h.Pay, limit)
	g.DELETE("/reservations/:id", h.Cancel)
	g.GET("/reservations/:id/quote", h.Quote)
	g.GET("/revenue", h.Revenue)
	g.POST("/revenue/declare", h.Declare)
}

// RegisterAdmin registers the tax authority and snapshot endpoints.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(config.RoleAdmin))
	g.GET("/tax", h.TaxForDate)
	g.GET("/tax/:payer", h.TaxForPayer)
	g.POST("/admin/snapshot", h.Snapshot)
}
