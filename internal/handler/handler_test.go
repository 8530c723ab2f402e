package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/config"
	"github.com/iliyamo/flight-marketplace/internal/feed"
	"github.com/iliyamo/flight-marketplace/internal/handler"
	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/repository"
	"github.com/iliyamo/flight-marketplace/internal/router"
	"github.com/iliyamo/flight-marketplace/internal/service"
	"github.com/iliyamo/flight-marketplace/internal/utils"
)

const (
	jwtSecret = "handler-test-secret"
	catalog   = `
airports:
  - {code: BEG, name: Nikola Tesla, city: Belgrade}
  - {code: CDG, name: Charles de Gaulle, city: Paris}
  - {code: BJY, name: Batajnica, city: Belgrade}
airlines:
  - name: AirSerbia
    discount: 0.05
    flights:
      - {code: JU100, from: BEG, to: CDG, departs: 2026-03-01T09:30:00Z, total_seats: 10,
         base_price: 100, max_price: 300, seats_per_threshold: 5, increment: 20}
      - {code: JU900, from: BJY, to: CDG, departs: 2026-03-01T11:00:00Z, total_seats: 10,
         base_price: 100, max_price: 300, seats_per_threshold: 5, increment: 20}
agents:
  - name: Kompas
    commission: 0.10
    airlines: [AirSerbia]
clients:
  - {id: c-1, name: Ana}
`
)

var start = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type server struct {
	e   *echo.Echo
	clk *clock.FakeClock
	m   *service.Marketplace
}

func newServer(t *testing.T) server {
	t.Helper()
	cat, err := config.ParseCatalog([]byte(catalog))
	require.NoError(t, err)
	hash, err := utils.HashSecret("kompas-pass", 4)
	require.NoError(t, err)
	cat.Operators = []config.OperatorSpec{{Name: "Kompas", Role: config.RoleAgent, SecretHash: hash}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(start)
	store := repository.NewFileSnapshotStore(filepath.Join(t.TempDir(), "snap.cbor"))
	m, err := service.New(cat, service.Options{Clock: clk, Logger: logger, Store: store})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	e := echo.New()
	router.Register(e, router.Handlers{
		Auth:    handler.NewAuthHandler(m, jwtSecret, time.Hour, clk),
		Flights: &handler.FlightHandler{Market: m, Hub: feed.NewHub(logger)},
		Agents:  &handler.AgentHandler{Market: m},
		Airline: &handler.AirlineHandler{Market: m},
		Admin:   &handler.AdminHandler{Market: m},
		Clients: handler.ClientReservations(m),
	}, router.Middleware{}, jwtSecret)
	return server{e: e, clk: clk, m: m}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, sub, role, time.Hour, time.Now())
	require.NoError(t, err)
	return tok.Token
}

func (s server) do(t *testing.T, method, path, tok, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestToken(t *testing.T) {
	s := newServer(t)
	code, body := s.do(t, http.MethodPost, "/v1/auth/token", "", `{"name":"Kompas","secret":"kompas-pass"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, config.RoleAgent, body["role"])
	claims, err := utils.ParseAccessToken(jwtSecret, body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Kompas", claims.Subject)

	code, _ = s.do(t, http.MethodPost, "/v1/auth/token", "", `{"name":"Kompas","secret":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(t, http.MethodPost, "/v1/auth/token", "", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSearch(t *testing.T) {
	s := newServer(t)
	for _, from := range []string{"BEG", "bjy", "belgrade"} {
		code, body := s.do(t, http.MethodGet, "/v1/agents/Kompas/flights?from="+from+"&to=CDG&date=2026-03-01", "", "")
		require.Equal(t, http.StatusOK, code)
		items := body["items"].([]any)
		require.Len(t, items, 2, from)
		assert.Equal(t, "JU100", items[0].(map[string]any)["code"])
		assert.Equal(t, "JU900", items[1].(map[string]any)["code"])
	}

	code, body := s.do(t, http.MethodGet, "/v1/airlines/AirSerbia/flights?from=BJY", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 2)
	code, body = s.do(t, http.MethodGet, "/v1/airlines/AirSerbia/flights?to=Rome", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	code, _ = s.do(t, http.MethodGet, "/v1/agents/Kompas/flights?date=March", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodGet, "/v1/agents/Nobody/flights", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodGet, "/v1/flights/XX9", "", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAgentBookingLifecycle(t *testing.T) {
	s := newServer(t)
	tok := token(t, "Kompas", config.RoleAgent)

	code, body := s.do(t, http.MethodPost, "/v1/agents/Kompas/bookings", tok, `{"outbound":"JU100","party_size":2,"client_id":"c-1"}`)
	require.Equal(t, http.StatusCreated, code)
	id := body["id"].(string)
	assert.Equal(t, string(model.StatusActive), body["status"])

	code, body = s.do(t, http.MethodPost, "/v1/agents/Kompas/bookings", tok, `{"outbound":"JU100","party_size":20}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, body["error"])
	code, _ = s.do(t, http.MethodPost, "/v1/agents/Kompas/bookings", tok, `{"outbound":"JU100","party_size":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/v1/agents/Kompas/bookings/"+id+"/pay", tok, `{"async":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 190.0, body["base"], 1e-9)
	assert.InDelta(t, 19.0, body["commission"], 1e-9)

	code, _ = s.do(t, http.MethodPost, "/v1/agents/Kompas/bookings/"+id+"/pay", tok, "")
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.do(t, http.MethodDelete, "/v1/agents/Kompas/bookings/"+id, tok, "")
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.do(t, http.MethodDelete, "/v1/agents/Kompas/bookings/unknown", tok, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/v1/agents/Kompas/revenue?date=2026-02-01", tok, "")
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 19.0, body["amount"], 1e-9)

	code, _ = s.do(t, http.MethodPost, "/v1/agents/Kompas/revenue/declare", tok, "")
	assert.Equal(t, http.StatusAccepted, code)
	code, body = s.do(t, http.MethodGet, "/v1/tax/Kompas?date=2026-02-01", token(t, "root", config.RoleAdmin), "")
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 19.0, body["amount"], 1e-9)

	code, body = s.do(t, http.MethodGet, "/v1/clients/c-1/reservations?view=history", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)
}

func TestAirlineExpiredPaymentIsGone(t *testing.T) {
	s := newServer(t)
	tok := token(t, "AirSerbia", config.RoleAirline)

	code, body := s.do(t, http.MethodPost, "/v1/airlines/AirSerbia/reservations", tok, `{"outbound":"JU100","party_size":3}`)
	require.Equal(t, http.StatusCreated, code)
	id := body["id"].(string)

	code, body = s.do(t, http.MethodGet, "/v1/airlines/AirSerbia/reservations/"+id+"/quote", tok, "")
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 300.0, body["amount"], 1e-9)

	s.clk.Advance(model.PaymentWindow + time.Second)
	code, _ = s.do(t, http.MethodPost, "/v1/airlines/AirSerbia/reservations/"+id+"/pay", tok, "")
	assert.Equal(t, http.StatusGone, code)

	code, body = s.do(t, http.MethodGet, "/v1/flights/JU100", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 10, body["remaining_seats"])
}

func TestAccessControl(t *testing.T) {
	s := newServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		status int
	}{
		{"no token", http.MethodPost, "/v1/agents/Kompas/bookings", "", http.StatusUnauthorized},
		{"other agent", http.MethodGet, "/v1/agents/Kompas/revenue", token(t, "Putnik", config.RoleAgent), http.StatusForbidden},
		{"agent on airline", http.MethodGet, "/v1/airlines/AirSerbia/revenue", token(t, "Kompas", config.RoleAgent), http.StatusForbidden},
		{"agent on tax", http.MethodGet, "/v1/tax", token(t, "Kompas", config.RoleAgent), http.StatusForbidden},
		{"admin on airline", http.MethodGet, "/v1/airlines/AirSerbia/revenue", token(t, "root", config.RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.do(t, tt.method, tt.path, tt.tok, "")
			assert.Equal(t, tt.status, code)
		})
	}
}

func TestAdminSnapshot(t *testing.T) {
	s := newServer(t)
	admin := token(t, "root", config.RoleAdmin)
	code, _ := s.do(t, http.MethodPost, "/v1/admin/snapshot", admin, "")
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodGet, "/v1/tax?date=2026-02-01", admin, "")
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 0.0, body["total"], 1e-9)
	require.NoError(t, s.m.Snapshot(context.Background()))
}
