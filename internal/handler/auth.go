package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/service"
	"github.com/iliyamo/flight-marketplace/internal/utils"
)

// AuthHandler issues access tokens to catalog operators.
type AuthHandler struct {
	Market *service.Marketplace
	Secret string
	TTL    time.Duration
	Clock  clock.Clock
}

func NewAuthHandler(m *service.Marketplace, secret string, ttl time.Duration, clk clock.Clock) *AuthHandler {
	return &AuthHandler{Market: m, Secret: secret, TTL: ttl, Clock: clk}
}

type tokenReq struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type tokenResp struct {
	utils.AccessToken
	Name string `json:"name"`
	Role string `json:"role"`
}

// Token exchanges an operator name and secret for a JWT.
func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Secret == "" {
		return badRequest(c, "name/secret required")
	}
	op, ok := h.Market.Authenticate(req.Name, req.Secret, utils.VerifySecret)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.Secret, op.Name, op.Role, h.TTL, h.Clock.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusOK, tokenResp{AccessToken: tok, Name: op.Name, Role: op.Role})
}
