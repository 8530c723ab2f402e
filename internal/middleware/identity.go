package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ctxPrincipal = "principal"
	ctxRole      = "role"
)

// Principal returns the authenticated operator name, or "guest".
func Principal(c echo.Context) string {
	if s, ok := c.Get(ctxPrincipal).(string); ok && s != "" {
		return s
	}
	return "guest"
}

// Role returns the authenticated operator role, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}
