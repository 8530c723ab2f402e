package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-marketplace/internal/model"
	"github.com/iliyamo/flight-marketplace/internal/taxsink"
	"github.com/iliyamo/flight-marketplace/internal/workerpool"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrAirlineNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientInventory), errors.Is(err, model.ErrAlreadyPaid):
		return http.StatusConflict
	case errors.Is(err, model.ErrExpired):
		return http.StatusGone
	case errors.Is(err, model.ErrInvalidPartySize), errors.Is(err, model.ErrInvalidFlight),
		errors.Is(err, taxsink.ErrEmptyPayer), errors.Is(err, taxsink.ErrNegativeAmount):
		return http.StatusBadRequest
	case errors.Is(err, workerpool.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, workerpool.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}. Unexpected errors are not echoed.
func fail(c echo.Context, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
