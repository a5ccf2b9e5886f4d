package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kinohall/cinema-ticketing/internal/logger"
	"github.com/kinohall/cinema-ticketing/internal/service"
)

// fail translates a service error into the matching HTTP response.
// Seat conflicts carry the blocked seat ids so the client can deselect
// exactly those.
func fail(c echo.Context, err error) error {
	var conflict *service.SeatConflictError
	if errors.As(err, &conflict) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "seats unavailable",
			"seats": conflict.Seats,
		})
	}
	switch {
	case errors.Is(err, service.ErrScreeningNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrSeatNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrIdempotencyKeyRequired),
		errors.Is(err, service.ErrCrossScreeningOrder),
		errors.Is(err, service.ErrUnknownGateway):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidOrStaleHold),
		errors.Is(err, service.ErrScreeningStarted),
		errors.Is(err, service.ErrInvalidOrderState),
		errors.Is(err, service.ErrVoucherInvalid),
		errors.Is(err, service.ErrNotRefundable),
		errors.Is(err, service.ErrRefundExceedsBalance):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrPaymentInProgress):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrGatewayFailure):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	}
	logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// pathID parses the named numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
