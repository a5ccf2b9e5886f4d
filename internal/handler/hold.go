package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kinohall/cinema-ticketing/internal/middleware"
	"github.com/kinohall/cinema-ticketing/internal/service"
)

// HoldHandler exposes the seat-hold endpoints.
type HoldHandler struct {
	Holds *service.HoldService
}

func NewHoldHandler(h *service.HoldService) *HoldHandler {
	return &HoldHandler{Holds: h}
}

type createHoldsReq struct {
	SeatIDs []uint64 `json:"seat_ids"`
}

// Create places holds on the requested seats, all or nothing.
func (h *HoldHandler) Create(c echo.Context) error {
	screeningID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	var req createHoldsReq
	if err := c.Bind(&req); err != nil || len(req.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids required"})
	}

	res, err := h.Holds.CreateHolds(c.Request().Context(), screeningID, req.SeatIDs, middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"screening_id": res.ScreeningID,
		"hold_ids":     res.HoldIDs,
		"hold_token":   res.HoldToken,
		"expires_at":   res.ExpiresAt,
	})
}

type releaseHoldsReq struct {
	HoldIDs []uint64 `json:"hold_ids"`
}

// Release frees the given holds.  Releasing an already released or
// expired hold is a no-op.
func (h *HoldHandler) Release(c echo.Context) error {
	var req releaseHoldsReq
	if err := c.Bind(&req); err != nil || len(req.HoldIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold_ids required"})
	}
	if err := h.Holds.ReleaseHolds(c.Request().Context(), req.HoldIDs); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
