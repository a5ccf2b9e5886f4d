package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// ScreeningHandler serves the public browse endpoints.  Reads go
// straight to the store; there is no per-request state to coordinate.
type ScreeningHandler struct {
	Store store.Store
}

func NewScreeningHandler(s store.Store) *ScreeningHandler {
	return &ScreeningHandler{Store: s}
}

type screeningResp struct {
	ID             uint64    `json:"id"`
	HallID         uint64    `json:"hall_id"`
	MovieTitle     string    `json:"movie_title"`
	StartsAt       time.Time `json:"starts_at"`
	BasePriceCents int64     `json:"base_price_cents"`
	Started        bool      `json:"started"`
}

// Get returns one screening.
func (h *ScreeningHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	s, err := h.Store.GetScreening(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "screening not found"})
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, screeningResp{
		ID: s.ID, HallID: s.HallID, MovieTitle: s.MovieTitle,
		StartsAt: s.StartsAt, BasePriceCents: s.BasePriceCents,
		Started: s.HasStarted(time.Now().UTC()),
	})
}

type seatMapEntry struct {
	SeatID     uint64     `json:"seat_id"`
	RowLabel   string     `json:"row"`
	SeatNumber uint32     `json:"number"`
	SeatType   string     `json:"seat_type"`
	PriceCents int64      `json:"price_cents"`
	Status     string     `json:"status"`
	HeldUntil  *time.Time `json:"held_until,omitempty"`
}

// SeatMap returns every seat of the screening's hall with its current
// status.  Seats without a status row yet are AVAILABLE, and an
// expired hold is already shown as AVAILABLE even before the sweeper
// has reclaimed it.
func (h *ScreeningHandler) SeatMap(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	ctx := c.Request().Context()
	s, err := h.Store.GetScreening(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "screening not found"})
		}
		return fail(c, err)
	}
	seats, err := h.Store.SeatsByHall(ctx, s.HallID)
	if err != nil {
		return fail(c, err)
	}
	statuses, err := h.Store.LatestSeatStatuses(ctx, id)
	if err != nil {
		return fail(c, err)
	}

	now := time.Now().UTC()
	out := make([]seatMapEntry, 0, len(seats))
	for i := range seats {
		seat := seats[i]
		entry := seatMapEntry{
			SeatID:     seat.ID,
			RowLabel:   seat.RowLabel,
			SeatNumber: seat.SeatNumber,
			SeatType:   seat.SeatType,
			PriceCents: seat.PriceCents(s.BasePriceCents),
			Status:     model.SeatAvailable,
		}
		if st, ok := statuses[seat.ID]; ok {
			entry.Status = st.Status
			if st.Status == model.SeatHeld {
				if st.HoldExpiresAt != nil && st.HoldExpiresAt.After(now) {
					entry.HeldUntil = st.HoldExpiresAt
				} else {
					entry.Status = model.SeatAvailable
				}
			}
		}
		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"screening_id": id,
		"seats":        out,
	})
}
