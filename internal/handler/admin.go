package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kinohall/cinema-ticketing/internal/middleware"
	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/service"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// SweepRunner is the subset of the background sweeper the admin
// endpoints trigger on demand.
type SweepRunner interface {
	SweepHolds(ctx context.Context) error
	SweepPayments(ctx context.Context) error
	SweepTickets(ctx context.Context) error
}

// AdminHandler exposes the setup and operations endpoints.  All routes
// sit behind the ADMIN role.
type AdminHandler struct {
	Store    store.Store
	Payments *service.PaymentService
	Sweeps   SweepRunner
}

func NewAdminHandler(s store.Store, p *service.PaymentService, sweeps SweepRunner) *AdminHandler {
	return &AdminHandler{Store: s, Payments: p, Sweeps: sweeps}
}

type createHallReq struct {
	Name        string `json:"name"`
	Rows        int    `json:"rows"`
	SeatsPerRow int    `json:"seats_per_row"`
	VIPRows     int    `json:"vip_rows"` // topmost rows upgraded to VIP
}

// CreateHall creates a hall together with its full seat grid.  Rows
// are labelled A, B, C... and the last VIPRows rows carry the VIP
// price factor.
func (h *AdminHandler) CreateHall(c echo.Context) error {
	var req createHallReq
	if err := c.Bind(&req); err != nil || req.Name == "" || req.Rows <= 0 || req.SeatsPerRow <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, rows and seats_per_row required"})
	}
	if req.Rows > 26 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at most 26 rows"})
	}

	hall := &model.Hall{Name: req.Name}
	err := h.Store.WithTx(c.Request().Context(), func(tx store.Tx) error {
		if err := tx.CreateHall(c.Request().Context(), hall); err != nil {
			return err
		}
		for row := 0; row < req.Rows; row++ {
			label := string(rune('A' + row))
			seatType := model.SeatTypeStandard
			factor := int64(0)
			if row >= req.Rows-req.VIPRows {
				seatType = model.SeatTypeVIP
				factor = 150
			}
			for n := 1; n <= req.SeatsPerRow; n++ {
				seat := &model.Seat{
					HallID:         hall.ID,
					RowLabel:       label,
					SeatNumber:     uint32(n),
					SeatType:       seatType,
					PriceFactorPct: factor,
				}
				if err := tx.CreateSeat(c.Request().Context(), seat); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"hall_id": hall.ID,
		"seats":   req.Rows * req.SeatsPerRow,
	})
}

type createScreeningReq struct {
	HallID         uint64    `json:"hall_id"`
	MovieTitle     string    `json:"movie_title"`
	StartsAt       time.Time `json:"starts_at"`
	BasePriceCents int64     `json:"base_price_cents"`
}

// CreateScreening schedules a screening into a hall.
func (h *AdminHandler) CreateScreening(c echo.Context) error {
	var req createScreeningReq
	if err := c.Bind(&req); err != nil || req.HallID == 0 || req.MovieTitle == "" || req.BasePriceCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hall_id, movie_title and base_price_cents required"})
	}
	s := &model.Screening{
		HallID:         req.HallID,
		MovieTitle:     req.MovieTitle,
		StartsAt:       req.StartsAt.UTC(),
		BasePriceCents: req.BasePriceCents,
	}
	err := h.Store.WithTx(c.Request().Context(), func(tx store.Tx) error {
		return tx.CreateScreening(c.Request().Context(), s)
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"screening_id": s.ID})
}

type createVoucherReq struct {
	Code       string  `json:"code"`
	ValueCents int64   `json:"value_cents"`
	UserID     *uint64 `json:"user_id"` // optional owner binding
}

// CreateVoucher issues a single-use discount voucher.
func (h *AdminHandler) CreateVoucher(c echo.Context) error {
	var req createVoucherReq
	if err := c.Bind(&req); err != nil || req.Code == "" || req.ValueCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code and value_cents required"})
	}
	v := &model.Voucher{Code: req.Code, ValueCents: req.ValueCents, UserID: req.UserID}
	err := h.Store.WithTx(c.Request().Context(), func(tx store.Tx) error {
		return tx.CreateVoucher(c.Request().Context(), v)
	})
	if err != nil {
		if err == store.ErrDuplicate {
			return c.JSON(http.StatusConflict, echo.Map{"error": "voucher code already exists"})
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"voucher_id": v.ID})
}

type createComboReq struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// CreateCombo adds a concession bundle to the catalog.
func (h *AdminHandler) CreateCombo(c echo.Context) error {
	var req createComboReq
	if err := c.Bind(&req); err != nil || req.Code == "" || req.Name == "" || req.PriceCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code, name and price_cents required"})
	}
	cb := &model.Combo{Code: req.Code, Name: req.Name, PriceCents: req.PriceCents}
	err := h.Store.WithTx(c.Request().Context(), func(tx store.Tx) error {
		return tx.CreateCombo(c.Request().Context(), cb)
	})
	if err != nil {
		if err == store.ErrDuplicate {
			return c.JSON(http.StatusConflict, echo.Map{"error": "combo code already exists"})
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"combo_id": cb.ID})
}

// Sweep triggers one sweep pass on demand: holds, payments or tickets.
func (h *AdminHandler) Sweep(c echo.Context) error {
	var run func(ctx context.Context) error
	switch pass := c.Param("pass"); pass {
	case "holds":
		run = h.Sweeps.SweepHolds
	case "payments":
		run = h.Sweeps.SweepPayments
	case "tickets":
		run = h.Sweeps.SweepTickets
	default:
		return c.JSON(http.StatusNotFound, echo.Map{"error": fmt.Sprintf("unknown sweep %q", pass)})
	}
	if err := run(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "done"})
}

type refundReq struct {
	AmountCents int64  `json:"amount_cents"` // 0 = everything refundable
	Reason      string `json:"reason"`
}

// Refund returns money against an order's successful payment.
func (h *AdminHandler) Refund(c echo.Context) error {
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var req refundReq
	if err := c.Bind(&req); err != nil || req.AmountCents < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	refund, err := h.Payments.RefundOrder(c.Request().Context(), middleware.UserID(c), orderID, req.AmountCents, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"refund_id":    refund.ID,
		"status":       refund.Status,
		"amount_cents": refund.AmountCents,
	})
}
