package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/kinohall/cinema-ticketing/internal/middleware"
	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/service"
)

// OrderHandler exposes the order endpoints.
type OrderHandler struct {
	Orders *service.OrderService
}

func NewOrderHandler(o *service.OrderService) *OrderHandler {
	return &OrderHandler{Orders: o}
}

type createOrderReq struct {
	IdempotencyKey string                 `json:"idempotency_key"`
	HoldIDs        []uint64               `json:"hold_ids"`
	VoucherCode    string                 `json:"voucher_code"`
	Combos         []model.ComboSelection `json:"combos"`

	// Legacy clients send the hold token plus seat list instead of
	// hold ids.
	HoldToken   string   `json:"hold_token"`
	ScreeningID uint64   `json:"screening_id"`
	SeatIDs     []uint64 `json:"seat_ids"`
}

type ticketResp struct {
	ID         uint64 `json:"id"`
	SeatID     uint64 `json:"seat_id"`
	Status     string `json:"status"`
	PriceCents int64  `json:"price_cents"`
	Code       string `json:"code"`
}

type orderResp struct {
	ID          uint64               `json:"id"`
	ScreeningID uint64               `json:"screening_id"`
	Status      string               `json:"status"`
	SeatIDs     []uint64             `json:"seat_ids"`
	Pricing     model.PriceBreakdown `json:"pricing"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Tickets     []ticketResp         `json:"tickets"`
}

func toOrderResp(r *service.OrderResult) orderResp {
	out := orderResp{
		ID:          r.Order.ID,
		ScreeningID: r.Order.ScreeningID,
		Status:      r.Order.Status,
		SeatIDs:     r.Order.SeatIDs,
		Pricing:     r.Order.Pricing,
		ExpiresAt:   r.Order.ExpiresAt,
	}
	for i := range r.Tickets {
		t := r.Tickets[i]
		out.Tickets = append(out.Tickets, ticketResp{
			ID: t.ID, SeatID: t.SeatID, Status: t.Status,
			PriceCents: t.PriceCents, Code: t.Code,
		})
	}
	return out
}

// Create assembles an order from the caller's holds.  Retries with the
// same idempotency key return the already-created order with 200
// instead of 201.
func (h *OrderHandler) Create(c echo.Context) error {
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	userID := middleware.UserID(c)
	input := service.CreateOrderInput{
		IdempotencyKey: req.IdempotencyKey,
		HoldIDs:        req.HoldIDs,
		VoucherCode:    req.VoucherCode,
		Combos:         req.Combos,
	}

	var (
		res *service.OrderResult
		err error
	)
	if len(req.HoldIDs) == 0 && req.HoldToken != "" {
		res, err = h.Orders.CreateOrderLegacy(c.Request().Context(), userID, req.ScreeningID, req.HoldToken, req.SeatIDs, input)
	} else {
		res, err = h.Orders.CreateOrder(c.Request().Context(), userID, input)
	}
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusCreated
	if res.Order.IdempotencyKey == req.IdempotencyKey && !res.Order.CreatedAt.IsZero() &&
		time.Since(res.Order.CreatedAt) > time.Second {
		status = http.StatusOK
	}
	return c.JSON(status, toOrderResp(res))
}

// Cancel cancels one of the caller's PENDING orders.
func (h *OrderHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	if err := h.Orders.CancelOrder(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get returns one of the caller's orders with tickets.
func (h *OrderHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	res, err := h.Orders.GetOrder(c.Request().Context(), middleware.UserID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResp(res))
}

// List returns the caller's orders, newest first.
func (h *OrderHandler) List(c echo.Context) error {
	orders, err := h.Orders.ListOrders(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	out := make([]orderResp, 0, len(orders))
	for i := range orders {
		o := orders[i]
		out = append(out, orderResp{
			ID: o.ID, ScreeningID: o.ScreeningID, Status: o.Status,
			SeatIDs: o.SeatIDs, Pricing: o.Pricing, ExpiresAt: o.ExpiresAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": out})
}

// QR renders the order's check-in code as a PNG.
func (h *OrderHandler) QR(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	res, err := h.Orders.GetOrder(c.Request().Context(), middleware.UserID(c), id)
	if err != nil {
		return fail(c, err)
	}
	if res.Order.QRCode == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order has no qr code"})
	}
	png, err := qrcode.Encode(res.Order.QRCode, qrcode.Medium, 256)
	if err != nil {
		return fail(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
