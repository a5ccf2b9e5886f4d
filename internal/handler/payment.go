package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kinohall/cinema-ticketing/internal/middleware"
	"github.com/kinohall/cinema-ticketing/internal/service"
)

// PaymentHandler exposes the payment endpoints, including the gateway
// webhook.
type PaymentHandler struct {
	Payments *service.PaymentService
}

func NewPaymentHandler(p *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{Payments: p}
}

type initPaymentReq struct {
	OrderID uint64 `json:"order_id"`
	Gateway string `json:"gateway"`
}

// Init opens a checkout for an order.
func (h *PaymentHandler) Init(c echo.Context) error {
	var req initPaymentReq
	if err := c.Bind(&req); err != nil || req.OrderID == 0 || req.Gateway == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id and gateway required"})
	}
	res, err := h.Payments.InitPayment(c.Request().Context(), middleware.UserID(c), req.OrderID, req.Gateway)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"payment_id":   res.Payment.ID,
		"amount_cents": res.Payment.AmountCents,
		"provider_ref": res.Payment.ProviderRef,
		"redirect_url": res.Intent.RedirectURL,
		"qr_payload":   res.Intent.QRPayload,
	})
}

// Webhook receives gateway callbacks.  Providers retry on anything but
// 2xx, so every delivery that reached us is answered 200: the body's
// success flag tells whether the event did anything, and an invalid
// signature is deliberately indistinguishable from an ignored event.
// Only an unknown gateway code is a 404, since that is a
// misconfigured URL rather than a delivery.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	gatewayCode := c.Param("gateway")
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"success": false})
	}
	receipt, err := h.Payments.ReceiveWebhook(c.Request().Context(), gatewayCode, c.Request().Header, body)
	if err != nil {
		if err == service.ErrUnknownGateway {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown gateway"})
		}
		// Processing failed midway; the event row is still unhandled, so
		// the provider's retry will pick it up.
		return c.JSON(http.StatusOK, echo.Map{"success": false})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   receipt.Verified,
		"duplicate": receipt.Duplicate,
		"matched":   receipt.Matched,
	})
}
