package router

import (
	"github.com/labstack/echo/v4"

	"github.com/kinohall/cinema-ticketing/internal/handler"
	"github.com/kinohall/cinema-ticketing/internal/middleware"
	"github.com/kinohall/cinema-ticketing/internal/model"
)

// Handlers bundles everything the route table needs.
type Handlers struct {
	Auth       *handler.AuthHandler
	Screenings *handler.ScreeningHandler
	Holds      *handler.HoldHandler
	Orders     *handler.OrderHandler
	Payments   *handler.PaymentHandler
	Admin      *handler.AdminHandler
}

// Register wires the full route table.  RateLimit guards the
// hold and order creation paths; it is a pass-through when redis is
// not configured.
func Register(e *echo.Echo, h Handlers, jwtSecret string, rateLimit echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	// Unauthenticated surface: account endpoints, browse, webhooks.
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	e.GET("/v1/screenings/:id", h.Screenings.Get)
	e.GET("/v1/screenings/:id/seats", h.Screenings.SeatMap)

	// Gateways call back here; auth is the per-gateway signature, not a JWT.
	e.POST("/v1/payments/webhook/:gateway", h.Payments.Webhook)

	v1 := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	v1.GET("/me", h.Auth.Me)

	v1.POST("/screenings/:id/holds", h.Holds.Create, rateLimit)
	v1.DELETE("/holds", h.Holds.Release)

	v1.POST("/orders", h.Orders.Create, rateLimit)
	v1.GET("/my-orders", h.Orders.List)
	v1.GET("/orders/:id", h.Orders.Get)
	v1.POST("/orders/:id/cancel", h.Orders.Cancel)
	v1.GET("/orders/:id/qr", h.Orders.QR)

	v1.POST("/payments/init", h.Payments.Init)

	admin := v1.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	admin.POST("/halls", h.Admin.CreateHall)
	admin.POST("/screenings", h.Admin.CreateScreening)
	admin.POST("/vouchers", h.Admin.CreateVoucher)
	admin.POST("/combos", h.Admin.CreateCombo)
	admin.POST("/sweep/:pass", h.Admin.Sweep)
	admin.POST("/orders/:id/refund", h.Admin.Refund)
}
