// Package queue publishes and consumes domain events over RabbitMQ.
package queue

// OrderPaidEvent is published after a payment clears and the order
// flips to PAID.  It carries enough for downstream consumers to
// notify, log or feed analytics without querying the primary database.
type OrderPaidEvent struct {
	OrderID     uint64   `json:"order_id"`
	UserID      uint64   `json:"user_id"`
	ScreeningID uint64   `json:"screening_id"`
	SeatIDs     []uint64 `json:"seat_ids"`
	TicketCodes []string `json:"ticket_codes"`
	TotalCents  int64    `json:"total_cents"`
	PaidAt      string   `json:"paid_at"`
}
