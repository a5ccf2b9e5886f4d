package model

import "time"

// Ticket lifecycle states.  Tickets are created PENDING together with
// their order so the order always has a concrete ticket count, and are
// only ISSUED once payment clears.
const (
	TicketPending  = "PENDING"
	TicketIssued   = "ISSUED"
	TicketFailed   = "FAILED"
	TicketCanceled = "CANCELED"
	TicketLocked   = "LOCKED"
	TicketRefunded = "REFUNDED"
)

// Ticket is one seat's admission under an order.  PriceCents is the
// order total apportioned across the order's tickets, not an
// independent re-pricing; the residual cent drift goes to the first
// ticket.
type Ticket struct {
	ID          uint64    // tickets.id
	OrderID     uint64    // tickets.order_id
	ScreeningID uint64    // tickets.screening_id
	SeatID      uint64    // tickets.seat_id
	UserID      uint64    // tickets.user_id
	Status      string    // ticket lifecycle state
	PriceCents  int64     // apportioned share of the order total
	Code        string    // tickets.code (unique)
	CreatedAt   time.Time // tickets.created_at
	UpdatedAt   time.Time // tickets.updated_at
}

// ApportionCents splits a total across n tickets.  Every share is
// total/n rounded down, and the remainder is assigned to the first
// share so the shares always sum exactly to the total.
func ApportionCents(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	each := total / int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = each
	}
	shares[0] += total - each*int64(n)
	return shares
}
