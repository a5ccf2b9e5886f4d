package model

import "time"

// Seat type codes.  The price factor of a type scales the screening
// base price for that seat.
const (
	SeatTypeStandard   = "STANDARD"
	SeatTypeVIP        = "VIP"
	SeatTypeAccessible = "ACCESSIBLE"
)

// Seat is one physical seat in a hall, identified by row label and
// number.  Geometry is immutable once the seat is referenced by holds,
// status rows or tickets.
//
// PriceFactorPct is a percentage applied to the screening base price
// (100 = base price, 150 = 1.5x).  A zero factor means "no override";
// the screening base price is used as-is.
type Seat struct {
	ID             uint64    // seats.id
	HallID         uint64    // seats.hall_id
	RowLabel       string    // seats.row_label
	SeatNumber     uint32    // seats.seat_number
	SeatType       string    // seats.seat_type
	PriceFactorPct int64     // seats.price_factor_pct
	CreatedAt      time.Time // seats.created_at
}

// PriceCents computes the price of this seat for a screening with the
// given base price.  Rounding is half-up on the percentage scaling.
func (s *Seat) PriceCents(baseCents int64) int64 {
	if s.PriceFactorPct <= 0 {
		return baseCents
	}
	return (baseCents*s.PriceFactorPct + 50) / 100
}
