package model

import "time"

// Seat hold lifecycle states.  A hold is created HOLD, becomes CLAIMED
// when an order is assembled from it, and ends RELEASED (cancel or
// cleanup) or EXPIRED (sweeper).  A hold never goes straight from HOLD
// to a sold seat; the CLAIMED step links it to the order first.
const (
	HoldActive   = "HOLD"
	HoldClaimed  = "CLAIMED"
	HoldReleased = "RELEASED"
	HoldExpired  = "EXPIRED"
)

// SeatHold is a time-boxed claim on one seat for one screening.  All
// holds created in a single request share a token so the legacy order
// path can resolve the whole set from it.
type SeatHold struct {
	ID          uint64    // seat_holds.id
	ScreeningID uint64    // seat_holds.screening_id
	SeatID      uint64    // seat_holds.seat_id
	UserID      uint64    // seat_holds.user_id
	Status      string    // HOLD, CLAIMED, RELEASED or EXPIRED
	HoldToken   string    // seat_holds.hold_token (shared per batch)
	ExpiresAt   time.Time // seat_holds.expires_at (UTC)
	OrderID     *uint64   // set when the hold is claimed by an order
	CreatedAt   time.Time // seat_holds.created_at
}

// Expired reports whether the hold deadline has passed.
func (h *SeatHold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// Open reports whether the hold is in a non-terminal state.
func (h *SeatHold) Open() bool {
	return h.Status == HoldActive || h.Status == HoldClaimed
}
