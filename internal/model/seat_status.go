package model

import "time"

// Seat status values.  For a given (screening, seat) pair the row with
// the highest id is authoritative; earlier rows are history.
const (
	SeatAvailable = "AVAILABLE"
	SeatHeld      = "HELD"
	SeatSold      = "SOLD"
)

// SeatStatus is one immutable snapshot of a seat's state for a
// screening.  State transitions insert a new row instead of mutating
// an existing one, so a concurrent reader never observes a partially
// applied change and the full history stays auditable.
type SeatStatus struct {
	ID            uint64     // seat_status.id
	ScreeningID   uint64     // seat_status.screening_id
	SeatID        uint64     // seat_status.seat_id
	Status        string     // AVAILABLE, HELD or SOLD
	HolderUserID  *uint64    // user holding the seat, when HELD
	HoldExpiresAt *time.Time // hold deadline, when HELD
	OrderID       *uint64    // order the seat is attached to, if any
	CreatedAt     time.Time  // seat_status.created_at
}
