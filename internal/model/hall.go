package model

import "time"

// Hall is a physical auditorium containing a fixed grid of seats.
// Screenings are scheduled into a hall and inherit its seat layout.
type Hall struct {
	ID        uint64    // halls.id
	Name      string    // halls.name
	CreatedAt time.Time // halls.created_at
}
