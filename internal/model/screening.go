package model

import "time"

// Screening is a scheduled showing of a movie in a hall.  Seat holds
// and orders always reference a screening; once it has started no new
// holds or orders may be created for it.
//
// BasePriceCents is the default seat price.  Individual seats may
// scale it through their seat type's price factor.
type Screening struct {
	ID             uint64    // screenings.id
	HallID         uint64    // screenings.hall_id
	MovieTitle     string    // screenings.movie_title
	StartsAt       time.Time // screenings.starts_at (UTC)
	BasePriceCents int64     // screenings.base_price_cents
	CreatedAt      time.Time // screenings.created_at
}

// HasStarted reports whether the screening start time has passed.
func (s *Screening) HasStarted(now time.Time) bool {
	return !s.StartsAt.After(now)
}
