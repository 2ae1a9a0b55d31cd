package entity

import "time"

// Reservation is a short-lived soft claim of a seat made before a booking exists.
type Reservation struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	TripID   string    `json:"trip_id"`
	SeatID   string    `json:"seat_id"`
	ExpireAt time.Time `json:"expire_at"`
}

func (r Reservation) Expired(now time.Time) bool {
	return r.ExpireAt.Before(now)
}
