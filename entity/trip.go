package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type TripStatus string

const (
	TripStatusScheduled TripStatus = "SCHEDULED"
	TripStatusDeparted  TripStatus = "DEPARTED"
	TripStatusCompleted TripStatus = "COMPLETED"
	TripStatusCancelled TripStatus = "CANCELLED"
)

type Trip struct {
	ID                 string          `json:"trip_id" db:"trip_id"`
	RouteID            string          `json:"route_id" db:"route_id"`
	VehicleID          string          `json:"vehicle_id" db:"vehicle_id"`
	DepartureTime      time.Time       `json:"departure_time" db:"departure_time"`
	BasePrice          decimal.Decimal `json:"base_price" db:"base_price"`
	Status             TripStatus      `json:"status" db:"status"`
	MaxSeatsPerBooking int             `json:"max_seats_per_booking" db:"max_seats_per_booking"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

func (t Trip) IsBookable() bool {
	return t.Status == TripStatusScheduled
}

func (t Trip) HasDeparted(now time.Time) bool {
	return t.Status == TripStatusDeparted ||
		t.Status == TripStatusCompleted ||
		!now.Before(t.DepartureTime)
}

// SeatCap returns the per-booking seat limit of the trip, falling back to
// the global default when the trip does not define its own.
func (t Trip) SeatCap(globalDefault int) int {
	if t.MaxSeatsPerBooking > 0 {
		return t.MaxSeatsPerBooking
	}
	return globalDefault
}
