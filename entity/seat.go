package entity

import "time"

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusReserved  SeatStatus = "RESERVED"
	SeatStatusBooked    SeatStatus = "BOOKED"
)

// Seat is a single sellable place on a trip.
//
// A RESERVED seat is held either by a soft claim (ClaimID set, BookingTripID nil)
// or by a booking leg (BookingTripID set). A BOOKED seat is always held by a booking leg.
type Seat struct {
	ID            string     `json:"seat_id" db:"seat_id"`
	TripID        string     `json:"trip_id" db:"trip_id"`
	SeatNumber    string     `json:"seat_number" db:"seat_number"`
	SeatType      string     `json:"seat_type" db:"seat_type"`
	Status        SeatStatus `json:"status" db:"status"`
	BookingTripID *string    `json:"booking_trip_id,omitempty" db:"booking_trip_id"`
	ClaimID       *string    `json:"-" db:"claim_id"`
	ClaimedBy     *string    `json:"claimed_by,omitempty" db:"claimed_by"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type SeatLayout struct {
	SeatNumber string `json:"seat_number"`
	SeatType   string `json:"seat_type"`
}
