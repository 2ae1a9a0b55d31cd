// Package seats holds the lifecycle rules of a seat. Persistence applies them as
// conditional updates, see db/seats.
package seats

import (
	"github.com/giaotrandev/booking-app-sub000/entity"
)

var statuses = []entity.SeatStatus{
	entity.SeatStatusAvailable,
	entity.SeatStatusReserved,
	entity.SeatStatusBooked,
}

var transitions = map[entity.SeatStatus][]entity.SeatStatus{
	entity.SeatStatusAvailable: {entity.SeatStatusReserved},
	entity.SeatStatusReserved:  {entity.SeatStatusBooked, entity.SeatStatusAvailable},
	// only cancellation before departure or an admin override
	entity.SeatStatusBooked: {entity.SeatStatusAvailable},
}

func CanTransition(from, to entity.SeatStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Bookable reports whether a booking request may take the seat for the buyer.
// A RESERVED seat is bookable only when it is soft-claimed by the same buyer
// and no booking leg holds it yet.
func Bookable(seat entity.Seat, buyerID string) bool {
	switch seat.Status {
	case entity.SeatStatusAvailable:
		return true
	case entity.SeatStatusReserved:
		return buyerID != "" &&
			seat.BookingTripID == nil &&
			seat.ClaimedBy != nil &&
			*seat.ClaimedBy == buyerID
	default:
		return false
	}
}

// From returns the states a seat may move to the given state from. Conditional
// updates use it as their expected current state.
func From(to entity.SeatStatus) []entity.SeatStatus {
	var from []entity.SeatStatus
	for _, s := range statuses {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}
