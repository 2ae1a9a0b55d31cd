package seats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/seats"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to entity.SeatStatus
		allowed  bool
	}{
		{entity.SeatStatusAvailable, entity.SeatStatusReserved, true},
		{entity.SeatStatusAvailable, entity.SeatStatusBooked, false},
		{entity.SeatStatusReserved, entity.SeatStatusBooked, true},
		{entity.SeatStatusReserved, entity.SeatStatusAvailable, true},
		{entity.SeatStatusBooked, entity.SeatStatusAvailable, true},
		{entity.SeatStatusBooked, entity.SeatStatusReserved, false},
		{entity.SeatStatusAvailable, entity.SeatStatusAvailable, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, seats.CanTransition(tc.from, tc.to))
		})
	}
}

func TestFrom(t *testing.T) {
	assert.Equal(t, []entity.SeatStatus{entity.SeatStatusAvailable}, seats.From(entity.SeatStatusReserved))
	assert.Equal(t, []entity.SeatStatus{entity.SeatStatusReserved}, seats.From(entity.SeatStatusBooked))
	// releasing an AVAILABLE seat is a no-op
	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusReserved, entity.SeatStatusBooked},
		seats.From(entity.SeatStatusAvailable),
	)
}

func TestBookable(t *testing.T) {
	buyer := "user-1"
	other := "user-2"
	bookingTripID := "bt-1"

	assert.True(t, seats.Bookable(entity.Seat{Status: entity.SeatStatusAvailable}, ""))
	assert.True(t, seats.Bookable(entity.Seat{Status: entity.SeatStatusReserved, ClaimedBy: &buyer}, buyer))
	assert.False(t, seats.Bookable(entity.Seat{Status: entity.SeatStatusReserved, ClaimedBy: &other}, buyer))
	assert.False(t, seats.Bookable(entity.Seat{Status: entity.SeatStatusReserved, ClaimedBy: &buyer}, ""))
	assert.False(t, seats.Bookable(entity.Seat{
		Status:        entity.SeatStatusReserved,
		ClaimedBy:     &buyer,
		BookingTripID: &bookingTripID,
	}, buyer))
	assert.False(t, seats.Bookable(entity.Seat{Status: entity.SeatStatusBooked}, buyer))
}
