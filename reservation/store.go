package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

// ErrSeatClaimed is returned by a Store when another claim already holds the seat.
var ErrSeatClaimed = errors.New("seat already claimed")

// Store keeps live soft claims. Implementations must make Reserve and Remove atomic.
type Store interface {
	// Reserve records r unless the seat is already claimed (ErrSeatClaimed) or the user
	// holds limit claims on the trip (entity.ErrClaimLimitExceeded).
	Reserve(ctx context.Context, r entity.Reservation, limit int) error
	// Get returns the claim on the seat, if any.
	Get(ctx context.Context, tripID, seatID string) (entity.Reservation, bool, error)
	// Remove deletes r only if it is still the claim holding the seat.
	Remove(ctx context.Context, r entity.Reservation) (bool, error)
	// Expired lists up to limit claims that expired before now.
	Expired(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error)
}

func seatKey(tripID, seatID string) string {
	return tripID + ":" + seatID
}

func userKey(userID, tripID string) string {
	return userID + ":" + tripID
}
