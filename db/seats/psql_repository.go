// Package seats persists seat state transitions. Every transition is a
// conditional update: it applies only if the row still holds the expected
// state, and zero affected rows is the conflict signal.
package seats

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/giaotrandev/booking-app-sub000/entity"
	seatstate "github.com/giaotrandev/booking-app-sub000/seats"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	if db == nil {
		panic("db must be set")
	}

	return &PostgresRepository{db: db}
}

// Claim soft-claims an AVAILABLE seat. It reports false when the seat is not AVAILABLE anymore.
func (r *PostgresRepository) Claim(ctx context.Context, tripID, seatID, claimID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE seats
		SET status = $1, claim_id = $2, claimed_by = $3, updated_at = NOW()
		WHERE trip_id = $4 AND seat_id = $5 AND status = ANY($6) AND booking_trip_id IS NULL
	`, entity.SeatStatusReserved, claimID, userID, tripID, seatID, fromStatuses(entity.SeatStatusReserved))
	if err != nil {
		return false, fmt.Errorf("could not claim seat %s: %w", seatID, err)
	}

	return affectedOne(res)
}

// ReleaseClaim frees a seat held by the given claim. A seat that was claimed again
// or taken over by a booking in the meantime is left untouched.
func (r *PostgresRepository) ReleaseClaim(ctx context.Context, tripID, seatID, claimID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE seats
		SET status = $1, claim_id = NULL, claimed_by = NULL, updated_at = NOW()
		WHERE trip_id = $2 AND seat_id = $3 AND claim_id = $4 AND status = $5 AND booking_trip_id IS NULL
	`, entity.SeatStatusAvailable, tripID, seatID, claimID, entity.SeatStatusReserved)
	if err != nil {
		return false, fmt.Errorf("could not release claim on seat %s: %w", seatID, err)
	}

	return affectedOne(res)
}

// ReserveForBooking links the seats to a booking leg. A seat is taken only if it is
// AVAILABLE or soft-claimed by claimOwner. It returns the ids of the seats it took,
// the caller decides what a shortfall means.
func ReserveForBooking(
	ctx context.Context,
	tx sqlx.QueryerContext,
	tripID string,
	bookingTripID string,
	claimOwner string,
	seatIDs []string,
) ([]string, error) {
	var reserved []string
	err := sqlx.SelectContext(ctx, tx, &reserved, `
		UPDATE seats
		SET status = $1, booking_trip_id = $2, claim_id = NULL, claimed_by = NULL, updated_at = NOW()
		WHERE trip_id = $3
			AND seat_id = ANY($4::uuid[])
			AND booking_trip_id IS NULL
			AND (status = ANY($5) OR (status = $1 AND claimed_by = $6))
		RETURNING seat_id
	`,
		entity.SeatStatusReserved,
		bookingTripID,
		tripID,
		pq.Array(seatIDs),
		fromStatuses(entity.SeatStatusReserved),
		claimOwner,
	)
	if err != nil {
		return nil, fmt.Errorf("could not reserve seats: %w", err)
	}

	return reserved, nil
}

// MarkBooked moves every RESERVED seat of the booking legs to BOOKED.
func MarkBooked(ctx context.Context, tx sqlx.QueryerContext, bookingTripIDs []string) ([]entity.Seat, error) {
	var booked []entity.Seat
	err := sqlx.SelectContext(ctx, tx, &booked, `
		UPDATE seats
		SET status = $1, updated_at = NOW()
		WHERE booking_trip_id = ANY($2::uuid[]) AND status = ANY($3)
		RETURNING *
	`, entity.SeatStatusBooked, pq.Array(bookingTripIDs), fromStatuses(entity.SeatStatusBooked))
	if err != nil {
		return nil, fmt.Errorf("could not mark seats as booked: %w", err)
	}

	return booked, nil
}

// Release returns every seat held by the booking legs to AVAILABLE and clears the link.
func Release(ctx context.Context, tx sqlx.QueryerContext, bookingTripIDs []string) ([]entity.Seat, error) {
	var released []entity.Seat
	err := sqlx.SelectContext(ctx, tx, &released, `
		UPDATE seats
		SET status = $1, booking_trip_id = NULL, claim_id = NULL, claimed_by = NULL, updated_at = NOW()
		WHERE booking_trip_id = ANY($2::uuid[]) AND status = ANY($3)
		RETURNING *
	`, entity.SeatStatusAvailable, pq.Array(bookingTripIDs), fromStatuses(entity.SeatStatusAvailable))
	if err != nil {
		return nil, fmt.Errorf("could not release seats: %w", err)
	}

	return released, nil
}

// fromStatuses is the expected current state of a conditional update moving seats to the given state.
func fromStatuses(to entity.SeatStatus) any {
	return pq.Array(lo.Map(seatstate.From(to), func(s entity.SeatStatus, _ int) string {
		return string(s)
	}))
}

func affectedOne(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get affected rows: %w", err)
	}
	return n == 1, nil
}
