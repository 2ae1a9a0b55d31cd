package trips

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/giaotrandev/booking-app-sub000/db"
	"github.com/giaotrandev/booking-app-sub000/entity"
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

// Create stores the trip together with a seat per layout entry, all AVAILABLE.
// Creating the same trip twice is a no-op.
func (r *PostgresRepository) Create(ctx context.Context, trip entity.Trip, layout []entity.SeatLayout) error {
	return db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO trips (trip_id, route_id, vehicle_id, departure_time, base_price, status, max_seats_per_booking)
			VALUES (:trip_id, :route_id, :vehicle_id, :departure_time, :base_price, :status, :max_seats_per_booking)
			ON CONFLICT (trip_id) DO NOTHING
		`, trip)
		if err != nil {
			return fmt.Errorf("could not insert trip: %w", err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("could not get affected rows: %w", err)
		}
		if inserted == 0 {
			return nil
		}

		for _, l := range layout {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO seats (seat_id, trip_id, seat_number, seat_type, status)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.NewString(), trip.ID, l.SeatNumber, l.SeatType, entity.SeatStatusAvailable)
			if err != nil {
				return fmt.Errorf("could not insert seat %s: %w", l.SeatNumber, err)
			}
		}

		return nil
	})
}

func (r *PostgresRepository) Get(ctx context.Context, tripID string) (entity.Trip, error) {
	if _, err := uuid.Parse(tripID); err != nil {
		return entity.Trip{}, entity.ErrTripNotFound
	}

	var trip entity.Trip
	err := r.db.GetContext(ctx, &trip, `SELECT * FROM trips WHERE trip_id = $1`, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Trip{}, entity.ErrTripNotFound
	}
	if err != nil {
		return entity.Trip{}, fmt.Errorf("could not get trip %s: %w", tripID, err)
	}

	return trip, nil
}

func (r *PostgresRepository) Seats(ctx context.Context, tripID string) ([]entity.Seat, error) {
	if _, err := uuid.Parse(tripID); err != nil {
		return nil, entity.ErrTripNotFound
	}

	var seats []entity.Seat
	err := r.db.SelectContext(ctx, &seats, `
		SELECT * FROM seats WHERE trip_id = $1 ORDER BY seat_number
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("could not get seats of trip %s: %w", tripID, err)
	}

	return seats, nil
}

// SeatsByID returns the seats of the trip among seatIDs. Ids that are not
// seats of the trip are left out.
func (r *PostgresRepository) SeatsByID(ctx context.Context, tripID string, seatIDs []string) ([]entity.Seat, error) {
	valid := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}

	var seats []entity.Seat
	err := r.db.SelectContext(ctx, &seats, `
		SELECT * FROM seats WHERE trip_id = $1 AND seat_id = ANY($2::uuid[])
	`, tripID, pq.Array(valid))
	if err != nil {
		return nil, fmt.Errorf("could not get seats: %w", err)
	}

	return seats, nil
}

func (r *PostgresRepository) Seat(ctx context.Context, tripID, seatID string) (entity.Seat, error) {
	seats, err := r.SeatsByID(ctx, tripID, []string{seatID})
	if err != nil {
		return entity.Seat{}, err
	}
	if len(seats) == 0 {
		return entity.Seat{}, entity.ErrSeatsInvalid
	}

	return seats[0], nil
}
