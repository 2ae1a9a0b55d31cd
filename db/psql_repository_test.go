package db_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giaotrandev/booking-app-sub000/db"
	"github.com/giaotrandev/booking-app-sub000/db/datalake"
	"github.com/giaotrandev/booking-app-sub000/db/seats"
	"github.com/giaotrandev/booking-app-sub000/db/trips"
	"github.com/giaotrandev/booking-app-sub000/entity"
)

func TestMain(m *testing.M) {
	os.Exit(db.RunWithPostgres(m))
}

func createTrip(t *testing.T, repo *trips.PostgresRepository) entity.Trip {
	t.Helper()

	trip := entity.Trip{
		ID:            uuid.NewString(),
		RouteID:       "HN-HP",
		DepartureTime: time.Now().Add(24 * time.Hour).UTC(),
		BasePrice:     decimal.NewFromInt(100_000),
		Status:        entity.TripStatusScheduled,
	}
	layout := []entity.SeatLayout{
		{SeatNumber: "A1", SeatType: "standard"},
		{SeatNumber: "A2", SeatType: "standard"},
	}

	// creating a trip should be idempotent, so the layout is stored once
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Create(context.Background(), trip, layout))
	}

	return trip
}

func TestTripsRepository_Create_idempotency(t *testing.T) {
	ctx := context.Background()
	repo := trips.NewPostgresRepository(db.GetDb(t))

	trip := createTrip(t, repo)

	list, err := repo.Seats(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	for _, seat := range list {
		assert.Equal(t, entity.SeatStatusAvailable, seat.Status)
	}
}

func TestSeatsRepository_Claim_is_conditional(t *testing.T) {
	ctx := context.Background()
	tripsRepo := trips.NewPostgresRepository(db.GetDb(t))
	seatsRepo := seats.NewPostgresRepository(db.GetDb(t))

	trip := createTrip(t, tripsRepo)
	list, err := tripsRepo.Seats(ctx, trip.ID)
	require.NoError(t, err)
	seatID := list[0].ID

	firstClaim := uuid.NewString()
	claimed, err := seatsRepo.Claim(ctx, trip.ID, seatID, firstClaim, "user-1")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = seatsRepo.Claim(ctx, trip.ID, seatID, uuid.NewString(), "user-2")
	require.NoError(t, err)
	assert.False(t, claimed, "a RESERVED seat must not be claimed again")

	released, err := seatsRepo.ReleaseClaim(ctx, trip.ID, seatID, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, released, "only the claim holding the seat may release it")

	released, err = seatsRepo.ReleaseClaim(ctx, trip.ID, seatID, firstClaim)
	require.NoError(t, err)
	assert.True(t, released)

	seat, err := tripsRepo.Seat(ctx, trip.ID, seatID)
	require.NoError(t, err)
	assert.Equal(t, entity.SeatStatusAvailable, seat.Status)
	assert.Nil(t, seat.ClaimedBy)
}

func TestDataLake_StoreEvent_idempotency(t *testing.T) {
	ctx := context.Background()
	dataLake := datalake.NewDataLake(db.GetDb(t))

	event := entity.DataLakeEvent{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Name:        "DataLakeTest_" + uuid.NewString(),
		Payload:     []byte(`{"header":{}}`),
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, dataLake.StoreEvent(ctx, event))

		events, err := dataLake.GetEvents(ctx, event.Name)
		require.NoError(t, err)

		// re-delivered events are stored once
		require.Len(t, events, 1)
	}
}

func TestUpdateInTxWithTimeout_rolls_back_on_timeout(t *testing.T) {
	ctx := context.Background()
	dbConn := db.GetDb(t)
	tripsRepo := trips.NewPostgresRepository(dbConn)

	trip := createTrip(t, tripsRepo)
	list, err := tripsRepo.Seats(ctx, trip.ID)
	require.NoError(t, err)
	seatID := list[0].ID

	err = db.UpdateInTxWithTimeout(ctx, dbConn, sql.LevelReadCommitted, 200*time.Millisecond, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE seats SET status = 'RESERVED' WHERE seat_id = $1`, seatID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `SELECT pg_sleep(2)`)
		return err
	})
	require.ErrorIs(t, err, entity.ErrTransactionTimeout)

	list, err = tripsRepo.Seats(ctx, trip.ID)
	require.NoError(t, err)
	for _, seat := range list {
		assert.Equal(t, entity.SeatStatusAvailable, seat.Status)
	}
}
