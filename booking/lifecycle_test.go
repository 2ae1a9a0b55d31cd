package booking_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giaotrandev/booking-app-sub000/booking"
	"github.com/giaotrandev/booking-app-sub000/cancellation"
	"github.com/giaotrandev/booking-app-sub000/db"
	"github.com/giaotrandev/booking-app-sub000/db/bookings"
	"github.com/giaotrandev/booking-app-sub000/db/seats"
	"github.com/giaotrandev/booking-app-sub000/db/trips"
	"github.com/giaotrandev/booking-app-sub000/db/vouchers"
	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/jobs"
	"github.com/giaotrandev/booking-app-sub000/payment"
	"github.com/giaotrandev/booking-app-sub000/reservation"
)

func TestMain(m *testing.M) {
	os.Exit(db.RunWithPostgres(m))
}

type queueSpy struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (q *queueSpy) Enqueue(_ context.Context, job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = append(q.jobs, job)
	return nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, any) error {
	return nil
}

type lifecycle struct {
	db         *sqlx.DB
	trips      *trips.PostgresRepository
	vouchers   *vouchers.PostgresRepository
	bookings   *bookings.PostgresRepository
	claims     *reservation.Manager
	scheduler  *cancellation.Scheduler
	queue      *queueSpy
	engine     *booking.Engine
	reconciler *payment.Reconciler
}

func newLifecycle(t *testing.T) lifecycle {
	t.Helper()

	dbConn := db.GetDb(t)

	l := lifecycle{
		db:       dbConn,
		trips:    trips.NewPostgresRepository(dbConn),
		vouchers: vouchers.NewPostgresRepository(dbConn),
		bookings: bookings.NewPostgresRepository(dbConn, 20*time.Second),
		queue:    &queueSpy{},
	}
	l.claims = reservation.NewManager(
		reservation.NewMemoryStore(),
		l.trips,
		seats.NewPostgresRepository(dbConn),
		nopBus{},
		reservation.Config{TTL: 15 * time.Minute, SweepInterval: time.Minute, DefaultSeatCap: 10},
	)
	l.scheduler = cancellation.NewScheduler(l.queue, l.bookings, 3)
	t.Cleanup(l.scheduler.Close)

	l.engine = booking.NewEngine(
		l.trips,
		l.vouchers,
		l.bookings,
		l.claims,
		l.scheduler,
		payment.QRBuilder{BankAccount: "0123499999", BankCode: "VCB"},
		booking.Config{DefaultSeatCap: 10, PaymentTimeout: 15 * time.Minute},
	)
	l.reconciler = payment.NewReconciler(l.bookings, payment.Config{AmountTolerance: decimal.NewFromInt(1000)})

	return l
}

// newTrip creates a bookable trip priced 100,000 per seat and returns its seat ids.
func (l lifecycle) newTrip(t *testing.T, seatCount int) (entity.Trip, []string) {
	t.Helper()
	ctx := context.Background()

	trip := entity.Trip{
		ID:            uuid.NewString(),
		RouteID:       "route-hn-hp",
		VehicleID:     "29B-12345",
		DepartureTime: time.Now().Add(24 * time.Hour).UTC(),
		BasePrice:     decimal.NewFromInt(100_000),
		Status:        entity.TripStatusScheduled,
	}
	var layout []entity.SeatLayout
	for i := 1; i <= seatCount; i++ {
		layout = append(layout, entity.SeatLayout{SeatNumber: fmt.Sprintf("A%02d", i), SeatType: "standard"})
	}
	require.NoError(t, l.trips.Create(ctx, trip, layout))

	tripSeats, err := l.trips.Seats(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, tripSeats, seatCount)

	ids := make([]string, 0, seatCount)
	for _, s := range tripSeats {
		ids = append(ids, s.ID)
	}
	return trip, ids
}

func (l lifecycle) seatStatuses(t *testing.T, tripID string, seatIDs []string) []entity.SeatStatus {
	t.Helper()

	ss, err := l.trips.SeatsByID(context.Background(), tripID, seatIDs)
	require.NoError(t, err)

	statuses := make([]entity.SeatStatus, 0, len(ss))
	for _, s := range ss {
		statuses = append(statuses, s.Status)
	}
	return statuses
}

func paymentFor(b entity.Booking, transactionID int64) payment.Notification {
	return payment.Notification{
		ID:              transactionID,
		Gateway:         "Vietcombank",
		TransactionDate: time.Now().UTC().Format("2006-01-02 15:04:05"),
		Content:         "thanh toan " + b.PaymentReference,
		TransferType:    payment.TransferIn,
		TransferAmount:  b.FinalPrice,
		ReferenceCode:   fmt.Sprintf("FT%d", transactionID),
	}
}

func historyReasons(b entity.Booking) []string {
	reasons := make([]string, 0, len(b.History))
	for _, h := range b.History {
		reasons = append(reasons, h.ChangeReason)
	}
	return reasons
}

func TestCreateBooking_reserves_seats(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()
	trip, seatIDs := l.newTrip(t, 2)

	b, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:  trip.ID,
		SeatIDs: seatIDs,
		Buyer:   entity.Buyer{UserID: uuid.NewString()},
	})
	require.NoError(t, err)

	stored, err := l.engine.GetBooking(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStatusPending, stored.Status)
	assert.Equal(t, entity.PaymentStatusPending, stored.PaymentStatus)
	assert.True(t, decimal.NewFromInt(200_000).Equal(stored.TotalPrice))
	assert.True(t, decimal.NewFromInt(200_000).Equal(stored.FinalPrice))
	assert.Equal(t, b.PaymentReference, stored.PaymentReference)
	require.Len(t, stored.Trips, 1)
	assert.ElementsMatch(t, seatIDs, stored.Trips[0].SeatIDs)
	assert.Equal(t, []string{bookings.ReasonBookingCreated}, historyReasons(stored))

	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusReserved, entity.SeatStatusReserved},
		l.seatStatuses(t, trip.ID, seatIDs),
	)

	require.Len(t, l.queue.jobs, 1)
	assert.Equal(t, cancellation.JobType, l.queue.jobs[0].Type)
}

func TestCreateBooking_with_voucher(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()
	trip, seatIDs := l.newTrip(t, 4)

	limit := 1
	v := entity.Voucher{
		ID:                uuid.NewString(),
		Code:              "PERCENT10-" + uuid.NewString()[:8],
		DiscountType:      entity.DiscountTypePercentage,
		DiscountValue:     decimal.NewFromInt(10),
		MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(15_000)),
		UsageLimit:        &limit,
		ValidFrom:         time.Now().Add(-time.Hour).UTC(),
		ValidUntil:        time.Now().Add(time.Hour).UTC(),
		IsActive:          true,
	}
	require.NoError(t, l.vouchers.Create(ctx, v))

	b, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:      trip.ID,
		SeatIDs:     seatIDs[:2],
		Buyer:       entity.Buyer{UserID: uuid.NewString()},
		VoucherCode: v.Code,
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(15_000).Equal(b.DiscountAmount))
	assert.True(t, decimal.NewFromInt(185_000).Equal(b.FinalPrice))

	_, err = l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:      trip.ID,
		SeatIDs:     seatIDs[2:],
		Buyer:       entity.Buyer{UserID: uuid.NewString()},
		VoucherCode: v.Code,
	})
	var rejected entity.VoucherRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, entity.VoucherLimitReached, rejected.Reason)

	// the rejected request must not hold its seats
	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusAvailable, entity.SeatStatusAvailable},
		l.seatStatuses(t, trip.ID, seatIDs[2:]),
	)
}

func TestCreateBooking_concurrent_voucher_redemptions(t *testing.T) {
	one := 1
	sharedUser := uuid.NewString()

	testCases := []struct {
		Name           string
		UsageLimit     *int
		PerUserLimit   *int
		Buyer          func() string
		ExpectedReason entity.VoucherRejectReason
	}{
		{
			Name:           "usage_limit",
			UsageLimit:     &one,
			Buyer:          uuid.NewString,
			ExpectedReason: entity.VoucherLimitReached,
		},
		{
			Name:           "per_user_limit",
			PerUserLimit:   &one,
			Buyer:          func() string { return sharedUser },
			ExpectedReason: entity.VoucherPerUserLimit,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			l := newLifecycle(t)
			ctx := context.Background()

			const buyers = 5
			trip, seatIDs := l.newTrip(t, buyers)

			v := entity.Voucher{
				ID:            uuid.NewString(),
				Code:          "LASTONE-" + uuid.NewString()[:8],
				DiscountType:  entity.DiscountTypeFixed,
				DiscountValue: decimal.NewFromInt(10_000),
				UsageLimit:    tc.UsageLimit,
				PerUserLimit:  tc.PerUserLimit,
				ValidFrom:     time.Now().Add(-time.Hour).UTC(),
				ValidUntil:    time.Now().Add(time.Hour).UTC(),
				IsActive:      true,
			}
			require.NoError(t, l.vouchers.Create(ctx, v))

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				winners  []string
				rejected []string
			)
			start := make(chan struct{})

			for i := 0; i < buyers; i++ {
				seatID := seatIDs[i]
				userID := tc.Buyer()

				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start

					_, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
						TripID:      trip.ID,
						SeatIDs:     []string{seatID},
						Buyer:       entity.Buyer{UserID: userID},
						VoucherCode: v.Code,
					})

					mu.Lock()
					defer mu.Unlock()

					var voucherErr entity.VoucherRejectedError
					switch {
					case err == nil:
						winners = append(winners, seatID)
					case errors.As(err, &voucherErr):
						assert.Equal(t, tc.ExpectedReason, voucherErr.Reason)
						rejected = append(rejected, seatID)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}

			close(start)
			wg.Wait()

			require.Len(t, winners, 1)
			assert.Len(t, rejected, buyers-1)

			stored, err := l.vouchers.GetByCode(ctx, v.Code)
			require.NoError(t, err)
			assert.Equal(t, 1, stored.UsedCount)

			for _, status := range l.seatStatuses(t, trip.ID, rejected) {
				assert.Equal(t, entity.SeatStatusAvailable, status)
			}
			assert.Equal(t, []entity.SeatStatus{entity.SeatStatusReserved}, l.seatStatuses(t, trip.ID, winners))
		})
	}
}

func TestCreateBooking_concurrent_buyers_single_seat(t *testing.T) {
	l := newLifecycle(t)
	trip, seatIDs := l.newTrip(t, 1)

	const buyers = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	start := make(chan struct{})

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := l.engine.CreateBooking(context.Background(), booking.CreateBookingRequest{
				TripID:  trip.ID,
				SeatIDs: seatIDs,
				Buyer:   entity.Buyer{UserID: uuid.NewString()},
			})

			mu.Lock()
			defer mu.Unlock()

			var notAvailable entity.SeatsNotAvailableError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &notAvailable):
				assert.Equal(t, seatIDs, notAvailable.SeatIDs)
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, conflicts)
}

func TestCreateBooking_takes_over_own_claim(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()
	trip, seatIDs := l.newTrip(t, 2)

	owner := uuid.NewString()
	_, err := l.claims.Claim(ctx, owner, trip.ID, seatIDs[0])
	require.NoError(t, err)

	_, err = l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:  trip.ID,
		SeatIDs: seatIDs[:1],
		Buyer:   entity.Buyer{UserID: uuid.NewString()},
	})
	var notAvailable entity.SeatsNotAvailableError
	require.ErrorAs(t, err, &notAvailable)

	b, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:  trip.ID,
		SeatIDs: seatIDs,
		Buyer:   entity.Buyer{UserID: owner},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, seatIDs, b.Trips[0].SeatIDs)

	// the claim was promoted, so sweeping it later must not free the seat
	swept, err := l.claims.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusReserved, entity.SeatStatusReserved},
		l.seatStatuses(t, trip.ID, seatIDs),
	)
}

func TestCancellation_releases_unpaid_booking(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()
	trip, seatIDs := l.newTrip(t, 2)

	b, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:         trip.ID,
		SeatIDs:        seatIDs,
		Buyer:          entity.Buyer{GuestName: "Lan", GuestEmail: "lan@example.com"},
		PaymentTimeout: time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	recoverer := cancellation.NewRecoverer(l.scheduler, time.Minute)
	_, err = recoverer.RecoverOverdue(ctx)
	require.NoError(t, err)

	stored, err := l.engine.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, stored.Status)
	assert.Equal(t, entity.PaymentStatusFailed, stored.PaymentStatus)
	assert.NotNil(t, stored.Trips[0].CancelledAt)
	assert.Equal(t, []string{bookings.ReasonBookingCreated, bookings.ReasonPaymentTimeout}, historyReasons(stored))
	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusAvailable, entity.SeatStatusAvailable},
		l.seatStatuses(t, trip.ID, seatIDs),
	)

	// the queued job fires later and finds nothing to do
	require.NoError(t, l.scheduler.CancelExpiredBooking(ctx, b.ID))
	stored, err = l.engine.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)

	// a late payment is acknowledged without reviving the booking
	ack, err := l.reconciler.HandlePaymentNotification(ctx, paymentFor(b, time.Now().UnixNano()))
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, payment.ResultUnmatched, ack.Result)

	stored, err = l.engine.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, stored.Status)
	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusAvailable, entity.SeatStatusAvailable},
		l.seatStatuses(t, trip.ID, seatIDs),
	)
}

func TestPayment_confirms_booking_once(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()
	trip, seatIDs := l.newTrip(t, 2)

	b, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:  trip.ID,
		SeatIDs: seatIDs,
		Buyer:   entity.Buyer{UserID: uuid.NewString()},
	})
	require.NoError(t, err)

	n := paymentFor(b, time.Now().UnixNano())
	for i := 0; i < 3; i++ {
		ack, err := l.reconciler.HandlePaymentNotification(ctx, n)
		require.NoError(t, err)
		assert.True(t, ack.Success)
	}

	stored, err := l.engine.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, entity.PaymentStatusCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentTransactionID)
	assert.Equal(t, fmt.Sprint(n.ID), *stored.PaymentTransactionID)
	assert.Equal(t, []string{bookings.ReasonBookingCreated, bookings.ReasonPaymentCompleted}, historyReasons(stored))
	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusBooked, entity.SeatStatusBooked},
		l.seatStatuses(t, trip.ID, seatIDs),
	)

	// the cancellation job for a paid booking is a no-op
	require.NoError(t, l.scheduler.CancelExpiredBooking(ctx, b.ID))
	stored, err = l.engine.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
}

func TestPayment_races_cancellation(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		trip, seatIDs := l.newTrip(t, 1)

		b, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
			TripID:  trip.ID,
			SeatIDs: seatIDs,
			Buyer:   entity.Buyer{UserID: uuid.NewString()},
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.scheduler.CancelExpiredBooking(ctx, b.ID))
		}()
		go func() {
			defer wg.Done()
			_, err := l.reconciler.HandlePaymentNotification(ctx, paymentFor(b, time.Now().UnixNano()))
			assert.NoError(t, err)
		}()
		wg.Wait()

		stored, err := l.engine.GetBooking(ctx, b.ID)
		require.NoError(t, err)

		switch stored.Status {
		case entity.BookingStatusConfirmed:
			assert.Equal(t, entity.PaymentStatusCompleted, stored.PaymentStatus)
			assert.Equal(t, []entity.SeatStatus{entity.SeatStatusBooked}, l.seatStatuses(t, trip.ID, seatIDs))
		case entity.BookingStatusCancelled:
			assert.Equal(t, entity.PaymentStatusFailed, stored.PaymentStatus)
			assert.Equal(t, []entity.SeatStatus{entity.SeatStatusAvailable}, l.seatStatuses(t, trip.ID, seatIDs))
		default:
			t.Fatalf("booking ended in %s", stored.Status)
		}
		assert.Len(t, stored.History, 2)
	}
}

func TestCancelBooking_confirmed_booking_frees_seats(t *testing.T) {
	l := newLifecycle(t)
	ctx := context.Background()
	trip, seatIDs := l.newTrip(t, 2)
	owner := uuid.NewString()

	b, err := l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:  trip.ID,
		SeatIDs: seatIDs,
		Buyer:   entity.Buyer{UserID: owner},
	})
	require.NoError(t, err)

	_, err = l.reconciler.HandlePaymentNotification(ctx, paymentFor(b, time.Now().UnixNano()))
	require.NoError(t, err)

	cancelled, err := l.engine.CancelBooking(ctx, b.ID, entity.Actor{UserID: owner, Role: entity.RoleUser}, "")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)
	// the payment itself stays completed, refunds are handled outside
	assert.Equal(t, entity.PaymentStatusCompleted, cancelled.PaymentStatus)
	assert.Equal(t,
		[]entity.SeatStatus{entity.SeatStatusAvailable, entity.SeatStatusAvailable},
		l.seatStatuses(t, trip.ID, seatIDs),
	)

	// the freed seats can be sold again
	_, err = l.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		TripID:  trip.ID,
		SeatIDs: seatIDs,
		Buyer:   entity.Buyer{UserID: uuid.NewString()},
	})
	require.NoError(t, err)
}
