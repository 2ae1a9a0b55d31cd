package bookings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/giaotrandev/booking-app-sub000/db"
	"github.com/giaotrandev/booking-app-sub000/db/seats"
	"github.com/giaotrandev/booking-app-sub000/db/vouchers"
	"github.com/giaotrandev/booking-app-sub000/entity"
)

const (
	ReasonBookingCreated   = "booking_created"
	ReasonPaymentCompleted = "payment_completed"
	ReasonPaymentTimeout   = "payment_timeout"

	ChangedByPaymentGateway = "payment-gateway"
)

type PostgresRepository struct {
	db        *sqlx.DB
	txTimeout time.Duration
}

func NewPostgresRepository(db *sqlx.DB, txTimeout time.Duration) *PostgresRepository {
	if db == nil {
		panic("db must be set")
	}
	if txTimeout <= 0 {
		panic("txTimeout must be positive")
	}

	return &PostgresRepository{db: db, txTimeout: txTimeout}
}

// NewBooking is everything the booking transaction writes.
type NewBooking struct {
	Booking entity.Booking
	// Leg carries the trip, the seats and the price of the single leg.
	Leg        entity.BookingTrip
	ClaimOwner string
	Voucher    *entity.Voucher
	ChangedBy  string
}

// Create stores the booking, its leg, the seat holds, the voucher usage and the
// first history entry in one transaction. Any seat that cannot be taken aborts
// the whole transaction with entity.SeatsNotAvailableError.
func (r *PostgresRepository) Create(ctx context.Context, nb NewBooking) error {
	b := nb.Booking
	leg := nb.Leg

	return db.UpdateInTxWithTimeout(ctx, r.db, sql.LevelReadCommitted, r.txTimeout, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO bookings (
				booking_id, user_id, guest_name, guest_phone, guest_email, client_id, status, payment_status,
				total_price, discount_amount, final_price, voucher_id,
				payment_reference, qr_code, qr_code_expires_at
			) VALUES (
				:booking_id, :user_id, :guest_name, :guest_phone, :guest_email, :client_id, :status, :payment_status,
				:total_price, :discount_amount, :final_price, :voucher_id,
				:payment_reference, :qr_code, :qr_code_expires_at
			)
		`, b)
		if err != nil {
			return fmt.Errorf("could not insert booking: %w", err)
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO booking_trips (booking_trip_id, booking_id, trip_id, price)
			VALUES (:booking_trip_id, :booking_id, :trip_id, :price)
		`, leg)
		if err != nil {
			return fmt.Errorf("could not insert booking trip: %w", err)
		}

		reserved, err := seats.ReserveForBooking(ctx, tx, leg.TripID, leg.ID, nb.ClaimOwner, leg.SeatIDs)
		if err != nil {
			return err
		}
		if len(reserved) != len(leg.SeatIDs) {
			return entity.SeatsNotAvailableError{SeatIDs: lo.Without(leg.SeatIDs, reserved...)}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO booking_seats (booking_trip_id, seat_id)
			SELECT $1, unnest($2::uuid[])
		`, leg.ID, pq.Array(leg.SeatIDs))
		if err != nil {
			return fmt.Errorf("could not link seats to booking trip: %w", err)
		}

		changed := map[string]any{
			"status":          b.Status,
			"payment_status":  b.PaymentStatus,
			"trip_id":         leg.TripID,
			"seat_ids":        leg.SeatIDs,
			"total_price":     b.TotalPrice,
			"discount_amount": b.DiscountAmount,
			"final_price":     b.FinalPrice,
		}

		if nb.Voucher != nil {
			err = vouchers.Redeem(ctx, tx, *nb.Voucher, entity.VoucherUsage{
				ID:             uuid.NewString(),
				VoucherID:      nb.Voucher.ID,
				BookingID:      b.ID,
				UserID:         lo.FromPtr(b.UserID),
				DiscountAmount: b.DiscountAmount,
			})
			if err != nil {
				return err
			}
			changed["voucher_code"] = nb.Voucher.Code
		}

		if err := insertHistory(ctx, tx, b.ID, nb.ChangedBy, ReasonBookingCreated, changed); err != nil {
			return err
		}

		events := make([]entity.Event, 0, len(leg.SeatIDs)+1)
		for _, seatID := range leg.SeatIDs {
			events = append(events, entity.SeatStatusChanged_v1{
				Header:    entity.NewEventHeader(),
				TripID:    leg.TripID,
				SeatID:    seatID,
				Status:    entity.SeatStatusReserved,
				Reason:    entity.SeatReasonBooked,
				BookingID: b.ID,
			})
		}
		events = append(events, entity.BookingCreated_v1{
			Header:          entity.NewEventHeaderWithIdempotencyKey("booking-created-" + b.ID),
			BookingID:       b.ID,
			TripID:          leg.TripID,
			SeatIDs:         leg.SeatIDs,
			UserID:          lo.FromPtr(b.UserID),
			ContactEmail:    lo.FromPtr(b.GuestEmail),
			FinalPrice:      b.FinalPrice,
			QRCode:          b.QRCode,
			QRCodeExpiresAt: b.QRCodeExpiresAt,
		})

		return db.PublishInTx(ctx, tx, events...)
	})
}

// Cancellation describes which bookings may be cancelled and how it is recorded.
type Cancellation struct {
	BookingID    string
	FromStatuses []entity.BookingStatus
	// OnlyUnpaid restricts the cancellation to bookings whose payment is still PENDING.
	OnlyUnpaid bool
	ChangedBy  string
	Reason     string
	SeatReason string
}

type cancelledBooking struct {
	PriorStatus        entity.BookingStatus `db:"prior_status"`
	PriorPaymentStatus entity.PaymentStatus `db:"prior_payment_status"`
	PaymentStatus      entity.PaymentStatus `db:"payment_status"`
}

// Cancel moves the booking to CANCELLED and returns every seat of its legs to
// AVAILABLE. It reports false, without error, when the booking is gone or no
// longer in one of FromStatuses.
func (r *PostgresRepository) Cancel(ctx context.Context, c Cancellation) (bool, error) {
	if _, err := uuid.Parse(c.BookingID); err != nil {
		return false, nil
	}

	fromStatuses := lo.Map(c.FromStatuses, func(s entity.BookingStatus, _ int) string {
		return string(s)
	})

	var cancelled bool
	err := db.UpdateInTxWithTimeout(ctx, r.db, sql.LevelReadCommitted, r.txTimeout, func(ctx context.Context, tx *sqlx.Tx) error {
		var cb cancelledBooking
		err := tx.GetContext(ctx, &cb, `
			WITH prior AS (
				SELECT booking_id, status, payment_status FROM bookings WHERE booking_id = $1 FOR UPDATE
			)
			UPDATE bookings b
			SET
				status = $2,
				payment_status = CASE WHEN b.payment_status = $3 THEN $4 ELSE b.payment_status END,
				updated_at = NOW()
			FROM prior
			WHERE b.booking_id = prior.booking_id
				AND b.status = ANY($5)
				AND ($6::boolean = FALSE OR b.payment_status = $3)
			RETURNING prior.status AS prior_status, prior.payment_status AS prior_payment_status, b.payment_status
		`,
			c.BookingID,
			entity.BookingStatusCancelled,
			entity.PaymentStatusPending,
			entity.PaymentStatusFailed,
			pq.Array(fromStatuses),
			c.OnlyUnpaid,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not cancel booking: %w", err)
		}

		var legIDs []string
		err = tx.SelectContext(ctx, &legIDs, `
			UPDATE booking_trips SET cancelled_at = NOW()
			WHERE booking_id = $1 AND cancelled_at IS NULL
			RETURNING booking_trip_id
		`, c.BookingID)
		if err != nil {
			return fmt.Errorf("could not cancel booking trips: %w", err)
		}

		released, err := seats.Release(ctx, tx, legIDs)
		if err != nil {
			return err
		}

		err = insertHistory(ctx, tx, c.BookingID, c.ChangedBy, c.Reason, map[string]any{
			"status":            transition(cb.PriorStatus, entity.BookingStatusCancelled),
			"payment_status":    transition(cb.PriorPaymentStatus, cb.PaymentStatus),
			"released_seat_ids": seatIDs(released),
		})
		if err != nil {
			return err
		}

		events := []entity.Event{
			entity.BookingStatusChanged_v1{
				Header:        entity.NewEventHeader(),
				BookingID:     c.BookingID,
				Status:        entity.BookingStatusCancelled,
				PaymentStatus: cb.PaymentStatus,
				Reason:        c.Reason,
			},
		}
		for _, seat := range released {
			events = append(events, entity.SeatStatusChanged_v1{
				Header:    entity.NewEventHeader(),
				TripID:    seat.TripID,
				SeatID:    seat.ID,
				Status:    entity.SeatStatusAvailable,
				Reason:    c.SeatReason,
				BookingID: c.BookingID,
			})
		}

		if err := db.PublishInTx(ctx, tx, events...); err != nil {
			return err
		}

		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return cancelled, nil
}

// Payment is a reconciled gateway notification.
type Payment struct {
	BookingID     string
	TransactionID string
	Gateway       string
	ReferenceCode string
	Amount        decimal.Decimal
	PaidAt        time.Time
}

// ConfirmPayment finalizes a booking that is still waiting for its payment. It
// reports false, without error, when the booking was already finalized or cancelled.
func (r *PostgresRepository) ConfirmPayment(ctx context.Context, p Payment) (bool, error) {
	var confirmed bool
	err := db.UpdateInTxWithTimeout(ctx, r.db, sql.LevelReadCommitted, r.txTimeout, func(ctx context.Context, tx *sqlx.Tx) error {
		var b entity.Booking
		err := tx.GetContext(ctx, &b, `
			UPDATE bookings
			SET status = $1, payment_status = $2, paid_at = $3, payment_transaction_id = $4, updated_at = NOW()
			WHERE booking_id = $5 AND status = $6 AND payment_status = $7
			RETURNING *
		`,
			entity.BookingStatusConfirmed,
			entity.PaymentStatusCompleted,
			p.PaidAt,
			p.TransactionID,
			p.BookingID,
			entity.BookingStatusPending,
			entity.PaymentStatusPending,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not confirm booking: %w", err)
		}

		var legIDs []string
		err = tx.SelectContext(ctx, &legIDs, `
			SELECT booking_trip_id FROM booking_trips WHERE booking_id = $1 AND cancelled_at IS NULL
		`, p.BookingID)
		if err != nil {
			return fmt.Errorf("could not get booking trips: %w", err)
		}

		booked, err := seats.MarkBooked(ctx, tx, legIDs)
		if err != nil {
			return err
		}

		err = insertHistory(ctx, tx, p.BookingID, ChangedByPaymentGateway, ReasonPaymentCompleted, map[string]any{
			"status":         transition(entity.BookingStatusPending, entity.BookingStatusConfirmed),
			"payment_status": transition(entity.PaymentStatusPending, entity.PaymentStatusCompleted),
			"amount":         p.Amount,
			"gateway":        p.Gateway,
			"transaction_id": p.TransactionID,
			"reference_code": p.ReferenceCode,
		})
		if err != nil {
			return err
		}

		events := []entity.Event{
			entity.BookingStatusChanged_v1{
				Header:        entity.NewEventHeader(),
				BookingID:     b.ID,
				Status:        b.Status,
				PaymentStatus: b.PaymentStatus,
				Reason:        ReasonPaymentCompleted,
			},
		}
		for _, seat := range booked {
			events = append(events, entity.SeatStatusChanged_v1{
				Header:    entity.NewEventHeader(),
				TripID:    seat.TripID,
				SeatID:    seat.ID,
				Status:    entity.SeatStatusBooked,
				Reason:    entity.SeatReasonPaid,
				BookingID: b.ID,
			})
		}
		events = append(events, entity.BookingConfirmed_v1{
			Header:               entity.NewEventHeaderWithIdempotencyKey("booking-confirmed-" + b.ID),
			BookingID:            b.ID,
			UserID:               lo.FromPtr(b.UserID),
			ContactEmail:         lo.FromPtr(b.GuestEmail),
			ContactPhone:         lo.FromPtr(b.GuestPhone),
			SeatIDs:              seatIDs(booked),
			AmountPaid:           p.Amount,
			PaymentTransactionID: p.TransactionID,
		})

		if err := db.PublishInTx(ctx, tx, events...); err != nil {
			return err
		}

		confirmed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return confirmed, nil
}

// Get returns the booking with its legs and history.
func (r *PostgresRepository) Get(ctx context.Context, bookingID string) (entity.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return entity.Booking{}, entity.ErrBookingNotFound
	}

	var b entity.Booking
	err := r.db.GetContext(ctx, &b, `SELECT * FROM bookings WHERE booking_id = $1`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Booking{}, entity.ErrBookingNotFound
	}
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not get booking %s: %w", bookingID, err)
	}

	if b.Trips, err = r.legs(ctx, bookingID); err != nil {
		return entity.Booking{}, err
	}

	err = r.db.SelectContext(ctx, &b.History, `
		SELECT * FROM booking_history WHERE booking_id = $1 ORDER BY created_at, history_id
	`, bookingID)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not get booking history: %w", err)
	}

	return b, nil
}

// FindPendingByReference returns the booking still waiting for the payment with
// the given reference.
func (r *PostgresRepository) FindPendingByReference(ctx context.Context, reference string) (entity.Booking, error) {
	var b entity.Booking
	err := r.db.GetContext(ctx, &b, `
		SELECT * FROM bookings WHERE payment_reference = $1 AND status = $2 AND payment_status = $3
	`, reference, entity.BookingStatusPending, entity.PaymentStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Booking{}, entity.ErrBookingNotFound
	}
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not find booking by reference: %w", err)
	}

	return b, nil
}

// FindOverdue returns ids of unpaid bookings whose payment deadline passed before now.
func (r *PostgresRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT booking_id FROM bookings
		WHERE status = $1 AND payment_status = $2 AND qr_code_expires_at < $3
		ORDER BY qr_code_expires_at
		LIMIT $4
	`, entity.BookingStatusPending, entity.PaymentStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("could not find overdue bookings: %w", err)
	}

	return ids, nil
}

func (r *PostgresRepository) legs(ctx context.Context, bookingID string) ([]entity.BookingTrip, error) {
	var legs []entity.BookingTrip
	err := r.db.SelectContext(ctx, &legs, `
		SELECT * FROM booking_trips WHERE booking_id = $1
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("could not get booking trips: %w", err)
	}

	type bookingSeat struct {
		BookingTripID string `db:"booking_trip_id"`
		SeatID        string `db:"seat_id"`
	}
	var links []bookingSeat
	err = r.db.SelectContext(ctx, &links, `
		SELECT bs.booking_trip_id, bs.seat_id
		FROM booking_seats bs
		JOIN booking_trips bt ON bt.booking_trip_id = bs.booking_trip_id
		WHERE bt.booking_id = $1
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("could not get booking seats: %w", err)
	}

	byLeg := lo.GroupBy(links, func(l bookingSeat) string {
		return l.BookingTripID
	})
	for i := range legs {
		legs[i].SeatIDs = lo.Map(byLeg[legs[i].ID], func(l bookingSeat, _ int) string {
			return l.SeatID
		})
	}

	return legs, nil
}

func insertHistory(
	ctx context.Context,
	tx *sqlx.Tx,
	bookingID string,
	changedBy string,
	reason string,
	changedFields map[string]any,
) error {
	payload, err := json.Marshal(changedFields)
	if err != nil {
		return fmt.Errorf("could not marshal changed fields: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO booking_history (history_id, booking_id, changed_fields, changed_by, change_reason)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), bookingID, string(payload), changedBy, reason)
	if err != nil {
		return fmt.Errorf("could not insert booking history: %w", err)
	}

	return nil
}

func transition[T ~string](from, to T) map[string]T {
	return map[string]T{"from": from, "to": to}
}

func seatIDs(ss []entity.Seat) []string {
	return lo.Map(ss, func(s entity.Seat, _ int) string {
		return s.ID
	})
}
