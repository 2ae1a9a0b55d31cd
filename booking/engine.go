// Package booking turns seats of a trip into a booking waiting for its payment.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/giaotrandev/booking-app-sub000/db"
	"github.com/giaotrandev/booking-app-sub000/db/bookings"
	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/metrics"
	"github.com/giaotrandev/booking-app-sub000/pricing"
	"github.com/giaotrandev/booking-app-sub000/seats"
)

const (
	ReasonCancelledByUser  = "cancelled_by_user"
	ReasonCancelledByAdmin = "cancelled_by_admin"

	referencePrefix   = "BK"
	referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	maxReferenceAttempts = 3
)

type TripsRepository interface {
	Get(ctx context.Context, tripID string) (entity.Trip, error)
	SeatsByID(ctx context.Context, tripID string, seatIDs []string) ([]entity.Seat, error)
}

type VouchersRepository interface {
	GetByCode(ctx context.Context, code string) (entity.Voucher, error)
	CountUserUsages(ctx context.Context, voucherID, userID string) (int, error)
}

type BookingsRepository interface {
	Create(ctx context.Context, nb bookings.NewBooking) error
	Cancel(ctx context.Context, c bookings.Cancellation) (bool, error)
	Get(ctx context.Context, bookingID string) (entity.Booking, error)
}

type ClaimsForgetter interface {
	Forget(ctx context.Context, userID, tripID string, seatIDs []string) error
}

type CancellationScheduler interface {
	ScheduleCancellation(ctx context.Context, bookingID string, timeout time.Duration)
}

type QRCodeBuilder interface {
	Build(reference string, amount decimal.Decimal) string
}

type Config struct {
	DefaultSeatCap int
	PaymentTimeout time.Duration
}

type Engine struct {
	trips     TripsRepository
	vouchers  VouchersRepository
	bookings  BookingsRepository
	claims    ClaimsForgetter
	scheduler CancellationScheduler
	qrCodes   QRCodeBuilder
	config    Config

	now func() time.Time
}

func NewEngine(
	trips TripsRepository,
	vouchers VouchersRepository,
	bookings BookingsRepository,
	claims ClaimsForgetter,
	scheduler CancellationScheduler,
	qrCodes QRCodeBuilder,
	config Config,
) *Engine {
	if trips == nil {
		panic("trips repository must be set")
	}
	if vouchers == nil {
		panic("vouchers repository must be set")
	}
	if bookings == nil {
		panic("bookings repository must be set")
	}
	if claims == nil {
		panic("claims forgetter must be set")
	}
	if scheduler == nil {
		panic("cancellation scheduler must be set")
	}
	if qrCodes == nil {
		panic("qr code builder must be set")
	}
	if config.DefaultSeatCap <= 0 || config.PaymentTimeout <= 0 {
		panic(fmt.Sprintf("invalid booking config: %+v", config))
	}

	return &Engine{
		trips:     trips,
		vouchers:  vouchers,
		bookings:  bookings,
		claims:    claims,
		scheduler: scheduler,
		qrCodes:   qrCodes,
		config:    config,
		now:       time.Now,
	}
}

type CreateBookingRequest struct {
	TripID  string
	SeatIDs []string
	Buyer   entity.Buyer
	// ClaimOwner is the identity the seats were soft-claimed with. It defaults to Buyer.UserID.
	ClaimOwner  string
	VoucherCode string
	// PaymentTimeout overrides the configured payment deadline when positive.
	PaymentTimeout time.Duration
}

func (r CreateBookingRequest) claimOwner() string {
	if r.ClaimOwner != "" {
		return r.ClaimOwner
	}
	return r.Buyer.UserID
}

// CreateBooking validates and prices the request, then holds all requested
// seats for a PENDING booking in one transaction. Either every seat is taken
// or none is.
func (e *Engine) CreateBooking(ctx context.Context, req CreateBookingRequest) (entity.Booking, error) {
	if err := validateRequest(req); err != nil {
		return entity.Booking{}, err
	}

	trip, err := e.trips.Get(ctx, req.TripID)
	if err != nil {
		return entity.Booking{}, err
	}
	now := e.now()
	if !trip.IsBookable() || trip.HasDeparted(now) {
		return entity.Booking{}, entity.ErrTripNotBookable
	}
	if len(req.SeatIDs) > trip.SeatCap(e.config.DefaultSeatCap) {
		return entity.Booking{}, entity.ErrTooManySeats
	}

	tripSeats, err := e.trips.SeatsByID(ctx, trip.ID, req.SeatIDs)
	if err != nil {
		return entity.Booking{}, err
	}
	if len(tripSeats) != len(req.SeatIDs) {
		return entity.Booking{}, entity.ErrSeatsInvalid
	}

	owner := req.claimOwner()
	blocked := lo.FilterMap(tripSeats, func(s entity.Seat, _ int) (string, bool) {
		return s.ID, !seats.Bookable(s, owner)
	})
	if len(blocked) > 0 {
		return entity.Booking{}, entity.SeatsNotAvailableError{SeatIDs: blocked}
	}

	var voucher *entity.Voucher
	if req.VoucherCode != "" {
		v, err := e.voucher(ctx, req, trip, now)
		if err != nil {
			return entity.Booking{}, err
		}
		voucher = &v
	}

	price := pricing.Price(trip.BasePrice, len(tripSeats), voucher)

	timeout := e.config.PaymentTimeout
	if req.PaymentTimeout > 0 {
		timeout = req.PaymentTimeout
	}

	b := entity.Booking{
		ID:              uuid.NewString(),
		UserID:          nilIfEmpty(req.Buyer.UserID),
		GuestName:       nilIfEmpty(req.Buyer.GuestName),
		GuestPhone:      nilIfEmpty(req.Buyer.GuestPhone),
		GuestEmail:      nilIfEmpty(req.Buyer.GuestEmail),
		Status:          entity.BookingStatusPending,
		PaymentStatus:   entity.PaymentStatusPending,
		TotalPrice:      price.TotalPrice,
		DiscountAmount:  price.DiscountAmount,
		FinalPrice:      price.FinalPrice,
		QRCodeExpiresAt: now.Add(timeout).UTC(),
	}
	if voucher != nil {
		b.VoucherID = &voucher.ID
	}
	if req.Buyer.IsGuest() {
		b.ClientID = nilIfEmpty(req.ClaimOwner)
	}

	leg := entity.BookingTrip{
		ID:        uuid.NewString(),
		BookingID: b.ID,
		TripID:    trip.ID,
		Price:     price.FinalPrice,
		SeatIDs: lo.Map(tripSeats, func(s entity.Seat, _ int) string {
			return s.ID
		}),
	}

	for attempt := 1; ; attempt++ {
		b.PaymentReference = NewPaymentReference()
		b.QRCode = e.qrCodes.Build(b.PaymentReference, b.FinalPrice)

		err = e.bookings.Create(ctx, bookings.NewBooking{
			Booking:    b,
			Leg:        leg,
			ClaimOwner: owner,
			Voucher:    voucher,
			ChangedBy:  changedBy(req.Buyer),
		})
		if err == nil {
			break
		}
		if db.IsErrorUniqueViolation(err) && attempt < maxReferenceAttempts {
			continue
		}
		return entity.Booking{}, err
	}

	b.Trips = []entity.BookingTrip{leg}
	e.afterCreate(ctx, b, owner, timeout)

	return b, nil
}

func (e *Engine) voucher(ctx context.Context, req CreateBookingRequest, trip entity.Trip, now time.Time) (entity.Voucher, error) {
	code := strings.TrimSpace(req.VoucherCode)
	if req.Buyer.IsGuest() {
		return entity.Voucher{}, entity.VoucherRejectedError{Code: code, Reason: entity.VoucherGuestNotAllowed}
	}

	v, err := e.vouchers.GetByCode(ctx, code)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Voucher{}, entity.VoucherRejectedError{Code: code, Reason: entity.VoucherInvalid}
	}
	if err != nil {
		return entity.Voucher{}, err
	}

	usage, err := e.vouchers.CountUserUsages(ctx, v.ID, req.Buyer.UserID)
	if err != nil {
		return entity.Voucher{}, err
	}

	err = pricing.ValidateVoucher(v, pricing.VoucherContext{
		Buyer:     req.Buyer,
		RouteID:   trip.RouteID,
		Total:     pricing.Quote(trip.BasePrice, len(req.SeatIDs)),
		Now:       now,
		UserUsage: usage,
	})
	if err != nil {
		return entity.Voucher{}, err
	}

	return v, nil
}

// afterCreate runs the side effects of a committed booking. None of them may fail the booking.
func (e *Engine) afterCreate(ctx context.Context, b entity.Booking, owner string, timeout time.Duration) {
	logger := log.FromContext(ctx).WithField("booking_id", b.ID)
	leg := b.Trips[0]

	if owner != "" {
		if err := e.claims.Forget(ctx, owner, leg.TripID, leg.SeatIDs); err != nil {
			logger.WithError(err).Warn("Could not drop soft claims taken over by the booking")
		}
	}

	e.scheduler.ScheduleCancellation(ctx, b.ID, timeout)

	metrics.BookingsCreated.Inc()
	logger.WithField("trip_id", leg.TripID).WithField("seats", len(leg.SeatIDs)).Info("Booking created")
}

// CancelBooking cancels a PENDING or CONFIRMED booking on behalf of actor and
// returns its new state. Only admins may cancel bookings of others or after departure.
func (e *Engine) CancelBooking(ctx context.Context, bookingID string, actor entity.Actor, reason string) (entity.Booking, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, err
	}

	if !actor.IsAdmin() {
		if actor.UserID == "" || lo.FromPtr(b.UserID) != actor.UserID {
			return entity.Booking{}, entity.ErrForbidden
		}
		for _, leg := range b.Trips {
			trip, err := e.trips.Get(ctx, leg.TripID)
			if err != nil {
				return entity.Booking{}, err
			}
			if trip.HasDeparted(e.now()) {
				return entity.Booking{}, entity.ErrTripDeparted
			}
		}
	}

	if b.Status == entity.BookingStatusCancelled {
		return b, nil
	}

	if reason == "" {
		reason = ReasonCancelledByUser
		if actor.IsAdmin() {
			reason = ReasonCancelledByAdmin
		}
	}

	cancelled, err := e.bookings.Cancel(ctx, bookings.Cancellation{
		BookingID:    b.ID,
		FromStatuses: []entity.BookingStatus{entity.BookingStatusPending, entity.BookingStatusConfirmed},
		ChangedBy:    actor.String(),
		Reason:       reason,
		SeatReason:   entity.SeatReasonBookingCancelled,
	})
	if err != nil {
		return entity.Booking{}, err
	}
	if cancelled {
		label := ReasonCancelledByUser
		if actor.IsAdmin() {
			label = ReasonCancelledByAdmin
		}
		metrics.BookingsCancelled.WithLabelValues(label).Inc()
		log.FromContext(ctx).WithField("booking_id", b.ID).WithField("changed_by", actor.String()).Info("Booking cancelled")
	}

	return e.bookings.Get(ctx, b.ID)
}

func (e *Engine) GetBooking(ctx context.Context, bookingID string) (entity.Booking, error) {
	return e.bookings.Get(ctx, bookingID)
}

// NewPaymentReference returns a reference the buyer puts into the bank transfer description.
func NewPaymentReference() string {
	random := uuid.New()

	var sb strings.Builder
	sb.WriteString(referencePrefix)
	// bytes 6 and 8 carry the uuid version and variant
	for _, i := range []int{0, 1, 2, 3, 4, 5, 7, 9, 10, 11} {
		sb.WriteByte(referenceAlphabet[int(random[i])%len(referenceAlphabet)])
	}
	return sb.String()
}

func validateRequest(req CreateBookingRequest) error {
	if req.TripID == "" {
		return entity.ValidationError{Field: "trip_id", Msg: "is required"}
	}
	if len(req.SeatIDs) == 0 {
		return entity.ValidationError{Field: "seat_ids", Msg: "at least one seat is required"}
	}
	if len(lo.Uniq(req.SeatIDs)) != len(req.SeatIDs) {
		return entity.ValidationError{Field: "seat_ids", Msg: "must not contain duplicates"}
	}

	buyer := req.Buyer
	if buyer.IsGuest() {
		if buyer.GuestName == "" {
			return entity.ValidationError{Field: "guest_name", Msg: "is required for guest bookings"}
		}
		if buyer.GuestPhone == "" && buyer.GuestEmail == "" {
			return entity.ValidationError{Field: "guest_phone", Msg: "phone or email is required for guest bookings"}
		}
	} else if buyer.GuestName != "" || buyer.GuestPhone != "" || buyer.GuestEmail != "" {
		return entity.ValidationError{Msg: "guest contact must not be set for a signed in buyer"}
	}

	return nil
}

func changedBy(buyer entity.Buyer) string {
	if buyer.IsGuest() {
		return "guest"
	}
	return buyer.UserID
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
