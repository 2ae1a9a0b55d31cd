// Package payment reconciles bank transfer notifications with bookings waiting for their payment.
package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/shopspring/decimal"

	"github.com/giaotrandev/booking-app-sub000/db/bookings"
	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/metrics"
)

const (
	ResultInvalid     = "invalid"
	ResultIgnored     = "ignored"
	ResultNoReference = "no_reference"
	ResultUnmatched   = "unmatched"
	ResultDuplicate   = "duplicate"
	ResultConfirmed   = "confirmed"
)

type Repository interface {
	FindPendingByReference(ctx context.Context, reference string) (entity.Booking, error)
	ConfirmPayment(ctx context.Context, p bookings.Payment) (bool, error)
}

type Config struct {
	// AmountTolerance is the absolute difference still treated as a full payment.
	AmountTolerance decimal.Decimal
	Location        *time.Location
}

type Ack struct {
	Success   bool   `json:"success"`
	Result    string `json:"result"`
	BookingID string `json:"booking_id,omitempty"`
}

type Reconciler struct {
	repo   Repository
	config Config

	now func() time.Time
}

func NewReconciler(repo Repository, config Config) *Reconciler {
	if repo == nil {
		panic("repository must be set")
	}
	if config.AmountTolerance.IsNegative() {
		panic("amount tolerance must not be negative")
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	return &Reconciler{repo: repo, config: config, now: time.Now}
}

// HandlePaymentNotification confirms the booking the transfer pays for. It
// returns an error only for payloads that are not a transfer notification or
// when the store fails. Transfers that match no pending booking are acknowledged.
func (r *Reconciler) HandlePaymentNotification(ctx context.Context, n Notification) (Ack, error) {
	if err := n.Validate(); err != nil {
		metrics.PaymentNotifications.WithLabelValues(ResultInvalid).Inc()
		return Ack{}, err
	}

	logger := log.FromContext(ctx).WithField("transaction_id", n.ID)

	if n.TransferType != TransferIn {
		return r.ack(ResultIgnored, ""), nil
	}

	reference, ok := n.Reference()
	if !ok {
		logger.Debug("Transfer carries no booking reference")
		return r.ack(ResultNoReference, ""), nil
	}
	logger = logger.WithField("payment_reference", reference)

	b, err := r.repo.FindPendingByReference(ctx, reference)
	if errors.Is(err, entity.ErrBookingNotFound) {
		logger.Info("No pending booking for the payment reference")
		return r.ack(ResultUnmatched, ""), nil
	}
	if err != nil {
		return Ack{}, err
	}
	logger = logger.WithField("booking_id", b.ID)

	if diff := n.TransferAmount.Sub(b.FinalPrice).Abs(); diff.GreaterThan(r.config.AmountTolerance) {
		logger.
			WithField("expected", b.FinalPrice.String()).
			WithField("received", n.TransferAmount.String()).
			Warn("Payment amount does not match the booking, confirming anyway")
	}

	confirmed, err := r.repo.ConfirmPayment(ctx, bookings.Payment{
		BookingID:     b.ID,
		TransactionID: strconv.FormatInt(n.ID, 10),
		Gateway:       n.Gateway,
		ReferenceCode: n.ReferenceCode,
		Amount:        n.TransferAmount,
		PaidAt:        n.PaidAt(r.config.Location, r.now()),
	})
	if err != nil {
		return Ack{}, err
	}
	if !confirmed {
		logger.Info("Booking was finalized concurrently")
		return r.ack(ResultDuplicate, b.ID), nil
	}

	metrics.BookingsConfirmed.Inc()
	logger.Info("Payment confirmed")

	return r.ack(ResultConfirmed, b.ID), nil
}

func (r *Reconciler) ack(result, bookingID string) Ack {
	metrics.PaymentNotifications.WithLabelValues(result).Inc()
	return Ack{Success: true, Result: result, BookingID: bookingID}
}

// CheckAPIKey verifies an "Apikey <key>" authorization header. An empty key disables the check.
func CheckAPIKey(header, key string) bool {
	if key == "" {
		return true
	}

	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Apikey") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(value), []byte(key)) == 1
}
