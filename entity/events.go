package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Event interface {
	IsInternal() bool
}

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

const (
	SeatReasonClaimed          = "claimed"
	SeatReasonReleased         = "released"
	SeatReasonClaimExpired     = "claim_expired"
	SeatReasonBooked           = "booking_created"
	SeatReasonPaid             = "payment_completed"
	SeatReasonBookingCancelled = "booking_cancelled"
	SeatReasonBookingExpired   = "booking_expired"
)

type SeatStatusChanged_v1 struct {
	Header EventHeader `json:"header"`

	TripID    string     `json:"trip_id"`
	SeatID    string     `json:"seat_id"`
	Status    SeatStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	BookingID string     `json:"booking_id,omitempty"`
}

func (e SeatStatusChanged_v1) IsInternal() bool {
	return false
}

type BookingCreated_v1 struct {
	Header EventHeader `json:"header"`

	BookingID       string          `json:"booking_id"`
	TripID          string          `json:"trip_id"`
	SeatIDs         []string        `json:"seat_ids"`
	UserID          string          `json:"user_id,omitempty"`
	ContactEmail    string          `json:"contact_email,omitempty"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	QRCode          string          `json:"qr_code"`
	QRCodeExpiresAt time.Time       `json:"qr_code_expires_at"`
}

func (e BookingCreated_v1) IsInternal() bool {
	return false
}

type BookingStatusChanged_v1 struct {
	Header EventHeader `json:"header"`

	BookingID     string        `json:"booking_id"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Reason        string        `json:"reason,omitempty"`
}

func (e BookingStatusChanged_v1) IsInternal() bool {
	return false
}

// BookingConfirmed_v1 triggers ticket dispatch once a payment has been reconciled.
type BookingConfirmed_v1 struct {
	Header EventHeader `json:"header"`

	BookingID            string          `json:"booking_id"`
	UserID               string          `json:"user_id,omitempty"`
	ContactEmail         string          `json:"contact_email,omitempty"`
	ContactPhone         string          `json:"contact_phone,omitempty"`
	SeatIDs              []string        `json:"seat_ids"`
	AmountPaid           decimal.Decimal `json:"amount_paid"`
	PaymentTransactionID string          `json:"payment_transaction_id"`
}

func (e BookingConfirmed_v1) IsInternal() bool {
	return true
}
