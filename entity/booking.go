package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type Booking struct {
	ID             string          `json:"booking_id" db:"booking_id"`
	UserID         *string         `json:"user_id,omitempty" db:"user_id"`
	GuestName      *string         `json:"guest_name,omitempty" db:"guest_name"`
	GuestPhone     *string         `json:"guest_phone,omitempty" db:"guest_phone"`
	GuestEmail     *string         `json:"guest_email,omitempty" db:"guest_email"`
	// ClientID is the client a guest booked from. Only that client may read the booking.
	ClientID       *string         `json:"-" db:"client_id"`
	Status         BookingStatus   `json:"status" db:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status" db:"payment_status"`
	TotalPrice     decimal.Decimal `json:"total_price" db:"total_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price" db:"final_price"`
	VoucherID      *string         `json:"voucher_id,omitempty" db:"voucher_id"`

	PaymentReference     string     `json:"payment_reference" db:"payment_reference"`
	QRCode               string     `json:"qr_code" db:"qr_code"`
	QRCodeExpiresAt      time.Time  `json:"qr_code_expires_at" db:"qr_code_expires_at"`
	PaidAt               *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	PaymentTransactionID *string    `json:"payment_transaction_id,omitempty" db:"payment_transaction_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Trips   []BookingTrip    `json:"trips,omitempty" db:"-"`
	History []BookingHistory `json:"history,omitempty" db:"-"`
}

// BookingTrip binds a booking to one trip leg and the seats claimed on it.
type BookingTrip struct {
	ID          string          `json:"booking_trip_id" db:"booking_trip_id"`
	BookingID   string          `json:"booking_id" db:"booking_id"`
	TripID      string          `json:"trip_id" db:"trip_id"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	SeatIDs     []string        `json:"seat_ids" db:"-"`
}

type BookingHistory struct {
	ID            string          `json:"id" db:"history_id"`
	BookingID     string          `json:"booking_id" db:"booking_id"`
	ChangedFields json.RawMessage `json:"changed_fields" db:"changed_fields"`
	ChangedBy     string          `json:"changed_by" db:"changed_by"`
	ChangeReason  string          `json:"change_reason" db:"change_reason"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Buyer identifies who is paying. Either UserID or the guest contact is set, never both.
type Buyer struct {
	UserID     string `json:"user_id,omitempty"`
	GuestName  string `json:"guest_name,omitempty"`
	GuestPhone string `json:"guest_phone,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
}

func (b Buyer) IsGuest() bool {
	return b.UserID == ""
}

const (
	ActorSystem = "system"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is whoever triggers a state change on a booking.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) String() string {
	if a.UserID == "" {
		return ActorSystem
	}
	return a.UserID
}
