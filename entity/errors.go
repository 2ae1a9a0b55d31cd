package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrTripNotFound       = errors.New("trip not found")
	ErrTripNotBookable    = errors.New("trip is not bookable")
	ErrTripDeparted       = errors.New("trip has already departed")
	ErrSeatsInvalid       = errors.New("seats do not belong to the trip")
	ErrTooManySeats       = errors.New("too many seats requested")
	ErrSeatUnavailable    = errors.New("seat is not available")
	ErrClaimLimitExceeded = errors.New("seat claim limit exceeded")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrForbidden          = errors.New("forbidden")
	ErrTransactionTimeout = errors.New("transaction timed out")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// SeatsNotAvailableError names every seat that blocked a booking request.
type SeatsNotAvailableError struct {
	SeatIDs []string
}

func (e SeatsNotAvailableError) Error() string {
	return fmt.Sprintf("seats not available: %s", strings.Join(e.SeatIDs, ", "))
}

type VoucherRejectReason string

const (
	VoucherInvalid         VoucherRejectReason = "invalid"
	VoucherExpired         VoucherRejectReason = "expired"
	VoucherLimitReached    VoucherRejectReason = "limit_reached"
	VoucherPerUserLimit    VoucherRejectReason = "per_user_limit"
	VoucherRouteMismatch   VoucherRejectReason = "route_mismatch"
	VoucherMinimumNotMet   VoucherRejectReason = "minimum_not_met"
	VoucherGuestNotAllowed VoucherRejectReason = "guest_not_allowed"
)

type VoucherRejectedError struct {
	Code   string
	Reason VoucherRejectReason
}

func (e VoucherRejectedError) Error() string {
	return fmt.Sprintf("voucher %q rejected: %s", e.Code, e.Reason)
}

type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}
