package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/giaotrandev/booking-app-sub000/booking"
	"github.com/giaotrandev/booking-app-sub000/entity"
)

type postBookingsRequest struct {
	TripID      string   `json:"trip_id"`
	SeatIDs     []string `json:"seat_ids"`
	VoucherCode string   `json:"voucher_code"`
	GuestName   string   `json:"guest_name"`
	GuestPhone  string   `json:"guest_phone"`
	GuestEmail  string   `json:"guest_email"`
}

type postCancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (s Server) PostBookings(c echo.Context) error {
	var request postBookingsRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	actor := actorFrom(c)

	b, err := s.engine.CreateBooking(c.Request().Context(), booking.CreateBookingRequest{
		TripID:  request.TripID,
		SeatIDs: request.SeatIDs,
		Buyer: entity.Buyer{
			UserID:     actor.UserID,
			GuestName:  request.GuestName,
			GuestPhone: request.GuestPhone,
			GuestEmail: request.GuestEmail,
		},
		ClaimOwner:  claimOwner(c),
		VoucherCode: request.VoucherCode,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, b)
}

func (s Server) GetBooking(c echo.Context) error {
	b, err := s.engine.GetBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	if !canRead(c, b) {
		return entity.ErrForbidden
	}

	return c.JSON(http.StatusOK, b)
}

// canRead lets admins read every booking. Other callers read their own user
// bookings, or guest bookings made from the same client.
func canRead(c echo.Context, b entity.Booking) bool {
	actor := actorFrom(c)
	if actor.IsAdmin() {
		return true
	}
	if b.UserID != nil {
		return *b.UserID == actor.UserID
	}
	return b.ClientID != nil && *b.ClientID == claimOwner(c)
}

func (s Server) PostCancelBooking(c echo.Context) error {
	var request postCancelBookingRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	actor := actorFrom(c)
	if actor.UserID == "" {
		return entity.ErrForbidden
	}

	reason := request.Reason
	if reason == "" {
		reason = booking.ReasonCancelledByUser
		if actor.IsAdmin() {
			reason = booking.ReasonCancelledByAdmin
		}
	}

	b, err := s.engine.CancelBooking(c.Request().Context(), c.Param("id"), actor, reason)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, b)
}
