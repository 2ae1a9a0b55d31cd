package http

import (
	"errors"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Reason  string   `json:"reason,omitempty"`
	SeatIDs []string `json:"seat_ids,omitempty"`
}

// errorHandler renders domain errors with their status code and leaves the
// rest to next.
func errorHandler(next echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		status, body, ok := mapError(err)
		if !ok {
			log.FromContext(c.Request().Context()).WithError(err).Error("Request failed")
			next(err, c)
			return
		}
		if c.Response().Committed {
			return
		}

		if err := c.JSON(status, body); err != nil {
			log.FromContext(c.Request().Context()).WithError(err).Error("Could not write error response")
		}
	}
}

func mapError(err error) (int, errorResponse, bool) {
	resp := errorResponse{Message: err.Error()}

	var seatsErr entity.SeatsNotAvailableError
	var voucherErr entity.VoucherRejectedError
	var validationErr entity.ValidationError

	switch {
	case errors.As(err, &seatsErr):
		resp.Error = "seats_unavailable"
		resp.SeatIDs = seatsErr.SeatIDs
		return http.StatusConflict, resp, true
	case errors.As(err, &voucherErr):
		resp.Error = "voucher_rejected"
		resp.Reason = string(voucherErr.Reason)
		return http.StatusConflict, resp, true
	case errors.Is(err, entity.ErrSeatUnavailable):
		resp.Error = "seat_unavailable"
		return http.StatusConflict, resp, true
	case errors.Is(err, entity.ErrClaimLimitExceeded):
		resp.Error = "claim_limit_exceeded"
		return http.StatusConflict, resp, true
	case errors.Is(err, entity.ErrTripNotBookable):
		resp.Error = "trip_not_bookable"
		return http.StatusConflict, resp, true
	case errors.Is(err, entity.ErrTripDeparted):
		resp.Error = "trip_departed"
		return http.StatusConflict, resp, true
	case errors.As(err, &validationErr):
		resp.Error = "invalid_request"
		return http.StatusBadRequest, resp, true
	case errors.Is(err, entity.ErrInvalidPayload):
		resp.Error = "invalid_payload"
		return http.StatusBadRequest, resp, true
	case errors.Is(err, entity.ErrTooManySeats):
		resp.Error = "too_many_seats"
		return http.StatusBadRequest, resp, true
	case errors.Is(err, entity.ErrSeatsInvalid):
		resp.Error = "seats_invalid"
		return http.StatusBadRequest, resp, true
	case errors.Is(err, entity.ErrTripNotFound):
		resp.Error = "trip_not_found"
		return http.StatusNotFound, resp, true
	case errors.Is(err, entity.ErrBookingNotFound), errors.Is(err, entity.ErrNotFound):
		resp.Error = "not_found"
		return http.StatusNotFound, resp, true
	case errors.Is(err, entity.ErrForbidden):
		resp.Error = "forbidden"
		return http.StatusForbidden, resp, true
	case errors.Is(err, entity.ErrTransactionTimeout):
		resp.Error = "transaction_timeout"
		return http.StatusServiceUnavailable, resp, true
	}

	return 0, resp, false
}
