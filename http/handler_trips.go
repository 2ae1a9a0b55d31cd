package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

type postTripsRequest struct {
	TripID             string              `json:"trip_id"`
	RouteID            string              `json:"route_id"`
	VehicleID          string              `json:"vehicle_id"`
	DepartureTime      time.Time           `json:"departure_time"`
	BasePrice          decimal.Decimal     `json:"base_price"`
	MaxSeatsPerBooking int                 `json:"max_seats_per_booking"`
	Seats              []entity.SeatLayout `json:"seats"`
}

type postTripsResponse struct {
	TripID string `json:"trip_id"`
}

type tripSeatsResponse struct {
	Trip  entity.Trip   `json:"trip"`
	Seats []entity.Seat `json:"seats"`
}

type claimResponse struct {
	SeatID   string    `json:"seat_id"`
	ExpireAt time.Time `json:"expire_at"`
}

func (s Server) PostTrips(c echo.Context) error {
	if !actorFrom(c).IsAdmin() {
		return entity.ErrForbidden
	}

	var request postTripsRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	if request.TripID == "" {
		request.TripID = uuid.NewString()
	}
	if _, err := uuid.Parse(request.TripID); err != nil {
		return entity.ValidationError{Field: "trip_id", Msg: "must be a uuid"}
	}
	if request.RouteID == "" {
		return entity.ValidationError{Field: "route_id", Msg: "is required"}
	}
	if request.DepartureTime.IsZero() {
		return entity.ValidationError{Field: "departure_time", Msg: "is required"}
	}
	if !request.BasePrice.IsPositive() {
		return entity.ValidationError{Field: "base_price", Msg: "must be positive"}
	}
	if len(request.Seats) == 0 {
		return entity.ValidationError{Field: "seats", Msg: "at least one seat is required"}
	}
	numbers := lo.Map(request.Seats, func(l entity.SeatLayout, _ int) string { return l.SeatNumber })
	if len(lo.Uniq(numbers)) != len(numbers) {
		return entity.ValidationError{Field: "seats", Msg: "seat numbers must be unique"}
	}

	trip := entity.Trip{
		ID:                 request.TripID,
		RouteID:            request.RouteID,
		VehicleID:          request.VehicleID,
		DepartureTime:      request.DepartureTime.UTC(),
		BasePrice:          request.BasePrice,
		Status:             entity.TripStatusScheduled,
		MaxSeatsPerBooking: request.MaxSeatsPerBooking,
	}
	if err := s.tripsRepo.Create(c.Request().Context(), trip, request.Seats); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, postTripsResponse{TripID: trip.ID})
}

func (s Server) GetTripSeats(c echo.Context) error {
	ctx := c.Request().Context()

	trip, err := s.tripsRepo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	seats, err := s.tripsRepo.Seats(ctx, trip.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tripSeatsResponse{Trip: trip, Seats: seats})
}

func (s Server) PostSeatClaim(c echo.Context) error {
	owner := claimOwner(c)
	if owner == "" {
		return entity.ValidationError{Field: clientIDHeader, Msg: "guests must identify their client"}
	}

	reservation, err := s.claims.Claim(c.Request().Context(), owner, c.Param("id"), c.Param("seat_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, claimResponse{
		SeatID:   reservation.SeatID,
		ExpireAt: reservation.ExpireAt,
	})
}

func (s Server) DeleteSeatClaim(c echo.Context) error {
	owner := claimOwner(c)
	if owner == "" {
		return entity.ValidationError{Field: clientIDHeader, Msg: "guests must identify their client"}
	}

	if err := s.claims.Release(c.Request().Context(), owner, c.Param("id"), c.Param("seat_id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
