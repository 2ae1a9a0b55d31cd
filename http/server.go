package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/giaotrandev/booking-app-sub000/booking"
	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/payment"
)

type BookingEngine interface {
	CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (entity.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, actor entity.Actor, reason string) (entity.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (entity.Booking, error)
}

type TripsRepository interface {
	Create(ctx context.Context, trip entity.Trip, layout []entity.SeatLayout) error
	Get(ctx context.Context, tripID string) (entity.Trip, error)
	Seats(ctx context.Context, tripID string) ([]entity.Seat, error)
}

type SeatClaimer interface {
	Claim(ctx context.Context, userID, tripID, seatID string) (entity.Reservation, error)
	Release(ctx context.Context, userID, tripID, seatID string) error
}

type PaymentReconciler interface {
	HandlePaymentNotification(ctx context.Context, n payment.Notification) (payment.Ack, error)
}

type Authenticator interface {
	FromAuthorizationHeader(header string) (entity.Actor, error)
}

type RealtimeHub interface {
	Serve(ctx context.Context, conn *websocket.Conn, identity string)
}

type Config struct {
	Addr          string
	ServiceName   string
	WebhookAPIKey string
}

type Server struct {
	config        Config
	e             *echo.Echo
	engine        BookingEngine
	tripsRepo     TripsRepository
	claims        SeatClaimer
	reconciler    PaymentReconciler
	authenticator Authenticator
	hub           RealtimeHub
}

func NewServer(
	config Config,
	engine BookingEngine,
	tripsRepo TripsRepository,
	claims SeatClaimer,
	reconciler PaymentReconciler,
	authenticator Authenticator,
	hub RealtimeHub,
) *Server {
	e := echoHTTP.NewEcho()
	e.HTTPErrorHandler = errorHandler(e.HTTPErrorHandler)

	server := &Server{
		config:        config,
		e:             e,
		engine:        engine,
		tripsRepo:     tripsRepo,
		claims:        claims,
		reconciler:    reconciler,
		authenticator: authenticator,
		hub:           hub,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("", otelecho.Middleware(config.ServiceName), server.authenticate)

	api.POST("/trips", server.PostTrips)
	api.GET("/trips/:id/seats", server.GetTripSeats)
	api.POST("/trips/:id/seats/:seat_id/claim", server.PostSeatClaim)
	api.DELETE("/trips/:id/seats/:seat_id/claim", server.DeleteSeatClaim)

	api.POST("/bookings", server.PostBookings)
	api.GET("/bookings/:id", server.GetBooking)
	api.POST("/bookings/:id/cancel", server.PostCancelBooking)

	api.GET("/ws", server.GetWebsocket)

	e.POST("/webhooks/payment", server.PostPaymentWebhook, otelecho.Middleware(config.ServiceName))

	return server
}

// Handler exposes the routes for in-process tests.
func (s Server) Handler() http.Handler {
	return s.e
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(context.Background())
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.config.Addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.config.Addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
