package event

import (
	"context"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/pubsub/bus"
	"github.com/giaotrandev/booking-app-sub000/realtime"
)

// Broadcast handlers never fail: a client that missed a push reloads the seat map.

func (h Handler) BroadcastSeatStatusChangedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		bus.BroadcastHandlerPrefix+"SeatStatusChanged",
		func(ctx context.Context, event *entity.SeatStatusChanged_v1) error {
			h.broadcast(ctx, realtime.TripRoom(event.TripID), realtime.EventSeatStatusChanged, event)
			return nil
		},
	)
}

func (h Handler) BroadcastBookingStatusChangedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		bus.BroadcastHandlerPrefix+"BookingStatusChanged",
		func(ctx context.Context, event *entity.BookingStatusChanged_v1) error {
			h.broadcast(ctx, realtime.BookingRoom(event.BookingID), realtime.EventBookingStatusChanged, event)
			return nil
		},
	)
}

func (h Handler) BroadcastBookingCreatedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		bus.BroadcastHandlerPrefix+"BookingCreated",
		func(ctx context.Context, event *entity.BookingCreated_v1) error {
			h.broadcast(ctx, realtime.BookingRoom(event.BookingID), realtime.EventBookingCreated, event)
			return nil
		},
	)
}

func (h Handler) broadcast(ctx context.Context, room, eventName string, payload any) {
	if err := h.broadcaster.Publish(ctx, room, eventName, payload); err != nil {
		log.FromContext(ctx).WithError(err).WithField("room", room).Warn("Could not broadcast event")
	}
}
