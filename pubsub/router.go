package pubsub

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/giaotrandev/booking-app-sub000/cancellation"
	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/jobs"
	"github.com/giaotrandev/booking-app-sub000/pubsub/bus"
	"github.com/giaotrandev/booking-app-sub000/pubsub/handlers/event"
)

const CancelExpiredBookingHandler = "cancel_expired_booking"

type DataLake interface {
	StoreEvent(ctx context.Context, dataLakeEvent entity.DataLakeEvent) error
}

// SubscriberConstructor returns a subscriber reading in the given consumer group.
type SubscriberConstructor func(consumerGroup string) (message.Subscriber, error)

type RouterConfig struct {
	EventProcessorConfig cqrs.EventProcessorConfig
	JobHandlerConfig     jobs.HandlerConfig
}

func NewWatermillRouter(
	redisPublisher message.Publisher,
	newRedisSubscriber SubscriberConstructor,
	eventHandler event.Handler,
	dataLake DataLake,
	cancellationScheduler *cancellation.Scheduler,
	config RouterConfig,
	watermillLogger watermill.LoggerAdapter,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create router: %w", err)
	}

	useMiddlewares(router, watermillLogger)

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(router, config.EventProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create event processor: %w", err)
	}

	err = eventProcessor.AddHandlers(
		eventHandler.BroadcastSeatStatusChangedHandler(),
		eventHandler.BroadcastBookingStatusChangedHandler(),
		eventHandler.BroadcastBookingCreatedHandler(),
		eventHandler.DispatchTicketHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not add handlers to event processor: %w", err)
	}

	jobsSubscriber, err := newRedisSubscriber(bus.ServiceName + ".jobs")
	if err != nil {
		return nil, fmt.Errorf("could not create jobs subscriber: %w", err)
	}

	err = jobs.AddHandler(
		router,
		CancelExpiredBookingHandler,
		cancellation.JobType,
		jobsSubscriber,
		redisPublisher,
		config.JobHandlerConfig,
		cancellationScheduler.HandleJob,
	)
	if err != nil {
		return nil, fmt.Errorf("could not add job handler: %w", err)
	}

	marshaler := config.EventProcessorConfig.Marshaler

	splitterSubscriber, err := newRedisSubscriber(bus.ServiceName + ".events_splitter")
	if err != nil {
		return nil, fmt.Errorf("could not create splitter subscriber: %w", err)
	}

	router.AddNoPublisherHandler(
		"events_splitter",
		bus.EventsTopic,
		splitterSubscriber,
		func(msg *message.Message) error {
			eventName := marshaler.NameFromMessage(msg)
			if eventName == "" {
				return fmt.Errorf("could not get event name from message")
			}

			return redisPublisher.Publish(bus.EventTopic(eventName), msg)
		},
	)

	dataLakeSubscriber, err := newRedisSubscriber(bus.ServiceName + ".store_to_data_lake")
	if err != nil {
		return nil, fmt.Errorf("could not create data lake subscriber: %w", err)
	}

	router.AddNoPublisherHandler(
		"store_to_data_lake",
		bus.EventsTopic,
		dataLakeSubscriber,
		func(msg *message.Message) error {
			eventName := marshaler.NameFromMessage(msg)
			if eventName == "" {
				return fmt.Errorf("could not get event name from message")
			}

			// only the header is needed, the payload is stored as is
			type Event struct {
				Header entity.EventHeader `json:"header"`
			}

			var event Event
			if err := marshaler.Unmarshal(msg, &event); err != nil {
				return fmt.Errorf("could not unmarshal event: %w", err)
			}

			return dataLake.StoreEvent(
				msg.Context(),
				entity.DataLakeEvent{
					ID:          event.Header.ID,
					PublishedAt: event.Header.PublishedAt,
					Name:        eventName,
					Payload:     msg.Payload,
				},
			)
		},
	)

	return router, nil
}
