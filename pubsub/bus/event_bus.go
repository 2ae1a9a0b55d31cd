package bus

import (
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

const (
	ServiceName = "svc-booking"

	// EventsTopic receives every public event. The splitter forwards it to a
	// per-event topic and the data lake archives it.
	EventsTopic = "events"

	// BroadcastHandlerPrefix marks handlers that every instance must run for
	// every event, like pushing seat changes to local websocket clients.
	BroadcastHandlerPrefix = "broadcast."
)

var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

func NewEventBus(pub message.Publisher) (*cqrs.EventBus, error) {
	return cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			event, ok := params.Event.(entity.Event)
			if !ok {
				return "", fmt.Errorf("invalid event type: %T doesn't implement entity.Event", params.Event)
			}

			if event.IsInternal() {
				return InternalEventTopic(params.EventName), nil
			}
			return EventsTopic, nil
		},
		Marshaler: Marshaler,
	})
}

func EventTopic(eventName string) string {
	return "events." + eventName
}

func InternalEventTopic(eventName string) string {
	return "internal-events." + ServiceName + "." + eventName
}

// NewEventProcessorConfig subscribes every handler with its own consumer group.
// Broadcast handlers get a group per instance and start from new messages only.
func NewEventProcessorConfig(
	redisClient *redis.Client,
	instanceGroups *InstanceGroups,
	watermillLogger watermill.LoggerAdapter,
) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return subscribeTopic(params.EventName, params.EventHandler), nil
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			config := redisstream.SubscriberConfig{
				Client:        redisClient,
				ConsumerGroup: ServiceName + "." + params.HandlerName,
			}
			if strings.HasPrefix(params.HandlerName, BroadcastHandlerPrefix) {
				topic := subscribeTopic(Marshaler.Name(params.EventHandler.NewEvent()), params.EventHandler)
				config.ConsumerGroup = instanceGroups.Group(topic, params.HandlerName)
				config.OldestId = "$"
			}

			return redisstream.NewSubscriber(config, watermillLogger)
		},
		Marshaler: Marshaler,
		Logger:    watermillLogger,
	}
}

func subscribeTopic(eventName string, handler cqrs.EventHandler) string {
	event, ok := handler.NewEvent().(entity.Event)
	if ok && event.IsInternal() {
		return InternalEventTopic(eventName)
	}
	return EventTopic(eventName)
}
