package jobs

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

type HandlerConfig struct {
	// DefaultMaxAttempts applies to jobs enqueued without MaxAttempts.
	DefaultMaxAttempts int
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	Logger             watermill.LoggerAdapter
}

// AddHandler subscribes fn to jobs of jobType. A job is attempted up to its
// MaxAttempts, then moved to PoisonTopic.
func AddHandler(
	router *message.Router,
	handlerName string,
	jobType string,
	subscriber message.Subscriber,
	poisonPublisher message.Publisher,
	config HandlerConfig,
	fn message.NoPublishHandlerFunc,
) error {
	if config.DefaultMaxAttempts <= 0 {
		return fmt.Errorf("default max attempts must be positive")
	}

	poisonQueue, err := middleware.PoisonQueue(poisonPublisher, PoisonTopic)
	if err != nil {
		return fmt.Errorf("could not create poison queue middleware: %w", err)
	}

	handler := router.AddNoPublisherHandler(handlerName, Topic(jobType), subscriber, fn)
	handler.AddMiddleware(poisonQueue, attempts(config))

	return nil
}

// attempts retries a job as many times as its max_attempts metadata allows.
func attempts(config HandlerConfig) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		var retriers sync.Map

		retrier := func(maxAttempts int) message.HandlerFunc {
			if r, ok := retriers.Load(maxAttempts); ok {
				return r.(message.HandlerFunc)
			}

			r := middleware.Retry{
				MaxRetries:      maxAttempts - 1,
				InitialInterval: config.InitialInterval,
				MaxInterval:     config.MaxInterval,
				Multiplier:      2,
				Logger:          config.Logger,
			}.Middleware(h)

			actual, _ := retriers.LoadOrStore(maxAttempts, r)
			return actual.(message.HandlerFunc)
		}

		return func(msg *message.Message) ([]*message.Message, error) {
			return retrier(MaxAttempts(msg, config.DefaultMaxAttempts))(msg)
		}
	}
}

func MaxAttempts(msg *message.Message, fallback int) int {
	n, err := strconv.Atoi(msg.Metadata.Get(metadataMaxAttempts))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
