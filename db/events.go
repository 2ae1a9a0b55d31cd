package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/pubsub/bus"
	"github.com/giaotrandev/booking-app-sub000/pubsub/outbox"
)

// PublishInTx stores events in the outbox of tx. They leave the database only
// if tx commits.
func PublishInTx(ctx context.Context, tx *sqlx.Tx, events ...entity.Event) error {
	outboxPublisher, err := outbox.NewPublisherForDb(ctx, tx)
	if err != nil {
		return fmt.Errorf("could not create outbox publisher: %w", err)
	}

	eventBus, err := bus.NewEventBus(outboxPublisher)
	if err != nil {
		return fmt.Errorf("could not create event bus: %w", err)
	}

	for _, event := range events {
		if err := eventBus.Publish(ctx, event); err != nil {
			return fmt.Errorf("could not publish %T: %w", event, err)
		}
	}

	return nil
}
