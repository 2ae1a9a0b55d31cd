package outbox

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"

	"github.com/giaotrandev/booking-app-sub000/tracing"
)

// Topic is the Postgres table backed topic every outbox message is stored in
// before the forwarder moves it to Redis.
const Topic = "events_to_forward"

// NewPublisherForDb returns a publisher that writes messages within tx, so they
// are forwarded only when tx commits.
func NewPublisherForDb(ctx context.Context, tx *sqlx.Tx) (message.Publisher, error) {
	logger := log.NewWatermill(log.FromContext(ctx))

	var publisher message.Publisher
	sqlPublisher, err := sql.NewPublisher(
		tx.Tx,
		sql.PublisherConfig{
			SchemaAdapter: sql.DefaultPostgreSQLSchema{},
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create sql publisher: %w", err)
	}

	publisher = forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: Topic,
	})
	publisher = log.CorrelationPublisherDecorator{Publisher: publisher}
	publisher = tracing.PublisherDecorator{Publisher: publisher}

	return publisher, nil
}

func NewPostgresSubscriber(db *sqlx.DB, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	sub, err := sql.NewSubscriber(db, sql.SubscriberConfig{
		SchemaAdapter:    sql.DefaultPostgreSQLSchema{},
		OffsetsAdapter:   sql.DefaultPostgreSQLOffsetsAdapter{},
		InitializeSchema: true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create postgres subscriber: %w", err)
	}

	return sub, nil
}

// InitializeSchema creates the outbox tables up front, so transactions can
// publish before the forwarder subscribes for the first time.
func InitializeSchema(db *sqlx.DB) error {
	sub, err := sql.NewSubscriber(db, sql.SubscriberConfig{
		SchemaAdapter:  sql.DefaultPostgreSQLSchema{},
		OffsetsAdapter: sql.DefaultPostgreSQLOffsetsAdapter{},
	}, watermill.NopLogger{})
	if err != nil {
		return fmt.Errorf("could not create postgres subscriber: %w", err)
	}
	defer sub.Close()

	if err := sub.SubscribeInitialize(Topic); err != nil {
		return fmt.Errorf("could not initialize outbox schema: %w", err)
	}

	return nil
}

// NewForwarder moves committed outbox messages to the destination publisher.
func NewForwarder(
	db *sqlx.DB,
	publisher message.Publisher,
	logger watermill.LoggerAdapter,
) (*forwarder.Forwarder, error) {
	sub, err := NewPostgresSubscriber(db, logger)
	if err != nil {
		return nil, err
	}

	fwd, err := forwarder.NewForwarder(sub, publisher, logger, forwarder.Config{
		ForwarderTopic: Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create forwarder: %w", err)
	}

	return fwd, nil
}
