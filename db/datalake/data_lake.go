package datalake

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/giaotrandev/booking-app-sub000/db"
	"github.com/giaotrandev/booking-app-sub000/entity"
)

// DataLake keeps a raw copy of every public event, in publishing order.
type DataLake struct {
	db *sqlx.DB
}

func NewDataLake(db *sqlx.DB) DataLake {
	if db == nil {
		panic("db is nil")
	}

	return DataLake{db: db}
}

func (s DataLake) StoreEvent(
	ctx context.Context,
	dataLakeEvent entity.DataLakeEvent,
) error {
	_, err := s.db.NamedExecContext(
		ctx,
		`
			INSERT INTO
			    events (event_id, published_at, event_name, event_payload)
			VALUES
			    (:event_id, :published_at, :event_name, :event_payload)`,
		dataLakeEvent,
	)
	if db.IsErrorUniqueViolation(err) {
		// handling re-delivery
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not store %s event in data lake: %w", dataLakeEvent.ID, err)
	}

	return nil
}

func (s DataLake) GetEvents(ctx context.Context, eventName string) ([]entity.DataLakeEvent, error) {
	var events []entity.DataLakeEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE $1::text = '' OR event_name = $1
		ORDER BY published_at ASC
	`, eventName)
	if err != nil {
		return nil, fmt.Errorf("could not get events from data lake: %w", err)
	}

	return events, nil
}
