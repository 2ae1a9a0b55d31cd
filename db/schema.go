package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/giaotrandev/booking-app-sub000/pubsub/outbox"
)

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trips (
			trip_id UUID PRIMARY KEY,
			route_id VARCHAR(255) NOT NULL,
			vehicle_id VARCHAR(255) NOT NULL DEFAULT '',
			departure_time TIMESTAMPTZ NOT NULL,
			base_price NUMERIC(14, 2) NOT NULL,
			status VARCHAR(16) NOT NULL,
			max_seats_per_booking INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS seats (
			seat_id UUID PRIMARY KEY,
			trip_id UUID NOT NULL REFERENCES trips (trip_id),
			seat_number VARCHAR(16) NOT NULL,
			seat_type VARCHAR(32) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE',
			booking_trip_id UUID,
			claim_id UUID,
			claimed_by VARCHAR(255),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (trip_id, seat_number)
		);

		CREATE TABLE IF NOT EXISTS vouchers (
			voucher_id UUID PRIMARY KEY,
			code VARCHAR(64) NOT NULL UNIQUE,
			discount_type VARCHAR(16) NOT NULL,
			discount_value NUMERIC(14, 2) NOT NULL,
			max_discount_amount NUMERIC(14, 2),
			min_order_value NUMERIC(14, 2),
			usage_limit INT,
			used_count INT NOT NULL DEFAULT 0,
			per_user_limit INT,
			route_ids TEXT[] NOT NULL DEFAULT '{}',
			valid_from TIMESTAMPTZ NOT NULL,
			valid_until TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			CHECK (usage_limit IS NULL OR used_count <= usage_limit)
		);

		CREATE TABLE IF NOT EXISTS bookings (
			booking_id UUID PRIMARY KEY,
			user_id VARCHAR(255),
			guest_name VARCHAR(255),
			guest_phone VARCHAR(32),
			guest_email VARCHAR(255),
			client_id VARCHAR(255),
			status VARCHAR(16) NOT NULL,
			payment_status VARCHAR(16) NOT NULL,
			total_price NUMERIC(14, 2) NOT NULL,
			discount_amount NUMERIC(14, 2) NOT NULL DEFAULT 0,
			final_price NUMERIC(14, 2) NOT NULL,
			voucher_id UUID REFERENCES vouchers (voucher_id),
			payment_reference VARCHAR(32) NOT NULL UNIQUE,
			qr_code TEXT NOT NULL DEFAULT '',
			qr_code_expires_at TIMESTAMPTZ NOT NULL,
			paid_at TIMESTAMPTZ,
			payment_transaction_id VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (discount_amount >= 0),
			CHECK (final_price = total_price - discount_amount)
		);

		CREATE INDEX IF NOT EXISTS bookings_pending_expiry_idx
			ON bookings (qr_code_expires_at) WHERE status = 'PENDING' AND payment_status = 'PENDING';

		CREATE TABLE IF NOT EXISTS booking_trips (
			booking_trip_id UUID PRIMARY KEY,
			booking_id UUID NOT NULL REFERENCES bookings (booking_id),
			trip_id UUID NOT NULL REFERENCES trips (trip_id),
			price NUMERIC(14, 2) NOT NULL,
			cancelled_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS booking_seats (
			booking_trip_id UUID NOT NULL REFERENCES booking_trips (booking_trip_id),
			seat_id UUID NOT NULL REFERENCES seats (seat_id),
			PRIMARY KEY (booking_trip_id, seat_id)
		);

		CREATE TABLE IF NOT EXISTS booking_history (
			history_id UUID PRIMARY KEY,
			booking_id UUID NOT NULL REFERENCES bookings (booking_id),
			changed_fields JSONB NOT NULL,
			changed_by VARCHAR(255) NOT NULL,
			change_reason VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS voucher_usages (
			usage_id UUID PRIMARY KEY,
			voucher_id UUID NOT NULL REFERENCES vouchers (voucher_id),
			booking_id UUID NOT NULL REFERENCES bookings (booking_id),
			user_id VARCHAR(255) NOT NULL,
			discount_amount NUMERIC(14, 2) NOT NULL,
			used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (voucher_id, booking_id)
		);

		CREATE TABLE IF NOT EXISTS events (
			event_id UUID PRIMARY KEY,
			published_at TIMESTAMPTZ NOT NULL,
			event_name VARCHAR(255) NOT NULL,
			event_payload JSONB NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}

	return outbox.InitializeSchema(db)
}
