package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInitTables, downInitTables)
}

func upInitTables(ctx context.Context, tx *sql.Tx) error {
	// Money columns are text on purpose, decoding happens in the app
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(150) NOT NULL,
			first_name VARCHAR(150) NOT NULL DEFAULT '',
			middle_name VARCHAR(150) NOT NULL DEFAULT '',
			last_name VARCHAR(150) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL,
			balance VARCHAR(40) DEFAULT '0.00',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT chk_users_role CHECK (role IN ('customer', 'rider', 'staff'))
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE rides (
			id UUID PRIMARY KEY,
			customer_id BIGINT NOT NULL,
			rider_id BIGINT,
			pickup_location VARCHAR(255) NOT NULL,
			destination VARCHAR(255) NOT NULL,
			total_distance VARCHAR(40) NOT NULL,
			price VARCHAR(40) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'created',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_rides_customer
				FOREIGN KEY(customer_id)
				REFERENCES users(id)
				ON DELETE CASCADE,
			CONSTRAINT fk_rides_rider
				FOREIGN KEY(rider_id)
				REFERENCES users(id)
				ON DELETE SET NULL,
			CONSTRAINT chk_rides_status CHECK (status IN ('created', 'assigned', 'dropped'))
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE ride_events (
			id UUID PRIMARY KEY,
			ride_id UUID NOT NULL,
			step_count INTEGER NOT NULL CHECK (step_count > 0),
			description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_ride_events_ride
				FOREIGN KEY(ride_id)
				REFERENCES rides(id)
				ON DELETE CASCADE,
			CONSTRAINT idx_ride_events_ride_step UNIQUE (ride_id, step_count)
		);
	`)
	if err != nil {
		return err
	}

	return nil
}

func downInitTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS ride_events;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS rides;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS users;`)
	if err != nil {
		return err
	}

	return nil
}
