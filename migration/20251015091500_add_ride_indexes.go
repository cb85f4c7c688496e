package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upAddRideIndexes, downAddRideIndexes)
}

// listings filter by customer, by rider and by status
func upAddRideIndexes(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		`CREATE INDEX idx_rides_customer_id ON rides(customer_id);`,
		`CREATE INDEX idx_rides_rider_id ON rides(rider_id);`,
		`CREATE INDEX idx_rides_status ON rides(status);`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func downAddRideIndexes(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		`DROP INDEX IF EXISTS idx_rides_status;`,
		`DROP INDEX IF EXISTS idx_rides_rider_id;`,
		`DROP INDEX IF EXISTS idx_rides_customer_id;`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
