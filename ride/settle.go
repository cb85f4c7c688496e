package ride

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	dbt "ridebook/db/db"
	"ridebook/errs"
	"ridebook/ledger"
	"ridebook/logger"
	"ridebook/money"
	"ridebook/mq/mq"
)

// Complete settles an assigned ride: it is marked dropped, the price moves
// from the customer to the rider and a completion event is appended, all
// in one transaction. Any failure leaves the ride, both balances and the
// event log as they were.
func (s *Service) Complete(ctx context.Context, caller Caller, rideID uuid.UUID) (*Transition, error) {
	var (
		before, after *dbt.Ride
		lock          *dbt.RideLock
		event         *dbt.RideEvent
	)
	err := s.store.Transaction(ctx, func(tx dbt.RideTx) (err error) {
		if lock, err = tx.LockRide(rideID); err != nil {
			return err
		}
		if lock.RiderID == nil || *lock.RiderID != caller.ID {
			return fmt.Errorf("user %d is not the rider of ride %s: %w", caller.ID, rideID, errs.ErrInvalidTransition)
		}
		if lock.Status != dbt.RideStatusAssigned {
			return fmt.Errorf("ride %s is %s: %w", rideID, lock.Status, errs.ErrInvalidTransition)
		}

		// a price that does not decode surfaces as CorruptData; it is
		// never repaired mid-settlement
		if before, err = tx.GetRide(rideID); err != nil {
			return err
		}

		users, err := ledger.LockUsers(tx, before.CustomerID, caller.ID)
		if err != nil {
			return err
		}
		if customer := users[before.CustomerID]; customer.Balance.LessThan(before.Price) {
			return fmt.Errorf("%w: customer %d has %s, ride costs %s", errs.ErrInsufficientFunds,
				customer.ID, money.Format(customer.Balance), money.Format(before.Price))
		}

		if err = tx.SetRideStatus(rideID, dbt.RideStatusAssigned, dbt.RideStatusDropped); err != nil {
			return err
		}
		if err = s.ledger.TransferTx(tx, before.CustomerID, caller.ID, before.Price); err != nil {
			return err
		}
		if event, err = tx.AppendRideEvent(rideID, completedDescription); err != nil {
			return err
		}
		if after, err = tx.GetRide(rideID); err != nil {
			return err
		}
		lock.Status = after.Status
		return nil
	})
	s.record(mq.ActionComplete, err)
	if err != nil {
		s.log.Warning("complete ride rejected",
			logger.Int64("caller", caller.ID),
			logger.Stringer("ride_id", rideID),
			logger.Error(err),
		)
		return nil, err
	}

	s.logChanges("ride completed", rideID, *before, *after)
	return s.committed(mq.ActionComplete, lock, event, money.Format(after.Price)), nil
}
