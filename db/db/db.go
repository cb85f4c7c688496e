package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RideDBWrapper is the storage behind the ride core. Typed reads fail
// with errs.ErrCorruptData when a stored money value does not decode;
// the raw balance path never decodes.
type RideDBWrapper interface {
	// Create
	CreateUser(ctx context.Context, user *User) error
	// Read
	GetUser(ctx context.Context, id int64) (*User, error)
	GetRide(ctx context.Context, id uuid.UUID) (*Ride, error)
	GetRideEvents(ctx context.Context, rideID uuid.UUID) ([]RideEvent, error)
	ListRides(ctx context.Context, filter RideFilter) ([]Ride, error)
	// Raw
	RawBalanceList(ctx context.Context) ([]RawBalance, error)
	RawBalanceWrite(ctx context.Context, values map[int64]string) error
	// Transaction
	Transaction(ctx context.Context, fn func(tx RideTx) error) error
	// Data Loader
	DataLoaderGetUserList(ctx context.Context, ids []int64) (map[int64]*User, error)
}

// RideTx is one unit of work. Everything done through it commits or
// rolls back together, and rows it locks stay locked until then.
type RideTx interface {
	LockUser(id int64) (*User, error)
	SetUserBalance(id int64, balance decimal.Decimal) error
	CreateRide(ride *Ride) error
	LockRide(id uuid.UUID) (*RideLock, error)
	GetRide(id uuid.UUID) (*Ride, error)
	// AssignRide moves a created ride to assigned; fails with
	// errs.ErrInvalidTransition when the ride is no longer created.
	AssignRide(id uuid.UUID, riderID int64) error
	// SetRideStatus is a compare-and-swap on the status column.
	SetRideStatus(id uuid.UUID, from, to RideStatus) error
	// AppendRideEvent stores the next step for the ride.
	AppendRideEvent(rideID uuid.UUID, description string) (*RideEvent, error)
}
