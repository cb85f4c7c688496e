// Package ride is the ride state machine: created -> assigned -> dropped.
// Every transition runs in one storage transaction and reports guard
// failures as errs kinds instead of changing anything.
package ride

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	dbt "ridebook/db/db"
	"ridebook/errs"
	"ridebook/ledger"
	"ridebook/libs/diff"
	"ridebook/logger"
	"ridebook/metrics"
	"ridebook/money"
	"ridebook/mq/mq"
)

const (
	createdDescription   = "User created a ride."
	acceptedDescription  = "Ride accepted by %s"
	completedDescription = "Ride completed successfully"
)

// Caller is the resolved identity a transition runs for. It is trusted
// as given.
type Caller struct {
	ID   int64
	Role dbt.Role
	Name string
}

func CallerFromUser(user *dbt.User) Caller {
	return Caller{ID: user.ID, Role: user.Role, Name: user.FullName()}
}

type CreateRequest struct {
	PickupLocation string `json:"pickup_location" validate:"required,max=255"`
	Destination    string `json:"destination" validate:"required,max=255"`
	TotalDistance  string `json:"total_distance" validate:"required,numeric"`
	Price          string `json:"price" validate:"required,numeric"`
}

// Transition is the committed result of accept or complete.
type Transition struct {
	RideID     uuid.UUID
	Status     dbt.RideStatus
	CustomerID int64
	RiderID    *int64
	Event      dbt.RideEvent
}

// Detail is a ride with its events in step order.
type Detail struct {
	Ride   dbt.Ride
	Events []dbt.RideEvent
}

type Service struct {
	store    dbt.RideDBWrapper
	ledger   *ledger.Ledger
	queue    mq.RideMessageQueueWrapper
	validate *validator.Validate
	log      logger.ILogger
}

// NewService wires the state machine. queue may be nil, in which case
// nothing is published.
func NewService(
	store dbt.RideDBWrapper,
	ledger *ledger.Ledger,
	queue mq.RideMessageQueueWrapper,
	validate *validator.Validate,
	log logger.ILogger,
) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		queue:    queue,
		validate: validate,
		log:      log,
	}
}

// Create books a new ride for a customer. The balance check here is
// advisory; completion checks again.
func (s *Service) Create(ctx context.Context, caller Caller, req CreateRequest) (*dbt.Ride, error) {
	ride, event, err := s.create(ctx, caller, req)
	s.record(mq.ActionCreate, err)
	if err != nil {
		s.log.Warning("create ride rejected", logger.Int64("caller", caller.ID), logger.Error(err))
		return nil, err
	}

	s.log.Info("ride created",
		logger.Stringer("ride_id", ride.ID),
		logger.Int64("customer_id", ride.CustomerID),
		logger.String("price", money.Format(ride.Price)),
	)
	s.publish(mq.RideMessage{
		RideID:      ride.ID,
		Action:      mq.ActionCreate,
		Status:      ride.Status,
		CustomerID:  ride.CustomerID,
		Price:       money.Format(ride.Price),
		Step:        event.StepCount,
		Description: event.Description,
	})
	return ride, nil
}

func (s *Service) create(ctx context.Context, caller Caller, req CreateRequest) (*dbt.Ride, *dbt.RideEvent, error) {
	if caller.Role != dbt.RoleCustomer {
		return nil, nil, fmt.Errorf("only customers can create rides: %w", errs.ErrInvalidTransition)
	}
	if err := s.validateRequest(req); err != nil {
		return nil, nil, err
	}
	price, err := money.ParseAmount(req.Price)
	if err != nil {
		return nil, nil, fmt.Errorf("price: %w", err)
	}
	distance, err := money.ParseAmount(req.TotalDistance)
	if err != nil {
		return nil, nil, fmt.Errorf("total distance: %w", err)
	}

	ride := &dbt.Ride{
		CustomerID:     caller.ID,
		PickupLocation: req.PickupLocation,
		Destination:    req.Destination,
		TotalDistance:  distance,
		Price:          price,
		Status:         dbt.RideStatusCreated,
	}
	var event *dbt.RideEvent
	err = s.store.Transaction(ctx, func(tx dbt.RideTx) error {
		customer, err := tx.LockUser(caller.ID)
		if err != nil {
			return err
		}
		if price.GreaterThan(customer.Balance) {
			return fmt.Errorf("%w: balance %s is below price %s",
				errs.ErrInsufficientFunds, money.Format(customer.Balance), money.Format(price))
		}
		if err := tx.CreateRide(ride); err != nil {
			return err
		}
		event, err = tx.AppendRideEvent(ride.ID, createdDescription)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return ride, event, nil
}

// validateRequest maps field errors to kinds: a bad price or distance is
// an InvalidAmount, anything else an InvalidRequest.
func (s *Service) validateRequest(req CreateRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	for _, fe := range fieldErrs {
		if fe.Field() == "Price" || fe.Field() == "TotalDistance" {
			return fmt.Errorf("%w: %s failed %q", errs.ErrInvalidAmount, fe.Field(), fe.Tag())
		}
	}
	return fmt.Errorf("%w: %s failed %q", errs.ErrInvalidRequest, fieldErrs[0].Field(), fieldErrs[0].Tag())
}

// Accept assigns a created ride to the calling rider. Two riders racing
// for the same ride cannot both win: the status check and the update
// run under the ride's row lock.
func (s *Service) Accept(ctx context.Context, caller Caller, rideID uuid.UUID) (*Transition, error) {
	var (
		before, after *dbt.RideLock
		event         *dbt.RideEvent
	)
	err := func() error {
		if caller.Role != dbt.RoleRider {
			return fmt.Errorf("only riders can accept rides: %w", errs.ErrInvalidTransition)
		}
		return s.store.Transaction(ctx, func(tx dbt.RideTx) (err error) {
			if before, err = tx.LockRide(rideID); err != nil {
				return err
			}
			if before.Status != dbt.RideStatusCreated {
				return fmt.Errorf("ride %s is no longer available (%s): %w", rideID, before.Status, errs.ErrInvalidTransition)
			}
			if err = tx.AssignRide(rideID, caller.ID); err != nil {
				return err
			}
			if event, err = tx.AppendRideEvent(rideID, fmt.Sprintf(acceptedDescription, caller.Name)); err != nil {
				return err
			}
			after, err = tx.LockRide(rideID)
			return err
		})
	}()
	s.record(mq.ActionAccept, err)
	if err != nil {
		s.log.Warning("accept ride rejected",
			logger.Int64("caller", caller.ID),
			logger.Stringer("ride_id", rideID),
			logger.Error(err),
		)
		return nil, err
	}

	s.logChanges("ride accepted", rideID, *before, *after)
	return s.committed(mq.ActionAccept, after, event, ""), nil
}

// Get returns the ride and its events.
func (s *Service) Get(ctx context.Context, rideID uuid.UUID) (*Detail, error) {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.GetRideEvents(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return &Detail{Ride: *ride, Events: events}, nil
}

// List shows customers their own rides, riders the rides still open for
// acceptance, and staff everything. Newest first.
func (s *Service) List(ctx context.Context, caller Caller) ([]dbt.Ride, error) {
	var filter dbt.RideFilter
	switch caller.Role {
	case dbt.RoleCustomer:
		filter.CustomerID = &caller.ID
	case dbt.RoleRider:
		filter.Status = dbt.RideStatusCreated
	case dbt.RoleStaff:
	default:
		return nil, fmt.Errorf("unknown role %q: %w", caller.Role, errs.ErrInvalidRequest)
	}
	return s.store.ListRides(ctx, filter)
}

func (s *Service) record(action mq.Action, err error) {
	metrics.RideTransitions.WithLabelValues(action.String(), metrics.Outcome(err)).Inc()
}

func (s *Service) logChanges(msg string, rideID uuid.UUID, before, after interface{}) {
	changes, err := diff.Changes(before, after)
	if err != nil {
		s.log.Warning("ride diff failed", logger.Stringer("ride_id", rideID), logger.Error(err))
		changes = nil
	}
	s.log.Info(msg, logger.Stringer("ride_id", rideID), logger.Any("changes", changes))
}

// committed publishes the transition and returns it to the caller.
func (s *Service) committed(action mq.Action, lock *dbt.RideLock, event *dbt.RideEvent, price string) *Transition {
	t := &Transition{
		RideID:     lock.ID,
		Status:     lock.Status,
		CustomerID: lock.CustomerID,
		RiderID:    lock.RiderID,
		Event:      *event,
	}
	s.publish(mq.RideMessage{
		RideID:      t.RideID,
		Action:      action,
		Status:      t.Status,
		CustomerID:  t.CustomerID,
		RiderID:     t.RiderID,
		Price:       price,
		Step:        event.StepCount,
		Description: event.Description,
	})
	return t
}

// publish is best effort. The transition has already committed, so a
// failure is only logged and counted.
func (s *Service) publish(msg mq.RideMessage) {
	if s.queue == nil {
		return
	}
	q := s.queue.GetRideMessageQueue(msg.Action)
	if q == nil {
		return
	}
	if err := q.Publish(msg); err != nil {
		metrics.PublishFailures.WithLabelValues(msg.Action.String()).Inc()
		s.log.Error("publish ride message failed",
			logger.Stringer("ride_id", msg.RideID),
			logger.String("action", msg.Action.String()),
			logger.Error(err),
		)
	}
}
