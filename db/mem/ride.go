package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "ridebook/db/db"
	"ridebook/errs"
	"ridebook/money"
)

// Money columns are kept as text, exactly like the sql store, so a
// corrupted value is representable and the typed path has to decode.
type userRow struct {
	user    dbt.User
	balance *string
}

type rideRow struct {
	ride     dbt.Ride
	price    string
	distance string
	seq      int64
}

// InMemoryRideDBWrapper is an in-memory implementation of dbt.RideDBWrapper.
// A transaction holds the write lock for its whole duration, so
// transactions are serializable.
type InMemoryRideDBWrapper struct {
	users  map[int64]*userRow
	rides  map[uuid.UUID]*rideRow
	events map[uuid.UUID][]dbt.RideEvent

	nextUserID int64
	nextSeq    int64

	mu sync.RWMutex
}

var _ dbt.RideDBWrapper = (*InMemoryRideDBWrapper)(nil)

// NewInMemoryRideDBWrapper creates and returns a new instance of InMemoryRideDBWrapper.
func NewInMemoryRideDBWrapper() *InMemoryRideDBWrapper {
	return &InMemoryRideDBWrapper{
		users:  make(map[int64]*userRow),
		rides:  make(map[uuid.UUID]*rideRow),
		events: make(map[uuid.UUID][]dbt.RideEvent),
	}
}

// CreateUser stores a new user. A zero ID is replaced by the next free one.
func (db *InMemoryRideDBWrapper) CreateUser(ctx context.Context, user *dbt.User) error {
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role %q", user.Role)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	if user.ID == 0 {
		user.ID = db.nextUserID + 1
	}
	if _, exists := db.users[user.ID]; exists {
		return fmt.Errorf("user with ID %d already exists", user.ID)
	}
	if user.ID > db.nextUserID {
		db.nextUserID = user.ID
	}

	balance := money.Format(user.Balance)
	db.users[user.ID] = &userRow{user: *user, balance: &balance}
	return nil
}

// GetUser is the typed read of a user.
func (db *InMemoryRideDBWrapper) GetUser(ctx context.Context, id int64) (*dbt.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.getUser(id)
}

func (db *InMemoryRideDBWrapper) getUser(id int64) (*dbt.User, error) {
	row, exists := db.users[id]
	if !exists {
		return nil, fmt.Errorf("user with ID %d %w", id, errs.ErrNotFound)
	}
	return decodeUser(row)
}

func decodeUser(row *userRow) (*dbt.User, error) {
	balance, err := money.Decode(row.balance)
	if err != nil {
		return nil, fmt.Errorf("balance of user %d: %v: %w", row.user.ID, err, errs.ErrCorruptData)
	}
	user := row.user
	user.Balance = balance
	return &user, nil
}

// GetRide is the typed read of a ride.
func (db *InMemoryRideDBWrapper) GetRide(ctx context.Context, id uuid.UUID) (*dbt.Ride, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.getRide(id)
}

func (db *InMemoryRideDBWrapper) getRide(id uuid.UUID) (*dbt.Ride, error) {
	row, exists := db.rides[id]
	if !exists {
		return nil, fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
	}
	return decodeRide(row)
}

func decodeRide(row *rideRow) (*dbt.Ride, error) {
	price, err := money.Decode(&row.price)
	if err != nil {
		return nil, fmt.Errorf("price of ride %s: %v: %w", row.ride.ID, err, errs.ErrCorruptData)
	}
	distance, err := money.Decode(&row.distance)
	if err != nil {
		return nil, fmt.Errorf("distance of ride %s: %v: %w", row.ride.ID, err, errs.ErrCorruptData)
	}
	ride := row.ride
	ride.Price = price
	ride.TotalDistance = distance
	if row.ride.RiderID != nil {
		riderID := *row.ride.RiderID
		ride.RiderID = &riderID
	}
	return &ride, nil
}

// GetRideEvents returns the ride's events ordered by step.
func (db *InMemoryRideDBWrapper) GetRideEvents(ctx context.Context, rideID uuid.UUID) ([]dbt.RideEvent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, exists := db.rides[rideID]; !exists {
		return nil, fmt.Errorf("ride with ID %s %w", rideID, errs.ErrNotFound)
	}
	// Return a copy of the slice to prevent external modification
	events := make([]dbt.RideEvent, len(db.events[rideID]))
	copy(events, db.events[rideID])
	sort.Slice(events, func(i, j int) bool { return events[i].StepCount < events[j].StepCount })
	return events, nil
}

// ListRides returns matching rides, newest first.
func (db *InMemoryRideDBWrapper) ListRides(ctx context.Context, filter dbt.RideFilter) ([]dbt.Ride, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows := make([]*rideRow, 0, len(db.rides))
	for _, row := range db.rides {
		if filter.CustomerID != nil && row.ride.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.RiderID != nil && (row.ride.RiderID == nil || *row.ride.RiderID != *filter.RiderID) {
			continue
		}
		if filter.Status != "" && row.ride.Status != filter.Status {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	rides := make([]dbt.Ride, 0, len(rows))
	for _, row := range rows {
		ride, err := decodeRide(row)
		if err != nil {
			return nil, err
		}
		rides = append(rides, *ride)
	}
	return rides, nil
}

// RawBalanceList reads every stored balance without decoding it.
func (db *InMemoryRideDBWrapper) RawBalanceList(ctx context.Context) ([]dbt.RawBalance, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	list := make([]dbt.RawBalance, 0, len(db.users))
	for id, row := range db.users {
		raw := dbt.RawBalance{UserID: id}
		if row.balance != nil {
			value := *row.balance
			raw.Value = &value
		}
		list = append(list, raw)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list, nil
}

// RawBalanceWrite stores the given text as is. All ids must exist or
// nothing is written.
func (db *InMemoryRideDBWrapper) RawBalanceWrite(ctx context.Context, values map[int64]string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id := range values {
		if _, exists := db.users[id]; !exists {
			return fmt.Errorf("user with ID %d %w", id, errs.ErrNotFound)
		}
	}
	for id, value := range values {
		v := value
		db.users[id].balance = &v
	}
	return nil
}

// SetRawBalanceNull stores NULL as the user's balance.
func (db *InMemoryRideDBWrapper) SetRawBalanceNull(id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	row, exists := db.users[id]
	if !exists {
		return fmt.Errorf("user with ID %d %w", id, errs.ErrNotFound)
	}
	row.balance = nil
	return nil
}

// SetRawRidePrice overwrites the stored price text of a ride.
func (db *InMemoryRideDBWrapper) SetRawRidePrice(id uuid.UUID, price string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	row, exists := db.rides[id]
	if !exists {
		return fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
	}
	row.price = price
	return nil
}

// DataLoaderGetUserList batches user reads. Users whose balance does not
// decode are left out and resolve as missing.
func (db *InMemoryRideDBWrapper) DataLoaderGetUserList(ctx context.Context, ids []int64) (map[int64]*dbt.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[int64]*dbt.User, len(ids))
	for _, id := range ids {
		row, exists := db.users[id]
		if !exists {
			continue
		}
		user, err := decodeUser(row)
		if err != nil {
			continue
		}
		result[id] = user
	}
	return result, nil
}

// Transaction runs fn under the write lock and restores the previous
// state if fn fails or panics.
func (db *InMemoryRideDBWrapper) Transaction(ctx context.Context, fn func(tx dbt.RideTx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.snapshot()
	defer func() {
		if r := recover(); r != nil {
			db.restore(snap)
			panic(r)
		}
	}()

	if err = fn(&memTx{db: db}); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	users      map[int64]userRow
	rides      map[uuid.UUID]rideRow
	events     map[uuid.UUID][]dbt.RideEvent
	nextUserID int64
	nextSeq    int64
}

func (db *InMemoryRideDBWrapper) snapshot() snapshot {
	s := snapshot{
		users:      make(map[int64]userRow, len(db.users)),
		rides:      make(map[uuid.UUID]rideRow, len(db.rides)),
		events:     make(map[uuid.UUID][]dbt.RideEvent, len(db.events)),
		nextUserID: db.nextUserID,
		nextSeq:    db.nextSeq,
	}
	for id, row := range db.users {
		s.users[id] = *row
	}
	for id, row := range db.rides {
		s.rides[id] = *row
	}
	for id, events := range db.events {
		s.events[id] = append([]dbt.RideEvent(nil), events...)
	}
	return s
}

// restore puts the snapshot back. Row values were copied by value and
// every write replaces pointers instead of mutating through them, so
// the copies are independent of later changes.
func (db *InMemoryRideDBWrapper) restore(s snapshot) {
	db.users = make(map[int64]*userRow, len(s.users))
	for id, row := range s.users {
		r := row
		db.users[id] = &r
	}
	db.rides = make(map[uuid.UUID]*rideRow, len(s.rides))
	for id, row := range s.rides {
		r := row
		db.rides[id] = &r
	}
	db.events = s.events
	db.nextUserID = s.nextUserID
	db.nextSeq = s.nextSeq
}

// memTx runs with the wrapper's write lock already held.
type memTx struct {
	db *InMemoryRideDBWrapper
}

func (tx *memTx) LockUser(id int64) (*dbt.User, error) {
	return tx.db.getUser(id)
}

func (tx *memTx) SetUserBalance(id int64, balance decimal.Decimal) error {
	row, exists := tx.db.users[id]
	if !exists {
		return fmt.Errorf("user with ID %d %w", id, errs.ErrNotFound)
	}
	value := money.Format(balance)
	row.balance = &value
	return nil
}

func (tx *memTx) CreateRide(ride *dbt.Ride) error {
	if ride.ID == uuid.Nil {
		ride.ID = uuid.New()
	}
	if _, exists := tx.db.rides[ride.ID]; exists {
		return fmt.Errorf("ride with ID %s already exists", ride.ID)
	}
	if _, exists := tx.db.users[ride.CustomerID]; !exists {
		return fmt.Errorf("customer with ID %d %w", ride.CustomerID, errs.ErrNotFound)
	}
	if ride.Status == "" {
		ride.Status = dbt.RideStatusCreated
	}
	now := time.Now()
	ride.CreatedAt, ride.UpdatedAt = now, now

	tx.db.nextSeq++
	row := &rideRow{
		ride:     *ride,
		price:    money.Format(ride.Price),
		distance: money.Format(ride.TotalDistance),
		seq:      tx.db.nextSeq,
	}
	if ride.RiderID != nil {
		riderID := *ride.RiderID
		row.ride.RiderID = &riderID
	}
	tx.db.rides[ride.ID] = row
	return nil
}

func (tx *memTx) LockRide(id uuid.UUID) (*dbt.RideLock, error) {
	row, exists := tx.db.rides[id]
	if !exists {
		return nil, fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
	}
	lock := &dbt.RideLock{
		ID:         row.ride.ID,
		CustomerID: row.ride.CustomerID,
		Status:     row.ride.Status,
	}
	if row.ride.RiderID != nil {
		riderID := *row.ride.RiderID
		lock.RiderID = &riderID
	}
	return lock, nil
}

func (tx *memTx) GetRide(id uuid.UUID) (*dbt.Ride, error) {
	return tx.db.getRide(id)
}

func (tx *memTx) AssignRide(id uuid.UUID, riderID int64) error {
	row, exists := tx.db.rides[id]
	if !exists {
		return fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
	}
	if row.ride.Status != dbt.RideStatusCreated {
		return fmt.Errorf("ride %s is %s: %w", id, row.ride.Status, errs.ErrInvalidTransition)
	}
	updated := *row
	rider := riderID
	updated.ride.RiderID = &rider
	updated.ride.Status = dbt.RideStatusAssigned
	updated.ride.UpdatedAt = time.Now()
	tx.db.rides[id] = &updated
	return nil
}

func (tx *memTx) SetRideStatus(id uuid.UUID, from, to dbt.RideStatus) error {
	row, exists := tx.db.rides[id]
	if !exists {
		return fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
	}
	if row.ride.Status != from {
		return fmt.Errorf("ride %s is %s, not %s: %w", id, row.ride.Status, from, errs.ErrInvalidTransition)
	}
	updated := *row
	updated.ride.Status = to
	updated.ride.UpdatedAt = time.Now()
	tx.db.rides[id] = &updated
	return nil
}

func (tx *memTx) AppendRideEvent(rideID uuid.UUID, description string) (*dbt.RideEvent, error) {
	if _, exists := tx.db.rides[rideID]; !exists {
		return nil, fmt.Errorf("ride with ID %s %w", rideID, errs.ErrNotFound)
	}
	step := 0
	for _, e := range tx.db.events[rideID] {
		if e.StepCount > step {
			step = e.StepCount
		}
	}
	event := dbt.RideEvent{
		ID:          uuid.New(),
		RideID:      rideID,
		StepCount:   step + 1,
		Description: description,
		CreatedAt:   time.Now(),
	}
	tx.db.events[rideID] = append(tx.db.events[rideID], event)
	return &event, nil
}
