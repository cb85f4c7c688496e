package pg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "ridebook/db/db"
	"ridebook/errs"
	"ridebook/money"
)

// GORMRideDBWrapper is a GORM-based implementation of dbt.RideDBWrapper.
// It runs on PostgreSQL and on SQLite.
type GORMRideDBWrapper struct {
	db *gorm.DB
}

var _ dbt.RideDBWrapper = (*GORMRideDBWrapper)(nil)

// NewGORMRideDBWrapper creates and returns a new instance of GORMRideDBWrapper.
func NewGORMRideDBWrapper(db *gorm.DB) *GORMRideDBWrapper {
	return &GORMRideDBWrapper{
		db: db,
	}
}

func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "violates foreign key constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed")
}

func toUser(m *UserModel) (*dbt.User, error) {
	balance, err := money.Decode(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("balance of user %d: %v: %w", m.ID, err, errs.ErrCorruptData)
	}
	return &dbt.User{
		ID:         m.ID,
		Username:   m.Username,
		FirstName:  m.FirstName,
		MiddleName: m.MiddleName,
		LastName:   m.LastName,
		Role:       dbt.Role(m.Role),
		Balance:    balance,
	}, nil
}

func toRide(m *RideModel) (*dbt.Ride, error) {
	price, err := money.Decode(&m.Price)
	if err != nil {
		return nil, fmt.Errorf("price of ride %s: %v: %w", m.ID, err, errs.ErrCorruptData)
	}
	distance, err := money.Decode(&m.TotalDistance)
	if err != nil {
		return nil, fmt.Errorf("distance of ride %s: %v: %w", m.ID, err, errs.ErrCorruptData)
	}
	return &dbt.Ride{
		ID:             m.ID,
		CustomerID:     m.CustomerID,
		RiderID:        m.RiderID,
		PickupLocation: m.PickupLocation,
		Destination:    m.Destination,
		TotalDistance:  distance,
		Price:          price,
		Status:         dbt.RideStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func getUser(db *gorm.DB, id int64) (*dbt.User, error) {
	var m UserModel
	result := db.First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with ID %d %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, result.Error)
	}
	return toUser(&m)
}

func getRide(db *gorm.DB, id uuid.UUID) (*dbt.Ride, error) {
	var m RideModel
	result := db.First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get ride %s: %w", id, result.Error)
	}
	return toRide(&m)
}

// CreateUser stores a new user. A zero ID is assigned by the database.
func (pgdb *GORMRideDBWrapper) CreateUser(ctx context.Context, user *dbt.User) error {
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role %q", user.Role)
	}
	balance := money.Format(user.Balance)
	m := UserModel{
		ID:         user.ID,
		Username:   user.Username,
		FirstName:  user.FirstName,
		MiddleName: user.MiddleName,
		LastName:   user.LastName,
		Role:       string(user.Role),
		Balance:    &balance,
	}
	result := pgdb.db.WithContext(ctx).Create(&m)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return fmt.Errorf("user with ID %d already exists: %w", user.ID, result.Error)
		}
		return fmt.Errorf("failed to create user: %w", result.Error)
	}
	user.ID = m.ID
	return nil
}

// GetUser is the typed read of a user.
func (pgdb *GORMRideDBWrapper) GetUser(ctx context.Context, id int64) (*dbt.User, error) {
	return getUser(pgdb.db.WithContext(ctx), id)
}

// GetRide is the typed read of a ride.
func (pgdb *GORMRideDBWrapper) GetRide(ctx context.Context, id uuid.UUID) (*dbt.Ride, error) {
	return getRide(pgdb.db.WithContext(ctx), id)
}

// GetRideEvents returns the ride's events ordered by step.
func (pgdb *GORMRideDBWrapper) GetRideEvents(ctx context.Context, rideID uuid.UUID) ([]dbt.RideEvent, error) {
	db := pgdb.db.WithContext(ctx)

	var count int64
	if err := db.Model(&RideModel{}).Where("id = ?", rideID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check ride %s: %w", rideID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("ride with ID %s %w", rideID, errs.ErrNotFound)
	}

	var models []RideEventModel
	result := db.Where("ride_id = ?", rideID).Order("step_count ASC").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get events for ride %s: %w", rideID, result.Error)
	}

	events := make([]dbt.RideEvent, 0, len(models))
	for _, m := range models {
		events = append(events, dbt.RideEvent{
			ID:          m.ID,
			RideID:      m.RideID,
			StepCount:   m.StepCount,
			Description: m.Description,
			CreatedAt:   m.CreatedAt,
		})
	}
	return events, nil
}

// ListRides returns matching rides, newest first.
func (pgdb *GORMRideDBWrapper) ListRides(ctx context.Context, filter dbt.RideFilter) ([]dbt.Ride, error) {
	query := pgdb.db.WithContext(ctx).Model(&RideModel{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.RiderID != nil {
		query = query.Where("rider_id = ?", *filter.RiderID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var models []RideModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}

	rides := make([]dbt.Ride, 0, len(models))
	for i := range models {
		ride, err := toRide(&models[i])
		if err != nil {
			return nil, err
		}
		rides = append(rides, *ride)
	}
	return rides, nil
}

type rawBalanceRow struct {
	ID      int64
	Balance *string
}

// RawBalanceList reads every stored balance without decoding it.
func (pgdb *GORMRideDBWrapper) RawBalanceList(ctx context.Context) ([]dbt.RawBalance, error) {
	var rows []rawBalanceRow
	result := pgdb.db.WithContext(ctx).Model(&UserModel{}).Select("id", "balance").Order("id ASC").Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to read raw balances: %w", result.Error)
	}

	list := make([]dbt.RawBalance, 0, len(rows))
	for _, row := range rows {
		list = append(list, dbt.RawBalance{UserID: row.ID, Value: row.Balance})
	}
	return list, nil
}

// RawBalanceWrite stores the given text as is, in one transaction. All
// ids must exist or nothing is written.
func (pgdb *GORMRideDBWrapper) RawBalanceWrite(ctx context.Context, values map[int64]string) error {
	ids := make([]int64, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			result := tx.Model(&UserModel{}).Where("id = ?", id).Updates(map[string]interface{}{
				"balance":    values[id],
				"updated_at": time.Now(),
			})
			if result.Error != nil {
				return fmt.Errorf("failed to write balance of user %d: %w", id, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("user with ID %d %w", id, errs.ErrNotFound)
			}
		}
		return nil
	})
}

// DataLoaderGetUserList batches user reads. Users whose balance does not
// decode are left out and resolve as missing.
func (pgdb *GORMRideDBWrapper) DataLoaderGetUserList(ctx context.Context, ids []int64) (map[int64]*dbt.User, error) {
	var models []UserModel
	result := pgdb.db.WithContext(ctx).Where("id IN ?", ids).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load users: %w", result.Error)
	}

	users := make(map[int64]*dbt.User, len(models))
	for i := range models {
		user, err := toUser(&models[i])
		if err != nil {
			continue
		}
		users[user.ID] = user
	}
	return users, nil
}

// Transaction runs fn inside a database transaction.
func (pgdb *GORMRideDBWrapper) Transaction(ctx context.Context, fn func(tx dbt.RideTx) error) error {
	return pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx})
	})
}

// gormTx locks rows with SELECT ... FOR UPDATE. The sqlite dialect drops
// the locking clause; there the single connection serializes writers.
type gormTx struct {
	tx *gorm.DB
}

func (g *gormTx) forUpdate() *gorm.DB {
	return g.tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (g *gormTx) LockUser(id int64) (*dbt.User, error) {
	return getUser(g.forUpdate(), id)
}

func (g *gormTx) SetUserBalance(id int64, balance decimal.Decimal) error {
	result := g.tx.Model(&UserModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"balance":    money.Format(balance),
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update balance of user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user with ID %d %w", id, errs.ErrNotFound)
	}
	return nil
}

func (g *gormTx) CreateRide(ride *dbt.Ride) error {
	if ride.ID == uuid.Nil {
		ride.ID = uuid.New()
	}
	if ride.Status == "" {
		ride.Status = dbt.RideStatusCreated
	}
	m := RideModel{
		ID:             ride.ID,
		CustomerID:     ride.CustomerID,
		RiderID:        ride.RiderID,
		PickupLocation: ride.PickupLocation,
		Destination:    ride.Destination,
		TotalDistance:  money.Format(ride.TotalDistance),
		Price:          money.Format(ride.Price),
		Status:         string(ride.Status),
	}
	result := g.tx.Omit(clause.Associations).Create(&m)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return fmt.Errorf("ride with ID %s already exists: %w", ride.ID, result.Error)
		}
		if isForeignKeyViolation(result.Error) {
			return fmt.Errorf("customer with ID %d %w", ride.CustomerID, errs.ErrNotFound)
		}
		return fmt.Errorf("failed to create ride: %w", result.Error)
	}
	ride.CreatedAt, ride.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (g *gormTx) LockRide(id uuid.UUID) (*dbt.RideLock, error) {
	var m RideModel
	result := g.forUpdate().Select("id", "customer_id", "rider_id", "status").First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock ride %s: %w", id, result.Error)
	}
	return &dbt.RideLock{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		RiderID:    m.RiderID,
		Status:     dbt.RideStatus(m.Status),
	}, nil
}

func (g *gormTx) GetRide(id uuid.UUID) (*dbt.Ride, error) {
	return getRide(g.tx, id)
}

// casRide applies updates only while the ride still has status from.
func (g *gormTx) casRide(id uuid.UUID, from dbt.RideStatus, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := g.tx.Model(&RideModel{}).Where("id = ? AND status = ?", id, string(from)).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update ride %s: %w", id, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := g.tx.Model(&RideModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check ride %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("ride with ID %s %w", id, errs.ErrNotFound)
	}
	return fmt.Errorf("ride %s is no longer %s: %w", id, from, errs.ErrInvalidTransition)
}

func (g *gormTx) AssignRide(id uuid.UUID, riderID int64) error {
	return g.casRide(id, dbt.RideStatusCreated, map[string]interface{}{
		"rider_id": riderID,
		"status":   string(dbt.RideStatusAssigned),
	})
}

func (g *gormTx) SetRideStatus(id uuid.UUID, from, to dbt.RideStatus) error {
	return g.casRide(id, from, map[string]interface{}{
		"status": string(to),
	})
}

func (g *gormTx) AppendRideEvent(rideID uuid.UUID, description string) (*dbt.RideEvent, error) {
	var step int
	row := g.tx.Model(&RideEventModel{}).Where("ride_id = ?", rideID).Select("COALESCE(MAX(step_count), 0)").Row()
	if err := row.Scan(&step); err != nil {
		return nil, fmt.Errorf("failed to read last step of ride %s: %w", rideID, err)
	}

	m := RideEventModel{
		ID:          uuid.New(),
		RideID:      rideID,
		StepCount:   step + 1,
		Description: description,
	}
	result := g.tx.Create(&m)
	if result.Error != nil {
		if isForeignKeyViolation(result.Error) {
			return nil, fmt.Errorf("ride with ID %s %w", rideID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to append event to ride %s: %w", rideID, result.Error)
	}
	return &dbt.RideEvent{
		ID:          m.ID,
		RideID:      m.RideID,
		StepCount:   m.StepCount,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}, nil
}
