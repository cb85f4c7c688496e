package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleRider    Role = "rider"
	RoleStaff    Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleRider, RoleStaff:
		return true
	}
	return false
}

type RideStatus string

const (
	RideStatusCreated  RideStatus = "created"
	RideStatusAssigned RideStatus = "assigned"
	RideStatusDropped  RideStatus = "dropped"
)

type User struct {
	ID         int64
	Username   string
	FirstName  string
	MiddleName string
	LastName   string
	Role       Role
	Balance    decimal.Decimal
}

// FullName joins the non-empty name parts, falling back to the username.
func (u User) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.FirstName, u.MiddleName, u.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return u.Username
	}
	return strings.Join(parts, " ")
}

type Ride struct {
	ID             uuid.UUID
	CustomerID     int64
	RiderID        *int64
	PickupLocation string
	Destination    string
	TotalDistance  decimal.Decimal
	Price          decimal.Decimal
	Status         RideStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RideLock is the part of a ride a transition guard looks at. Reading
// it never decodes money, so a corrupted price cannot block the lock.
type RideLock struct {
	ID         uuid.UUID
	CustomerID int64
	RiderID    *int64
	Status     RideStatus
}

type RideEvent struct {
	ID          uuid.UUID
	RideID      uuid.UUID
	StepCount   int
	Description string
	CreatedAt   time.Time
}

// RawBalance is a balance as stored, before any decoding. Value is nil
// for NULL.
type RawBalance struct {
	UserID int64
	Value  *string
}

// RideFilter narrows ListRides. Zero fields match everything.
type RideFilter struct {
	CustomerID *int64
	RiderID    *int64
	Status     RideStatus
}
