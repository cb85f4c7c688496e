package pg

import (
	"time"

	"github.com/google/uuid"
)

// Money columns are text. The typed path decodes them through the money
// package; the raw path reads them untouched.

type UserModel struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	Username   string  `gorm:"size:150;not null"`
	FirstName  string  `gorm:"size:150;not null;default:''"`
	MiddleName string  `gorm:"size:150;not null;default:''"`
	LastName   string  `gorm:"size:150;not null;default:''"`
	Role       string  `gorm:"size:16;not null"`
	Balance    *string `gorm:"type:varchar(40);default:'0.00'"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

type RideModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID     int64     `gorm:"not null;index"`
	RiderID        *int64    `gorm:"index"`
	PickupLocation string    `gorm:"size:255;not null"`
	Destination    string    `gorm:"size:255;not null"`
	TotalDistance  string    `gorm:"type:varchar(40);not null"`
	Price          string    `gorm:"type:varchar(40);not null"`
	Status         string    `gorm:"size:16;not null;index"`

	Customer UserModel        `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE"`
	Rider    *UserModel       `gorm:"foreignKey:RiderID;constraint:OnDelete:SET NULL"`
	Events   []RideEventModel `gorm:"foreignKey:RideID;constraint:OnDelete:CASCADE"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for RideModel.
func (RideModel) TableName() string {
	return "rides"
}

type RideEventModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	RideID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ride_events_ride_step"`
	StepCount   int       `gorm:"not null;uniqueIndex:idx_ride_events_ride_step"`
	Description string    `gorm:"type:text;not null"`
	// meta data
	CreatedAt time.Time
}

// TableName returns the table name for RideEventModel.
func (RideEventModel) TableName() string {
	return "ride_events"
}
