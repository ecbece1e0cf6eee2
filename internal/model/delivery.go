package model

import (
	"time"

	"github.com/google/uuid"
)

// Delivery is the transport leg of a distribution to one school.
// PortionsDelivered and CompletionTime are only set when DELIVERED.
type Delivery struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DistributionID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_deliveries_distribution_school" json:"distribution_id"`
	SchoolID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_deliveries_distribution_school" json:"school_id"`
	VehicleID         *uuid.UUID     `gorm:"type:uuid" json:"vehicle_id"`
	DriverID          *uuid.UUID     `gorm:"type:uuid;index" json:"driver_id"`
	DeliveryOrder     int            `gorm:"not null;default:0" json:"delivery_order"`
	PlannedTime       *time.Time     `json:"planned_time"`
	DepartureTime     *time.Time     `json:"departure_time"`
	ArrivalTime       *time.Time     `json:"arrival_time"`
	CompletionTime    *time.Time     `json:"completion_time"`
	PortionsDelivered *int           `json:"portions_delivered"`
	Status            DeliveryStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ProofReference    string         `gorm:"type:varchar(255)" json:"proof_reference"`
	Notes             string         `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Driver.TotalDeliveries is derived: it is only ever written by the stats recomputation.
type Driver struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EmployeeID        string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"employee_id"`
	Name              string     `gorm:"type:varchar(255);not null" json:"name"`
	Phone             string     `gorm:"type:varchar(20)" json:"phone"`
	LicenseNumber     string     `gorm:"type:varchar(50)" json:"license_number"`
	LicenseExpiry     *time.Time `json:"license_expiry"`
	IsActive          bool       `gorm:"not null" json:"is_active"`
	TotalDeliveries   int        `gorm:"not null;default:0" json:"total_deliveries"`
	StatsRecomputedAt *time.Time `json:"stats_recomputed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type Vehicle struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlateNumber string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"plate_number"`
	VehicleType string    `gorm:"type:varchar(50)" json:"vehicle_type"`
	Capacity    int       `gorm:"not null;default:0" json:"capacity"` // portions
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// School is a delivery destination.
type School struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code         string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"` // NPSN
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Address      string    `gorm:"type:text" json:"address"`
	StudentCount int       `gorm:"not null;default:0" json:"student_count"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
