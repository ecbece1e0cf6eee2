package model

import (
	"time"

	"github.com/google/uuid"
)

// Distribution is one day's allocation of completed batches across schools.
type Distribution struct {
	ID                uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	DistributionDate  time.Time            `gorm:"not null;index" json:"distribution_date"`
	Status            DistributionStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalPortions     int                  `gorm:"not null" json:"total_portions"`
	DriverID          *uuid.UUID           `gorm:"type:uuid;index" json:"driver_id"`
	VehicleID         *uuid.UUID           `gorm:"type:uuid" json:"vehicle_id"`
	EstimatedDuration *int                 `json:"estimated_duration"` // minutes
	ActualDuration    *int                 `json:"actual_duration"`    // minutes
	DepartedAt        *time.Time           `json:"departed_at"`
	CompletedAt       *time.Time           `json:"completed_at"`
	Notes             string               `gorm:"type:text" json:"notes"`
	CreatedBy         *uuid.UUID           `gorm:"type:uuid" json:"created_by"`
	Schools           []DistributionSchool `gorm:"foreignKey:DistributionID" json:"schools,omitempty"`
	Batches           []DistributionBatch  `gorm:"foreignKey:DistributionID" json:"batches,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// DistributionSchool is the planned (and delivered) portion count for one school.
type DistributionSchool struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DistributionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_distribution_schools_pair" json:"distribution_id"`
	SchoolID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_distribution_schools_pair;index" json:"school_id"`
	PlannedPortions int       `gorm:"not null" json:"planned_portions"`
	ActualPortions  *int      `json:"actual_portions"`
	RouteOrder      int       `gorm:"not null;default:0" json:"route_order"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DistributionBatch links a gated production batch to the distribution it feeds.
type DistributionBatch struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DistributionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_distribution_batches_pair" json:"distribution_id"`
	BatchID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_distribution_batches_pair;index" json:"batch_id"`
	CreatedAt      time.Time `json:"created_at"`
}
