package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductionPlan schedules the day's cooking for a menu; batches roll up into it.
type ProductionPlan struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	PlanDate         time.Time         `gorm:"not null;index" json:"plan_date"`
	TargetPortions   int               `gorm:"not null" json:"target_portions"`
	MenuID           uuid.UUID         `gorm:"type:uuid;not null;index" json:"menu_id"`
	Status           ProductionStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	PlannedStartTime *time.Time        `json:"planned_start_time"`
	PlannedEndTime   *time.Time        `json:"planned_end_time"`
	ActualStartTime  *time.Time        `json:"actual_start_time"`
	ActualEndTime    *time.Time        `json:"actual_end_time"`
	Notes            string            `gorm:"type:text" json:"notes"`
	CreatedBy        *uuid.UUID        `gorm:"type:uuid" json:"created_by"`
	Batches          []ProductionBatch `gorm:"foreignKey:PlanID" json:"batches,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ProductionBatch is one cooking run. ActualQuantity and CompletedAt are only set once COMPLETED.
type ProductionBatch struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	BatchNumber     string              `gorm:"type:varchar(50);uniqueIndex;not null" json:"batch_number"`
	PlanID          *uuid.UUID          `gorm:"type:uuid;index" json:"plan_id"` // nil for ad-hoc batches
	RecipeID        uuid.UUID           `gorm:"type:uuid;not null;index" json:"recipe_id"`
	PlannedQuantity int                 `gorm:"not null" json:"planned_quantity"`
	ActualQuantity  *int                `json:"actual_quantity"`
	Status          ProductionStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	StartedAt       *time.Time          `json:"started_at"`
	CompletedAt     *time.Time          `json:"completed_at"`
	QualityScore    decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"quality_score"`
	Notes           string              `gorm:"type:text" json:"notes"`
	CreatedBy       *uuid.UUID          `gorm:"type:uuid" json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}
