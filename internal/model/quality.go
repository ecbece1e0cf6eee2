package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	CheckpointMidProduction = "MID_PRODUCTION"
	CheckpointFinal         = "FINAL"
	CheckpointRework        = "REWORK"
)

const (
	ReferenceProductionBatch = "PRODUCTION_BATCH"
	ReferenceProductionPlan  = "PRODUCTION_PLAN"
	ReferenceRawMaterial     = "RAW_MATERIAL"
)

// QualityCheckpoint is an append-only timeline entry attached to exactly one of plan or batch.
type QualityCheckpoint struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID         *uuid.UUID          `gorm:"type:uuid;index" json:"plan_id"`
	BatchID        *uuid.UUID          `gorm:"type:uuid;index" json:"batch_id"`
	CheckpointType string              `gorm:"type:varchar(50);not null" json:"checkpoint_type"`
	Status         QualityOutcome      `gorm:"type:varchar(20);not null" json:"status"`
	Score          decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"score"`
	Metrics        datatypes.JSONMap   `json:"metrics"`
	Notes          string              `gorm:"type:text" json:"notes"`
	CheckedBy      *uuid.UUID          `gorm:"type:uuid" json:"checked_by"`
	CheckedAt      time.Time           `gorm:"not null;index" json:"checked_at"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (c QualityCheckpoint) IsRework() bool {
	return c.CheckpointType == CheckpointRework
}

// QualityCheck is the single live inspection record for a (reference type, reference id) pair.
type QualityCheck struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	ReferenceType string              `gorm:"type:varchar(30);not null;uniqueIndex:idx_quality_checks_reference" json:"reference_type"`
	ReferenceID   uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_quality_checks_reference" json:"reference_id"`
	Status        QualityOutcome      `gorm:"type:varchar(20);not null" json:"status"`
	Score         decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"score"`
	Metrics       datatypes.JSONMap   `json:"metrics"`
	Notes         string              `gorm:"type:text" json:"notes"`
	CheckedBy     *uuid.UUID          `gorm:"type:uuid" json:"checked_by"`
	CheckedAt     time.Time           `gorm:"not null" json:"checked_at"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
